// Package buildgraph holds the registry of source formats, artifact types
// and build targets, and plans which targets turn a source file into a
// requested artifact.
//
// # The Graph
//
// Artifact types are the vertices; every target is a set of edges from each
// of its input types to each of its output types. A source format enters the
// graph at its entry artifact type. The registry is populated once at
// startup by explicit Register calls and then sealed:
//
//   - duplicate codes fail registration immediately;
//   - Seal rejects any cycle, i.e. a target whose inputs transitively
//     depend on one of its own outputs;
//   - targets whose inputs can never be produced are logged by Seal and fail
//     with ErrUnsatisfiableGraph when a plan needs them.
//
// # Planning
//
// Plan computes the closure of targets needed to reach an artifact type from
// a format's entry type. The closure is grown in rounds; within a round,
// targets are considered in registration order, and the order in which they
// first become runnable is the returned order. Ties are therefore always
// broken by registration order, which makes plans deterministic.
package buildgraph

// Package archives discovers archive directories, arranges them into the
// group/archive forest and tracks the build state of every source file.
//
// A physical archive is a directory holding
//
//	META-INF/MANIFEST.MF   manifest, "key: value" lines
//	source/...             inputs
//	.mathgrid/...          build records, binary caches, relation dumps
//
// The Manager owns the forest behind a single read-write lock. Access is
// scoped: WithArchive and WithTree run a callback under the read lock, and
// Load replaces the forest under the write lock. Nothing returned from this
// package should be retained past the callback that produced it.
package archives

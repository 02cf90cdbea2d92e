// Package content defines the two states every module and document passes
// through.
//
// Unchecked values are parser output: plain structs whose cross-references
// are bare URIs. Checked values (Module, Document) are produced exactly once
// from an unchecked value by the checker, are immutable afterwards, and hold
// each cross-reference as a Ref that is either resolved to a shared checked
// artifact or degraded to the URI it failed to resolve.
//
// # Holders
//
// Checked artifacts are shared between the cache and any number of
// consumers. Each root artifact keeps an explicit holder count:
//
//   - whoever creates an artifact (the checker) starts with one hold;
//   - Retain adds a hold, Release drops one;
//   - when the last hold is dropped, the artifact drops the holds it took on
//     every artifact it references.
//
// The cache evicts exactly those entries whose only holder is the cache
// itself. Nested modules and declaration views never carry a count of their
// own; they forward to the root module that owns them.
//
// Declarations and document elements are closed sum types. Switch over the
// concrete types; the unexported marker methods keep other packages from
// adding variants.
package content

// Package app wires the archive manager, content cache, backend, build
// graph, queue manager and triple store into one App, decoupled from any
// specific entrypoint like a CLI or server.
package app

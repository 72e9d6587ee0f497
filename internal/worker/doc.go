// Package worker executes processing requests on behalf of the engine.
//
// Process is the algorithm itself. A Dispatcher runs requests concurrently,
// tracks them by correlation id so "cancel" requests can abort them, and
// emits progress followed by exactly one terminal message per request.
//
// Three transports expose a Dispatcher as an engine port:
//   - InProcess - goroutines in the calling process
//   - Subprocess - a child process speaking newline-delimited JSON over
//     stdin/stdout (see Serve), started in its own process group
//   - the gRPC transport in package rpc
package worker

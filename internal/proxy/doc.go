// Package proxy relays a single client request to a chosen worker and the
// worker's response back to the client.
//
// Every exchange uses its own upstream TCP connection: keep-alives are off
// and nothing is pooled. Request and response bodies are streamed, never
// buffered whole. Method, path, query, and client headers (Host and
// X-Forwarded-* included) reach the worker unchanged; only hop-by-hop
// headers are rewritten by the HTTP stack.
//
// Failures are reported as one of three sentinel errors:
//
//   - ErrWorkerUnavailable: dial failure, refused connection, timeout, or a
//     connection that broke before the response arrived
//   - ErrMalformedUpstreamResponse: the worker answered with something that
//     is not HTTP
//   - ErrClientDisconnect: the client went away; the upstream connection is
//     closed and nothing is written
package proxy

// Package handler implements the dispatch handler of the load balancer.
//
// Every request, whatever its method or path, goes to the next worker in
// round-robin order and is relayed unchanged. Failures are answered by the
// balancer itself: 503 when there is no worker to pick, 502 with a JSON
// message when the worker cannot be reached or answers garbage, and nothing
// at all when the client has already gone away.
package handler

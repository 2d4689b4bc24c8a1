// Package router turns subscription payloads into archived publications.
//
// Subscription handlers run on the connection's dispatch goroutine and must not block, so
// Attach copies each payload into an unbounded GrowableBuffer. A single route goroutine
// stamps the payloads with an id, receive time and envelope kind, then hands them to the
// output buffer consumed by the writer.
package router

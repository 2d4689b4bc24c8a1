// Package metrics provides the client's metrics sink and its Prometheus implementation.
//
// Key metrics:
//   - Connection state transitions and transport errors
//   - Inbound message and push rates
//   - Active subscription count
//   - Command round-trip latency by method and result
//
// Emission is best-effort: the client never depends on a sink for correctness.
package metrics

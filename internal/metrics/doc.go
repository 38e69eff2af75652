// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Messages decoded per framing mode
//   - Fragments and bytes discarded by the decoder, per reason
//   - Open connections and connection churn per role
//   - Session restarts and health per role
//   - Client reconnect state
package metrics

// Package audit defines the audit event model and the contracts between the
// recorder and its storage backends.
//
// An Event is validated, enriched, and has its Details and SecurityContext
// replaced by envelope ciphertext before it leaves the process. Sinks only
// ever see sealed events. Query results are opened by the recorder and then
// narrowed with a ComplianceFilter.
//
// Subpackages:
//
//   - recorder: validation, sealing, buffering, escalation and queries
//   - storage: memory, SQLite and Kafka backends
//   - query: query validation and defaults
//   - retention: scheduled pruning of expired events
//   - export: JSON and CSV output
package audit

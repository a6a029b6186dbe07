// Package recorder is the write and read path of the audit trail.
//
// Record validates an event, fills in the timestamp, correlation id,
// environment and version, and replaces the Details and SecurityContext
// sub-objects with two independent envelopes before the event is buffered.
// HIGH and CRITICAL events are escalated immediately, before buffering.
//
// The buffer is flushed to the sink when it reaches BatchSize and on a
// periodic timer. Flushes are serialized and a failed flush leaves the
// events in the buffer, so delivery is at-least-once and sinks must treat a
// repeated event id as a no-op.
//
// Query reads from the sink, decrypts the sealed sub-objects and then
// applies the compliance filter.
//
// Usage:
//
//	sealer := recorder.NewSealer(keyring, "audit-master-key", logger)
//	rec, err := recorder.New(recorder.DefaultConfig(), recorder.Deps{
//		Sink:    sink,
//		Sealer:  sealer,
//		Metrics: collector,
//	})
//	if err != nil {
//		return err
//	}
//	defer rec.Close(ctx)
//
//	err = rec.Record(ctx, &audit.Event{
//		ID:     uuid.NewString(),
//		Type:   audit.EventAuthFailure,
//		Actor:  "user-42",
//		Action: "login",
//	})
package recorder

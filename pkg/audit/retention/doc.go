// Package retention removes audit events whose retention has ended.
//
// Retention periods are decided when events are written: the recorder passes
// its configured RetentionDays to the sink with every batch and the sink
// stores an expiry per event. This package only triggers the sink's cleanup,
// either once through Pruner.Prune or on a cron schedule:
//
//	pruner := retention.NewPruner(sink, retention.Config{Schedule: "0 3 * * *"}, logger)
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention

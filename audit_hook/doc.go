// Package audithook is an RVoc extension that turns job and session
// lifecycle events into audit records.
//
// Every hook emits a structured AuditEvent through the [Recorder]
// interface, with a severity (info for normal operation, warning for
// removed queue rows and reclaimed reservations, critical for failed
// jobs) and metadata such as the job kind, the run id or the username.
//
// # Usage with slog
//
//	eng, err := engine.Build(st, cfg, logger,
//	    engine.WithExtension(audithook.New(audithook.SlogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionSessionCreated,
//	    ),
//	)
package audithook

// Package engine wires all RVoc subsystems together. It creates the
// extension registry, the job registry with the built-in session sweep, the
// job execution chain and the scheduler, and builds the session manager,
// the account service and the HTTP API on top of a single store.
//
// The engine sits above every subsystem package and below the command
// line, so neither side needs to know how the other is assembled.
//
// Usage:
//
//	st, _ := postgres.New(ctx, cfg.Database.URL)
//	eng, err := engine.Build(st, cfg, logger)
//	if err != nil {
//		return err
//	}
//	if err := eng.Start(ctx); err != nil {
//		return err
//	}
//	defer eng.Stop(context.Background())
//	http.ListenAndServe(cfg.HTTP.ListenAddress, eng.Handler())
package engine

// Package rvoc is the backend of the RVoc vocabulary trainer.
//
// The interesting part is the transactional layer that lets requests and the
// background job poller share rows in PostgreSQL without in-process locks:
//
//   - txn retries a unit of work inside one transaction at a chosen
//     isolation level and classifies failures into a closed set of kinds.
//   - scheduler keeps a durable table of recurring jobs and runs them from a
//     single cooperative poller.
//   - session stores login sessions with collision-safe id issuance and
//     id rotation.
//
// Everything else (accounts, reference data, the HTTP surface and the CLI) is
// built on top of these three pieces.
//
// # Quick Start
//
//	cfg, err := rvoc.LoadConfig("rvoc.yaml")
//	pg, err := postgres.New(ctx, cfg.Database.URL)
//	sessions := session.NewManager(pg, logger)
//
// The root package holds configuration and the sentinel errors shared by
// every subsystem.
package rvoc

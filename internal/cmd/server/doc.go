// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the ingestion gateway, handling configuration, wiring, and shutdown order.
//
// Example:
//
//	opts := serverrun.Options{ConfigPath: "./tables.yaml", HTTPAddr: ":8080"}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun

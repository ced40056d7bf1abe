// Package zerobus is the boundary to the external Zerobus ingest service.
//
// It defines the Provider contract the stream manager depends on (creating a
// long-lived, ordered, append-only record stream for one table), together
// with the RecordStream operations (ingest, flush, close, state) and the Ack
// future resolved when a record is durable. GRPCProvider implements the
// contract over a bidirectional gRPC stream; everything above this package is
// transport-agnostic.
//
// Example:
//
//	p := zerobus.NewGRPCProvider(endpoint, logger)
//	st, err := p.CreateStream(ctx, creds, table, zerobus.StreamOptions{
//	    MaxInflightRecords: 50000,
//	    Recovery:           true,
//	})
//	ack, err := st.IngestRecord(ctx, payload)
//	err = ack.Await(ctx)
package zerobus

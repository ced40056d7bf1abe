// Package httpserver provides the REST ingestion gateway: JSON records in,
// table streams out. Routes are grouped into controllers that share the
// stream manager and the schema registry.
//
// Example:
//
//	mgr := streamsvc.New(provider, creds)
//	s := httpserver.New(mgr, registry)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver

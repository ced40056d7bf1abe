// Package schema turns per-table field definitions from the configuration
// into concrete record codecs, resolved once at load time.
//
// Each table gets a synthesized protobuf message descriptor and a Codec that
// encodes JSON request bodies into wire bytes for that message. Tables may
// also carry an optional CEL admission filter evaluated against the JSON body
// before a record is submitted.
//
// Example:
//
//	reg, err := schema.NewRegistry(cfg)
//	entry, ok := reg.Lookup("station_one")
//	payload, err := entry.Codec.Encode(body)
package schema

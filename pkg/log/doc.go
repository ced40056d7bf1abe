// Package log provides Zerobus Station's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by the
// standard library's slog handlers, so output is ordinary text or JSON lines
// while call sites stay against this facade.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormat(log.FormatText),
//	)
//	l = l.With(log.Component("streams"), log.Str("table", "station_one"))
//	l.Info("stream created", log.Str("stream_id", id))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level and
// format strings, typically sourced from flags or environment variables).
//
// # Interop
//
// RedirectStdLog routes standard library log output (used by some
// dependencies) through a Logger so the process emits one consistent stream.
package log

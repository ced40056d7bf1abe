package schema

import (
	"fmt"
	"sort"

	"github.com/PortoLucas1/zerobus-station/internal/config"
)

// Entry bundles everything resolved for one table at load time.
type Entry struct {
	Table  config.TableConfig
	Codec  *Codec
	Filter Filter
}

// Registry maps table keys to their resolved schema entries. Immutable after
// construction; safe for concurrent reads.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry resolves a codec and filter for every configured table.
func NewRegistry(cfg config.Config) (*Registry, error) {
	entries := make(map[string]*Entry, len(cfg.Tables))
	for key, tbl := range cfg.Tables {
		codec, err := NewCodec(tbl)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", key, err)
		}
		filter, err := NewFilter(tbl.Filter)
		if err != nil {
			return nil, fmt.Errorf("table %s: compile filter: %w", key, err)
		}
		entries[key] = &Entry{Table: tbl, Codec: codec, Filter: filter}
	}
	return &Registry{entries: entries}, nil
}

// Lookup returns the entry for a table key.
func (r *Registry) Lookup(key string) (*Entry, bool) {
	e, ok := r.entries[key]
	return e, ok
}

// Keys returns the configured table keys, sorted.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

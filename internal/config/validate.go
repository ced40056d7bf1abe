package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks structural constraints (via validator tags) and
// cross-field rules. All problems are reported at once, joined per line.
func Validate(cfg *Config) error {
	var errs []error

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	for key, tbl := range cfg.Tables {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, errors.New("tables: empty table key"))
			continue
		}
		seen := make(map[string]struct{}, len(tbl.Fields))
		for i, f := range tbl.Fields {
			if f.Name == "" {
				continue // already reported by the struct tags
			}
			if _, dup := seen[f.Name]; dup {
				errs = append(errs, fmt.Errorf("tables[%s].fields[%d]: duplicate field name %q", key, i, f.Name))
			}
			seen[f.Name] = struct{}{}
			if _, ok := FieldTypes[f.Type]; !ok && f.Type != "" {
				// Unknown types are tolerated (string fallback) but flagged
				// when they look like typos of supported ones.
				if strings.HasPrefix(f.Type, "int") || strings.HasPrefix(f.Type, "uint") {
					errs = append(errs, fmt.Errorf("tables[%s].fields[%d]: unsupported field type %q", key, i, f.Type))
				}
			}
		}
	}

	return join(errs)
}

func join(errs []error) error {
	var lines []string
	for _, e := range errs {
		if e != nil {
			lines = append(lines, e.Error())
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return errors.New(strings.Join(lines, "\n"))
}

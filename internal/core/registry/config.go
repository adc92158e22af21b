package registry

import (
	"fmt"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Config is the parameter bag handed to component factories. Values come
// from the composition file, so numeric types are whatever the decoder
// produced; accessors normalize them.
type Config map[string]any

func (c Config) String(key, fallback string) string {
	v, ok := c[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// RequireString returns ErrMissingConfig when the key is absent or blank.
func (c Config) RequireString(key string) (string, error) {
	v, ok := c[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", domain.WrapError(domain.ErrMissingConfig, "config", fmt.Errorf("parameter %q is required", key))
	}
	return v, nil
}

func (c Config) Int(key string, fallback int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func (c Config) Float(key string, fallback float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

func (c Config) Bool(key string, fallback bool) bool {
	v, ok := c[key].(bool)
	if !ok {
		return fallback
	}
	return v
}

func (c Config) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// RequireStrings returns ErrMissingConfig when the key holds no entries.
func (c Config) RequireStrings(key string) ([]string, error) {
	v := c.Strings(key)
	if len(v) == 0 {
		return nil, domain.WrapError(domain.ErrMissingConfig, "config", fmt.Errorf("parameter %q requires at least one entry", key))
	}
	return v, nil
}

func (c Config) Floats(key string) []float64 {
	switch v := c[key].(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			}
		}
		return out
	default:
		return nil
	}
}

// Sub returns a nested parameter bag, or an empty one.
func (c Config) Sub(key string) Config {
	switch v := c[key].(type) {
	case Config:
		return v
	case map[string]any:
		return Config(v)
	default:
		return Config{}
	}
}

package hash

import "fmt"

// typed accessor helper: explicit per-type accessor methods for the hot
// paths used by the validator and device runtime.

// GetString returns the string at path.
func (h *Hash) GetString(path string) (string, error) {
	v, ok := h.Get(path)
	if !ok {
		return "", fmt.Errorf("hash: path %q not found", path)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("hash: path %q is not a string (%T)", path, v)
	}
	return s, nil
}

// GetBool returns the bool at path.
func (h *Hash) GetBool(path string) (bool, error) {
	v, ok := h.Get(path)
	if !ok {
		return false, fmt.Errorf("hash: path %q not found", path)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("hash: path %q is not a bool (%T)", path, v)
	}
	return b, nil
}

// GetInt64 returns the path's value widened to int64. It accepts any of
// the signed/unsigned integer kinds, matching the validator's lossless
// coercion rule.
func (h *Hash) GetInt64(path string) (int64, error) {
	v, ok := h.Get(path)
	if !ok {
		return 0, fmt.Errorf("hash: path %q not found", path)
	}
	switch n := v.(type) {
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("hash: path %q is not an integer (%T)", path, v)
	}
}

// GetFloat64 returns the path's value widened to float64.
func (h *Hash) GetFloat64(path string) (float64, error) {
	v, ok := h.Get(path)
	if !ok {
		return 0, fmt.Errorf("hash: path %q not found", path)
	}
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		if i, err := h.GetInt64(path); err == nil {
			return float64(i), nil
		}
		return 0, fmt.Errorf("hash: path %q is not numeric (%T)", path, v)
	}
}

// ToMap converts the Hash into a plain map[string]any tree (nested
// Hashes become nested maps), dropping per-node attributes — the shape
// gojq and encoding/json expect. Used by karabo-ctl's query command to
// project a device's configuration through a jq filter.
func (h *Hash) ToMap() map[string]any {
	out := make(map[string]any, len(h.order))
	for _, key := range h.order {
		n := h.nodes[key]
		if nested, ok := n.value.(*Hash); ok {
			out[key] = nested.ToMap()
			continue
		}
		out[key] = n.value
	}
	return out
}

// Paths returns every leaf path in the tree, in depth-first insertion
// order, using DefaultSeparator to join compound keys.
func (h *Hash) Paths() []string {
	var out []string
	h.collectPaths("", &out)
	return out
}

func (h *Hash) collectPaths(prefix string, out *[]string) {
	for _, key := range h.order {
		full := key
		if prefix != "" {
			full = prefix + string(DefaultSeparator) + key
		}
		n := h.nodes[key]
		if nested, ok := n.value.(*Hash); ok {
			nested.collectPaths(full, out)
			continue
		}
		*out = append(*out, full)
	}
}

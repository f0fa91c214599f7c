package domain

import (
	"maps"
	"slices"
	"strconv"
)

// ConfigurationParameters is the opaque configuration forwarded from a run request
// to every extension. The engine never interprets values itself.
type ConfigurationParameters interface {
	Get(key string) (string, bool)
	Keys() []string
}

// MapParameters is a ConfigurationParameters backed by a map.
type MapParameters map[string]string

func (m MapParameters) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MapParameters) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// GetBool reads a boolean parameter. Unset or unparsable values yield def.
func GetBool(p ConfigurationParameters, key string, def bool) bool {
	if p == nil {
		return def
	}
	v, ok := p.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

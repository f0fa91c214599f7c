package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// reservedTagChars cannot appear in a tag because tag expressions use them.
const reservedTagChars = ",()&|!"

// Tag labels descriptors for filtering.
type Tag string

// NewTag validates and trims name.
func NewTag(name string) (Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewConfigurationError("tag", name, fmt.Errorf("tag must not be blank"))
	}
	if strings.ContainsAny(name, reservedTagChars) {
		return "", NewConfigurationError("tag", name, fmt.Errorf("tag must not contain any of %q", reservedTagChars))
	}
	if strings.IndexFunc(name, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return "", NewConfigurationError("tag", name, fmt.Errorf("tag must not contain whitespace"))
	}
	return Tag(name), nil
}

// ParseTags converts names into tags, stopping at the first invalid one.
func ParseTags(names ...string) ([]Tag, error) {
	tags := make([]Tag, 0, len(names))
	for _, n := range names {
		t, err := NewTag(n)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, nil
}

package store

import (
	"fmt"
	"strings"
)

// Namespace partitions a store so unrelated extensions cannot collide.
// Two namespaces are equal when they were built from equal parts.
type Namespace struct {
	key string
}

// GlobalNamespace is shared by everyone.
var GlobalNamespace = NewNamespace("global")

// NewNamespace builds a namespace from an ordered list of parts, typically the
// extension type followed by some discriminator.
func NewNamespace(parts ...any) Namespace {
	encoded := make([]string, len(parts))
	for i, p := range parts {
		encoded[i] = fmt.Sprintf("%T=%v", p, p)
	}
	return Namespace{key: strings.Join(encoded, "\x1f")}
}

// Append returns a namespace extended with more parts.
func (n Namespace) Append(parts ...any) Namespace {
	extra := NewNamespace(parts...)
	if n.key == "" {
		return extra
	}
	return Namespace{key: n.key + "\x1f" + extra.key}
}

func (n Namespace) String() string {
	return strings.ReplaceAll(n.key, "\x1f", "/")
}

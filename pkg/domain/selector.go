package domain

import (
	"fmt"
	"strings"

	"github.com/tuchang/junit5/pkg/uniqueid"
)

// SelectorKind groups selectors for dispatch to the resolvers interested in them.
type SelectorKind string

const (
	KindUniqueID  SelectorKind = "unique-id"
	KindElement   SelectorKind = "element"
	KindName      SelectorKind = "name"
	KindFile      SelectorKind = "file"
	KindDirectory SelectorKind = "directory"
)

// Selector describes what discovery should resolve.
type Selector interface {
	Kind() SelectorKind
	fmt.Stringer
}

// UniqueIDSelector selects the node at a fully-qualified address.
type UniqueIDSelector struct {
	ID uniqueid.UniqueID
}

// ElementSelector selects an opaque program element understood by some resolver.
type ElementSelector struct {
	Element any
}

// NameSelector selects a container by path, optionally narrowed to one member,
// e.g. ["Outer", "Inner", "adds"].
type NameSelector struct {
	Path []string
}

// FileSelector selects every test defined in a file.
type FileSelector struct {
	Path string
}

// DirectorySelector selects every test defined below a directory.
type DirectorySelector struct {
	Path string
}

func (UniqueIDSelector) Kind() SelectorKind  { return KindUniqueID }
func (ElementSelector) Kind() SelectorKind   { return KindElement }
func (NameSelector) Kind() SelectorKind      { return KindName }
func (FileSelector) Kind() SelectorKind      { return KindFile }
func (DirectorySelector) Kind() SelectorKind { return KindDirectory }

func (s UniqueIDSelector) String() string  { return "id:" + s.ID.String() }
func (s ElementSelector) String() string   { return fmt.Sprintf("element:%v", s.Element) }
func (s NameSelector) String() string      { return "name:" + strings.Join(s.Path, ".") }
func (s FileSelector) String() string      { return "file:" + s.Path }
func (s DirectorySelector) String() string { return "dir:" + s.Path }

// SelectUniqueID parses s into a UniqueIDSelector.
func SelectUniqueID(s string) (UniqueIDSelector, error) {
	id, err := uniqueid.Parse(s)
	if err != nil {
		return UniqueIDSelector{}, NewConfigurationError("select", s, err)
	}
	return UniqueIDSelector{ID: id}, nil
}

// SelectName splits a dotted name into a NameSelector.
func SelectName(name string) NameSelector {
	return NameSelector{Path: strings.Split(name, ".")}
}

// ParseSelector reads the textual selector forms used on the command line:
// "id:<unique id>", "name:<a.b.c>", "file:<path>", "dir:<path>".
func ParseSelector(s string) (Selector, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return nil, NewConfigurationError("select", s, fmt.Errorf("expected <kind>:<value>"))
	}
	switch kind {
	case "id", "uid":
		return SelectUniqueID(value)
	case "name":
		return SelectName(value), nil
	case "file":
		return FileSelector{Path: value}, nil
	case "dir":
		return DirectorySelector{Path: value}, nil
	}
	return nil, NewConfigurationError("select", s, fmt.Errorf("unknown selector kind %q", kind))
}

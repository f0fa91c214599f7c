package domain

import (
	"fmt"
	"strings"
)

// Source locates the definition of a descriptor.
type Source interface {
	fmt.Stringer
	isSource()
}

// FileSource points at a file and, optionally, a position in it.
type FileSource struct {
	Path   string `json:"path"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// DirectorySource points at a directory.
type DirectorySource struct {
	Path string `json:"path"`
}

// URISource points at an arbitrary resource.
type URISource struct {
	URI string `json:"uri"`
}

// ElementSource names a program element by its container and optional member.
type ElementSource struct {
	Container string `json:"container"`
	Member    string `json:"member,omitempty"`
}

// CompositeSource groups several sources of one descriptor.
type CompositeSource struct {
	Sources []Source `json:"sources"`
}

func (FileSource) isSource() {}
func (DirectorySource) isSource() {}
func (URISource) isSource() {}
func (ElementSource) isSource() {}
func (CompositeSource) isSource() {}

func (s FileSource) String() string {
	switch {
	case s.Line > 0 && s.Column > 0:
		return fmt.Sprintf("%s:%d:%d", s.Path, s.Line, s.Column)
	case s.Line > 0:
		return fmt.Sprintf("%s:%d", s.Path, s.Line)
	default:
		return s.Path
	}
}

func (s DirectorySource) String() string { return s.Path }

func (s URISource) String() string { return s.URI }

func (s ElementSource) String() string {
	if s.Member == "" {
		return s.Container
	}
	return s.Container + "#" + s.Member
}

func (s CompositeSource) String() string {
	parts := make([]string, 0, len(s.Sources))
	for _, src := range s.Sources {
		parts = append(parts, src.String())
	}
	return strings.Join(parts, ", ")
}

package uniqueid

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// EngineSegmentType is the segment type of an engine root.
const EngineSegmentType = "engine"

// ErrMalformed is matched by every FormatError.
var ErrMalformed = errors.New("malformed unique id")

// FormatError reports a string or segment that does not satisfy the unique id grammar.
type FormatError struct {
	Input    string
	Position int
	Reason   string
}

func (e *FormatError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("malformed unique id %q (segment %d): %s", e.Input, e.Position, e.Reason)
	}
	return fmt.Sprintf("malformed unique id %q: %s", e.Input, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrMalformed
}

// Format defines the delimiters of the string representation.
type Format struct {
	Open      rune
	Separator rune
	Close     rune
	Delimiter rune

	segment *regexp.Regexp
}

// DefaultFormat is the format used by Parse and UniqueID.String.
var DefaultFormat = NewFormat('[', ':', ']', '/')

// NewFormat builds a Format from its four delimiters.
func NewFormat(open, sep, close, delim rune) *Format {
	q := func(r rune) string { return fmt.Sprintf(`\x{%x}`, r) }
	reserved := q(open) + q(sep) + q(close) + q(delim)
	pattern := fmt.Sprintf(`^%s([^%s]+)%s([^%s]+)%s$`, q(open), reserved, q(sep), reserved, q(close))
	return &Format{
		Open:      open,
		Separator: sep,
		Close:     close,
		Delimiter: delim,
		segment:   regexp.MustCompile(pattern),
	}
}

func (f *Format) reserved() string {
	return string([]rune{f.Open, f.Separator, f.Close, f.Delimiter})
}

// Parse reads a unique id from its string form.
func (f *Format) Parse(s string) (UniqueID, error) {
	if s == "" {
		return UniqueID{}, &FormatError{Input: s, Position: -1, Reason: "empty string"}
	}
	parts := strings.Split(s, string(f.Delimiter))
	segments := make([]Segment, 0, len(parts))
	for i, part := range parts {
		m := f.segment.FindStringSubmatch(part)
		if m == nil {
			return UniqueID{}, &FormatError{
				Input:    s,
				Position: i,
				Reason:   fmt.Sprintf("%q does not match %c<type>%c<value>%c", part, f.Open, f.Separator, f.Close),
			}
		}
		segments = append(segments, Segment{Type: m[1], Value: m[2]})
	}
	return UniqueID{segments: segments}, nil
}

// Format renders u. It is the inverse of Parse and fails when a segment
// contains one of the delimiters of f.
func (f *Format) Format(u UniqueID) (string, error) {
	for i, seg := range u.segments {
		if err := f.validate(seg, i); err != nil {
			return "", err
		}
	}
	return f.render(u), nil
}

func (f *Format) render(u UniqueID) string {
	var sb strings.Builder
	for i, seg := range u.segments {
		if i > 0 {
			sb.WriteRune(f.Delimiter)
		}
		sb.WriteRune(f.Open)
		sb.WriteString(seg.Type)
		sb.WriteRune(f.Separator)
		sb.WriteString(seg.Value)
		sb.WriteRune(f.Close)
	}
	return sb.String()
}

// validate checks a single segment against the reserved characters of f.
func (f *Format) validate(seg Segment, position int) error {
	switch {
	case seg.Type == "":
		return &FormatError{Input: seg.String(), Position: position, Reason: "segment type is empty"}
	case seg.Value == "":
		return &FormatError{Input: seg.String(), Position: position, Reason: "segment value is empty"}
	case strings.ContainsAny(seg.Type, f.reserved()):
		return &FormatError{Input: seg.String(), Position: position, Reason: fmt.Sprintf("type contains one of %q", f.reserved())}
	case strings.ContainsAny(seg.Value, f.reserved()):
		return &FormatError{Input: seg.String(), Position: position, Reason: fmt.Sprintf("value contains one of %q", f.reserved())}
	}
	return nil
}

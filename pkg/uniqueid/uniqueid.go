package uniqueid

import "slices"

// Segment is one typed step of a UniqueID.
type Segment struct {
	Type  string
	Value string
}

func (s Segment) String() string {
	return s.Type + ":" + s.Value
}

// UniqueID is an immutable root-to-leaf address. The zero value is not a valid id.
type UniqueID struct {
	segments []Segment
}

// Root creates a single-segment id.
func Root(segmentType, value string) (UniqueID, error) {
	seg := Segment{Type: segmentType, Value: value}
	if err := DefaultFormat.validate(seg, 0); err != nil {
		return UniqueID{}, err
	}
	return UniqueID{segments: []Segment{seg}}, nil
}

// ForEngine creates the root id of the engine with the given id.
func ForEngine(engineID string) (UniqueID, error) {
	return Root(EngineSegmentType, engineID)
}

// MustRoot is like Root but panics on an invalid segment.
func MustRoot(segmentType, value string) UniqueID {
	u, err := Root(segmentType, value)
	if err != nil {
		panic(err)
	}
	return u
}

// Parse reads s using DefaultFormat.
func Parse(s string) (UniqueID, error) {
	return DefaultFormat.Parse(s)
}

// MustParse is like Parse but panics if s is malformed.
func MustParse(s string) UniqueID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Append returns a new id with one more segment. The receiver is left untouched.
func (u UniqueID) Append(segmentType, value string) (UniqueID, error) {
	seg := Segment{Type: segmentType, Value: value}
	if err := DefaultFormat.validate(seg, len(u.segments)); err != nil {
		return UniqueID{}, err
	}
	segments := make([]Segment, len(u.segments), len(u.segments)+1)
	copy(segments, u.segments)
	return UniqueID{segments: append(segments, seg)}, nil
}

// MustAppend is like Append but panics on an invalid segment.
func (u UniqueID) MustAppend(segmentType, value string) UniqueID {
	child, err := u.Append(segmentType, value)
	if err != nil {
		panic(err)
	}
	return child
}

// Segments returns a copy of the segments of u.
func (u UniqueID) Segments() []Segment {
	return slices.Clone(u.segments)
}

// Len returns the number of segments.
func (u UniqueID) Len() int {
	return len(u.segments)
}

// IsZero reports whether u is the zero value.
func (u UniqueID) IsZero() bool {
	return len(u.segments) == 0
}

// Last returns the final segment of u.
func (u UniqueID) Last() (Segment, bool) {
	if len(u.segments) == 0 {
		return Segment{}, false
	}
	return u.segments[len(u.segments)-1], true
}

// Parent returns u without its last segment. The root has no parent.
func (u UniqueID) Parent() (UniqueID, bool) {
	if len(u.segments) < 2 {
		return UniqueID{}, false
	}
	return UniqueID{segments: u.segments[:len(u.segments)-1 : len(u.segments)-1]}, true
}

// HasPrefix reports whether prefix is an ancestor of u or u itself.
func (u UniqueID) HasPrefix(prefix UniqueID) bool {
	if prefix.IsZero() || len(prefix.segments) > len(u.segments) {
		return false
	}
	return slices.Equal(u.segments[:len(prefix.segments)], prefix.segments)
}

// EngineID returns the value of the first segment when it marks an engine root.
func (u UniqueID) EngineID() (string, bool) {
	if len(u.segments) == 0 || u.segments[0].Type != EngineSegmentType {
		return "", false
	}
	return u.segments[0].Value, true
}

// Equal compares two ids segment by segment.
func (u UniqueID) Equal(other UniqueID) bool {
	return slices.Equal(u.segments, other.segments)
}

// Key returns a string suitable as a map key. Equal ids have equal keys.
func (u UniqueID) Key() string {
	return DefaultFormat.render(u)
}

func (u UniqueID) String() string {
	return DefaultFormat.render(u)
}

// MarshalText implements encoding.TextMarshaler.
func (u UniqueID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UniqueID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

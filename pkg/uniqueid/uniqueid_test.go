package uniqueid_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5/pkg/uniqueid"
)

func TestParse_RoundTrip(t *testing.T) {
	ids := []string{
		"[engine:dsl]",
		"[engine:suite]/[file:calc.suite.yaml]",
		"[engine:dsl]/[container:Outer]/[container:Inner]/[test:adds(int,int)]",
		"[engine:x]/[dynamic-test:#1]",
	}

	for _, s := range ids {
		t.Run(s, func(t *testing.T) {
			u, err := uniqueid.Parse(s)
			require.NoError(t, err)
			assert.Equal(t, s, u.String())

			again, err := uniqueid.Parse(u.String())
			require.NoError(t, err)
			assert.True(t, u.Equal(again))
			assert.Equal(t, u.Key(), again.Key())
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing brackets", input: "engine:dsl"},
		{name: "missing separator", input: "[engine]"},
		{name: "empty value", input: "[engine:]"},
		{name: "empty type", input: "[:dsl]"},
		{name: "separator in value", input: "[engine:a:b]"},
		{name: "open bracket in type", input: "[en[gine:dsl]"},
		{name: "trailing delimiter", input: "[engine:dsl]/"},
		{name: "garbage segment", input: "[engine:dsl]/oops"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := uniqueid.Parse(tc.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, uniqueid.ErrMalformed))
			assert.True(t, u.IsZero(), "no partial result")

			var fe *uniqueid.FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tc.input, fe.Input)
		})
	}
}

func TestAppend_DoesNotMutateReceiver(t *testing.T) {
	root := uniqueid.MustRoot("engine", "dsl")

	child, err := root.Append("container", "Calculator")
	require.NoError(t, err)
	sibling, err := root.Append("container", "Parser")
	require.NoError(t, err)

	assert.Equal(t, "[engine:dsl]", root.String())
	assert.Equal(t, 1, root.Len())
	assert.Equal(t, "[engine:dsl]/[container:Calculator]", child.String())
	assert.Equal(t, "[engine:dsl]/[container:Parser]", sibling.String())
	assert.False(t, child.Equal(root))
}

func TestAppend_RejectsReservedCharacters(t *testing.T) {
	root := uniqueid.MustRoot("engine", "dsl")

	for _, value := range []string{"a/b", "a[b", "a]b", "a:b", ""} {
		t.Run(value, func(t *testing.T) {
			_, err := root.Append("test", value)
			assert.ErrorIs(t, err, uniqueid.ErrMalformed)
		})
	}

	_, err := uniqueid.Root("eng/ine", "dsl")
	assert.ErrorIs(t, err, uniqueid.ErrMalformed)
}

func TestSegments_ReturnsCopy(t *testing.T) {
	u := uniqueid.MustParse("[engine:dsl]/[test:a]")

	segments := u.Segments()
	segments[1].Value = "changed"
	segments = append(segments, uniqueid.Segment{Type: "x", Value: "y"})

	assert.Len(t, segments, 3)
	assert.Equal(t, "[engine:dsl]/[test:a]", u.String())
}

func TestEngineID(t *testing.T) {
	id, ok := uniqueid.MustParse("[engine:suite]/[file:a]").EngineID()
	assert.True(t, ok)
	assert.Equal(t, "suite", id)

	_, ok = uniqueid.MustParse("[container:a]").EngineID()
	assert.False(t, ok)

	_, ok = uniqueid.UniqueID{}.EngineID()
	assert.False(t, ok)
}

func TestNavigation(t *testing.T) {
	u := uniqueid.MustParse("[engine:dsl]/[container:A]/[test:b]")

	parent, ok := u.Parent()
	require.True(t, ok)
	assert.Equal(t, "[engine:dsl]/[container:A]", parent.String())
	assert.True(t, u.HasPrefix(parent))
	assert.False(t, parent.HasPrefix(u))

	last, ok := u.Last()
	require.True(t, ok)
	assert.Equal(t, uniqueid.Segment{Type: "test", Value: "b"}, last)

	_, ok = uniqueid.MustRoot("engine", "dsl").Parent()
	assert.False(t, ok)
}

func TestCustomFormat(t *testing.T) {
	f := uniqueid.NewFormat('<', '=', '>', '|')

	u, err := f.Parse("<engine=dsl>|<test=a/b>")
	require.NoError(t, err)
	s, err := f.Format(u)
	require.NoError(t, err)
	assert.Equal(t, "<engine=dsl>|<test=a/b>", s)

	segments := u.Segments()
	assert.Equal(t, "a/b", segments[1].Value)
}

func TestCustomFormat_DelimitersAreLiteral(t *testing.T) {
	f := uniqueid.NewFormat('<', '-', '>', '/')

	_, err := f.Parse("<a-b-c>")
	require.ErrorIs(t, err, uniqueid.ErrMalformed)

	u, err := f.Parse("<engine-dsl>/<test-x>")
	require.NoError(t, err)
	assert.Equal(t, []uniqueid.Segment{{Type: "engine", Value: "dsl"}, {Type: "test", Value: "x"}}, u.Segments())
}

func TestCustomFormat_RejectsReservedCharacters(t *testing.T) {
	f := uniqueid.NewFormat('<', '=', '>', '|')

	_, err := f.Format(uniqueid.MustParse("[engine:dsl]/[test:a=b]"))
	require.ErrorIs(t, err, uniqueid.ErrMalformed)
}

func TestTextMarshaling(t *testing.T) {
	var u uniqueid.UniqueID
	require.NoError(t, u.UnmarshalText([]byte("[engine:dsl]/[test:x]")))

	text, err := u.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[engine:dsl]/[test:x]", string(text))

	assert.Error(t, u.UnmarshalText([]byte("nope")))
}

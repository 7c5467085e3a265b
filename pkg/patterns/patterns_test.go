package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	testCases := []struct {
		pattern string
		value   string
		want    bool
		desc    string
	}{
		// ** patterns
		{"example.com/app/**", "example.com/app/ui/widgets", true, "** matches nested packages"},
		{"example.com/app/**", "example.com/app", true, "** matches the base package"},
		{"example.com/app/**", "example.com/apple", false, "** keeps the segment boundary"},
		{"example.com/app/**/*", "example.com/app/ui", true, "**/* matches one level"},
		{"example.com/app/**/*", "example.com/app", false, "**/* needs one more level"},
		{"**/internal", "example.com/app/internal", true, "leading ** matches any prefix"},
		{"**/internal", "example.com/app/internals", false, "leading ** keeps the suffix exact"},

		// Slash-free patterns match the last element
		{"internal", "example.com/app/internal", true, "bare name matches last element"},
		{"internal", "example.com/app/internal/x", false, "bare name does not match below"},
		{"mock*", "example.com/app/mocks", true, "bare glob matches last element"},
		{"Presenter", "Presenter", true, "type names match directly"},
		{"*View", "ListView", true, "type name suffix"},
		{"*View", "Viewer", false, "type name suffix mismatch"},

		// ? and classes
		{"v?", "example.com/app/v2", true, "? matches one character"},
		{"v?", "example.com/app/v10", false, "? matches exactly one"},
		{"v[0-9]", "example.com/app/v3", true, "class matches digit"},
		{"v[0-9]", "example.com/app/vx", false, "class rejects letter"},
		{"v[0-9", "v[0-9", true, "unterminated class is literal"},

		// Directories
		{"testdata/", "example.com/app/testdata/fixtures", true, "trailing / matches contents"},
		{"testdata/", "example.com/app/testdata", true, "trailing / matches the directory"},

		// Negation and leading slash
		{"!*_test", "example.com/app/ui", true, "negation matches non-matching"},
		{"!*_test", "example.com/app/ui_test", false, "negation rejects matching"},
		{"/example.com/app", "example.com/app", true, "leading slash is ignored"},

		// Regexp metacharacters are literal
		{"a+b", "a+b", true, "plus is literal"},
		{"a+b", "aab", false, "plus is not a quantifier"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(tc.pattern, tc.value), "pattern %q value %q", tc.pattern, tc.value)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile("")
	assert.Error(t, err)
	_, err = Compile("!")
	assert.Error(t, err)
	assert.False(t, Match("", "anything"))

	assert.Panics(t, func() { MustCompile("") })
	assert.Equal(t, "!x", MustCompile("!x").String())
}

func TestSet(t *testing.T) {
	s, err := NewSet(
		[]string{"example.com/app/**"},
		[]string{"**/internal/**", "mocks"},
	)
	require.NoError(t, err)

	assert.True(t, s.Allow("example.com/app/ui"))
	assert.False(t, s.Allow("example.com/app/internal/store"))
	assert.False(t, s.Allow("example.com/app/mocks"))
	assert.False(t, s.Allow("example.com/other"))
	assert.False(t, s.Empty())

	assert.Equal(t,
		[]string{"example.com/app", "example.com/app/ui"},
		s.Filter([]string{"example.com/app", "example.com/app/internal", "example.com/app/ui", "example.com/lib"}),
	)
}

func TestSet_ExcludeOnly(t *testing.T) {
	s, err := NewSet(nil, []string{"*Mock"})
	require.NoError(t, err)

	assert.True(t, s.Allow("Presenter"))
	assert.False(t, s.Allow("PresenterMock"))
}

func TestSet_NilAndEmpty(t *testing.T) {
	var s *Set
	assert.True(t, s.Allow("anything"))
	assert.True(t, s.Empty())

	empty, err := NewSet(nil, nil)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.True(t, empty.Allow("anything"))
}

func TestNewSet_InvalidPattern(t *testing.T) {
	_, err := NewSet([]string{""}, nil)
	assert.Error(t, err)
	_, err = NewSet(nil, []string{"!"})
	assert.Error(t, err)
}

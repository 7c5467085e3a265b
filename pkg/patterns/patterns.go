// Package patterns matches import paths and type names against
// gitignore-style glob patterns. eventbinder uses it to pick the packages and
// owner types it generates binders for.
//
// Supported syntax: * (any run without /), ** (any number of path
// segments), ? (one character other than /), [...] character classes, a
// trailing / (the directory and everything below it) and a leading ! that
// negates the pattern. A pattern without a slash matches the last path
// element anywhere, so "internal" matches "example.com/app/internal".
package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a compiled pattern.
type Pattern struct {
	raw     string
	negated bool
	re      *regexp.Regexp
}

// Compile compiles a pattern.
func Compile(pattern string) (*Pattern, error) {
	p := &Pattern{raw: pattern}
	if strings.HasPrefix(pattern, "!") {
		p.negated = true
		pattern = pattern[1:]
	}
	pattern = strings.TrimPrefix(pattern, "/")
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern %q", p.raw)
	}

	re, err := regexp.Compile(toRegexp(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", p.raw, err)
	}
	p.re = re
	return p, nil
}

// MustCompile is Compile for patterns known to be valid.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether s matches p.
func (p *Pattern) Match(s string) bool {
	matched := p.re.MatchString(strings.TrimPrefix(s, "/"))
	return matched != p.negated
}

// Match compiles pattern and matches s against it. Invalid patterns match
// nothing.
func Match(pattern, s string) bool {
	p, err := Compile(pattern)
	if err != nil {
		return false
	}
	return p.Match(s)
}

// toRegexp translates a glob, already stripped of ! and a leading /.
func toRegexp(glob string) string {
	dir := strings.HasSuffix(glob, "/")
	glob = strings.TrimSuffix(glob, "/")

	var b strings.Builder
	b.WriteString("^")
	if !strings.Contains(glob, "/") {
		// Slash-free patterns match the last element at any depth.
		b.WriteString("(?:.*/)?")
	}

	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch {
		case c == '*' && strings.HasPrefix(glob[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 2
		case c == '*' && strings.HasPrefix(glob[i:], "**"):
			if i > 0 && glob[i-1] == '/' {
				// "a/**" also matches "a" itself.
				s := strings.TrimSuffix(b.String(), "/")
				b.Reset()
				b.WriteString(s)
				b.WriteString("(?:/.*)?")
			} else {
				b.WriteString(".*")
			}
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		case c == '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(strings.ReplaceAll(glob[i:i+end+2], `\`, `\\`))
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	if dir {
		b.WriteString("(?:/.*)?")
	}
	b.WriteString("$")
	return b.String()
}

// Set is an include/exclude pair. An empty include list includes everything;
// excludes win over includes.
type Set struct {
	include []*Pattern
	exclude []*Pattern
}

// NewSet compiles include and exclude patterns.
func NewSet(include, exclude []string) (*Set, error) {
	s := &Set{}
	for _, raw := range include {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		s.include = append(s.include, p)
	}
	for _, raw := range exclude {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		s.exclude = append(s.exclude, p)
	}
	return s, nil
}

// Allow reports whether s passes the set. A nil Set allows everything.
func (s *Set) Allow(v string) bool {
	if s == nil {
		return true
	}
	if len(s.include) > 0 && !anyMatch(s.include, v) {
		return false
	}
	return !anyMatch(s.exclude, v)
}

// Empty reports whether the set has no patterns.
func (s *Set) Empty() bool {
	return s == nil || len(s.include)+len(s.exclude) == 0
}

// Filter returns the elements of values the set allows, in order.
func (s *Set) Filter(values []string) []string {
	var out []string
	for _, v := range values {
		if s.Allow(v) {
			out = append(out, v)
		}
	}
	return out
}

func anyMatch(ps []*Pattern, v string) bool {
	for _, p := range ps {
		if p.Match(v) {
			return true
		}
	}
	return false
}

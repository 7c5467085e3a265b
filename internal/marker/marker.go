// Package marker parses //eventbinder:handler directive comments.
//
// A marker is a directive comment placed in the doc comment of a method:
//
//	//eventbinder:handler
//	func (p *Presenter) onProfileLoaded(e ProfileLoaded) { ... }
//
//	//eventbinder:handler handles=EventOne,events.EventTwo
//	func (p *Presenter) onEither() { ... }
//
// Like other Go directives there is no space after the slashes. A trailing
// "//" comment on the directive line is ignored.
package marker

import (
	"fmt"
	"go/ast"
	"strings"
)

const (
	// Prefix starts every eventbinder directive comment.
	Prefix = "//eventbinder:"

	// Directive is the comment prefix that introduces a marker.
	Directive = Prefix + "handler"

	// OptionHandles is the only option a marker accepts.
	OptionHandles = "handles"
)

// Marker is one parsed directive.
type Marker struct {
	// Handles lists event type expressions in declaration order. Empty means
	// the method's single parameter type is the event type.
	Handles []string
}

// IsDirective reports whether text is an eventbinder directive comment,
// including malformed or misspelled ones such as "//eventbinder:handler," and
// "//eventbinder:handlers". Parse rejects those. Text must be a raw comment
// as found in ast.Comment.Text.
func IsDirective(text string) bool {
	return strings.HasPrefix(text, Prefix)
}

// Parse parses a raw directive comment.
func Parse(text string) (Marker, error) {
	if !IsDirective(text) {
		return Marker{}, fmt.Errorf("not an %s directive", Directive[2:])
	}

	rest := strings.TrimPrefix(text, Directive)
	if len(rest) == len(text) || (rest != "" && isIdentChar(rest[0])) {
		name := text[2:]
		if i := strings.IndexAny(name, " \t"); i >= 0 {
			name = name[:i]
		}
		return Marker{}, fmt.Errorf("unknown directive %q, want %s", name, Directive[2:])
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return Marker{}, fmt.Errorf("malformed %s directive: %q", Directive[2:], text)
	}
	if i := strings.Index(rest, "//"); i >= 0 {
		rest = rest[:i]
	}

	var m Marker
	seenHandles := false
	for _, field := range strings.Fields(rest) {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return Marker{}, fmt.Errorf("option %q must have the form name=value", field)
		}
		if name != OptionHandles {
			return Marker{}, fmt.Errorf("unknown option %q", name)
		}
		if seenHandles {
			return Marker{}, fmt.Errorf("option %q given more than once", name)
		}
		seenHandles = true

		handles, err := ParseHandles(value)
		if err != nil {
			return Marker{}, err
		}
		m.Handles = handles
	}

	return m, nil
}

// ParseHandles splits a comma separated handles list. The list must not be
// empty and must not repeat an element.
func ParseHandles(value string) ([]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("option %q has an empty list", OptionHandles)
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("option %q has an empty element in %q", OptionHandles, value)
		}
		if seen[p] {
			return nil, fmt.Errorf("event type %s listed more than once", p)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Find returns the marker comments in a doc comment group.
func Find(doc *ast.CommentGroup) []*ast.Comment {
	if doc == nil {
		return nil
	}
	var out []*ast.Comment
	for _, c := range doc.List {
		if IsDirective(c.Text) {
			out = append(out, c)
		}
	}
	return out
}

// Stray returns marker comments in f that are not part of the doc comment of
// a method declaration. Markers attach to methods only, so every result is a
// configuration error.
func Stray(f *ast.File) []*ast.Comment {
	attached := make(map[*ast.Comment]bool)
	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil {
			continue
		}
		for _, c := range Find(fd.Doc) {
			attached[c] = true
		}
	}

	var out []*ast.Comment
	for _, cg := range f.Comments {
		for _, c := range cg.List {
			if IsDirective(c.Text) && !attached[c] {
				out = append(out, c)
			}
		}
	}
	return out
}

func isIdentChar(b byte) bool {
	return b == '_' || b == '-' || b == '.' ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

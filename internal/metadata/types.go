// Package metadata holds the declarative handler table: the handler
// declarations read from directives or table files, and the resolved table
// the generator writes out for review.
package metadata

import (
	"fmt"
	"go/token"
)

// Source tells where a declaration was authored.
type Source string

const (
	SourceDirective Source = "directive"
	SourceTable     Source = "table"
)

// Declaration is one handler declaration before type resolution.
type Declaration struct {
	Package string   `yaml:"package" json:"package"`
	Type    string   `yaml:"type" json:"type"`
	Method  string   `yaml:"method" json:"method"`
	Handles []string `yaml:"handles,omitempty" json:"handles,omitempty"`

	Source   Source         `yaml:"-" json:"-"`
	Position token.Position `yaml:"-" json:"-"`
}

// ID returns the method identifier of d, e.g. "example.com/app.Presenter.onSave".
func (d Declaration) ID() string {
	return fmt.Sprintf("%s.%s.%s", d.Package, d.Type, d.Method)
}

// Where returns a printable origin for d.
func (d Declaration) Where() string {
	if d.Position.IsValid() {
		return d.Position.String()
	}
	if d.Position.Filename != "" {
		return d.Position.Filename
	}
	return string(d.Source)
}

// DeclarationFile is the input table format.
type DeclarationFile struct {
	Handlers []Declaration `yaml:"handlers" json:"handlers"`
}

// Table is the resolved handler table.
type Table struct {
	Packages []*PackageTable `yaml:"packages" json:"packages"`
}

// PackageTable lists the owners of one package.
type PackageTable struct {
	Path   string        `yaml:"path" json:"path"`
	Name   string        `yaml:"name" json:"name"`
	Output string        `yaml:"output,omitempty" json:"output,omitempty"`
	Owners []*OwnerTable `yaml:"owners" json:"owners"`
}

// OwnerTable lists the handlers of one receiver type.
type OwnerTable struct {
	Type     string          `yaml:"type" json:"type"`
	Pointer  bool            `yaml:"pointer" json:"pointer"`
	Binder   string          `yaml:"binder" json:"binder"`
	Handlers []*HandlerTable `yaml:"handlers" json:"handlers"`
}

// HandlerTable is one validated handler method.
type HandlerTable struct {
	Method  string   `yaml:"method" json:"method"`
	Param   string   `yaml:"param,omitempty" json:"param,omitempty"`
	Handles []string `yaml:"handles" json:"handles"`
	Source  Source   `yaml:"source" json:"source"`
}

// Len returns the number of registrations in t: one per handler per event
// type.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, p := range t.Packages {
		for _, o := range p.Owners {
			for _, h := range o.Handlers {
				n += len(h.Handles)
			}
		}
	}
	return n
}

// ByPackage groups the declarations of f by package path.
func (f *DeclarationFile) ByPackage() map[string][]Declaration {
	out := make(map[string][]Declaration)
	if f == nil {
		return out
	}
	for _, d := range f.Handlers {
		out[d.Package] = append(out[d.Package], d)
	}
	return out
}

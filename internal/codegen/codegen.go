// Package codegen renders the Go source that binds handler methods to an
// event bus through the binder package.
package codegen

import (
	"bytes"
	"fmt"
	"go/types"
	"path"
	"sort"
	"strconv"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/ehabterra/eventbinder/internal/check"
)

const (
	// DefaultBinderImport is the import path of the runtime package.
	DefaultBinderImport = "github.com/ehabterra/eventbinder/binder"

	// DefaultFilename is the name of the generated file in each package.
	DefaultFilename = "eventbinder_gen.go"

	// Header is the first line of every generated file.
	Header = "// Code generated by eventbinder. DO NOT EDIT."

	binderName = "binder"
)

// Options tune the rendered file.
type Options struct {
	// Filename is the target file name, used for formatting only.
	Filename string
	// BinderImport overrides the runtime package import path.
	BinderImport string
}

type fileData struct {
	Package string
	Imports []importSpec
	Binder  string
	Owners  []ownerData
}

type importSpec struct {
	// Alias is empty when the local name is the last path element.
	Alias string
	Path  string
}

type ownerData struct {
	Var     string
	Type    string
	Entries []entryData
}

type entryData struct {
	Method string
	Quoted string
	Event  string
	// Pass is false when the method takes no parameter.
	Pass bool
}

var fileTemplate = template.Must(template.New("file").Parse(`// Code generated by eventbinder. DO NOT EDIT.

package {{.Package}}

import (
{{- range .Imports}}
	{{with .Alias}}{{.}} {{end}}{{printf "%q" .Path}}
{{- end}}
)
{{range $o := .Owners}}
// {{$o.Var}} binds the eventbinder:handler methods of {{$o.Type}}.
var {{$o.Var}} = {{$.Binder}}.New(
{{- range $o.Entries}}
	{{$.Binder}}.Handle({{.Quoted}}, func(owner {{$o.Type}}, {{if .Pass}}event{{else}}_{{end}} {{.Event}}) { owner.{{.Method}}({{if .Pass}}event{{end}}) }),
{{- end}}
)
{{end}}`))

// Generate renders the generated file for res. res must be free of
// diagnostics and have at least one owner.
func Generate(res *check.Result, opts Options) ([]byte, error) {
	if res == nil || res.Package == nil {
		return nil, fmt.Errorf("codegen: nil check result")
	}
	if !res.OK() {
		return nil, fmt.Errorf("codegen: package %s has %d diagnostics", res.Package.Path(), len(res.Diagnostics))
	}
	if len(res.Owners) == 0 {
		return nil, fmt.Errorf("codegen: package %s has no handlers", res.Package.Path())
	}
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	if opts.BinderImport == "" {
		opts.BinderImport = DefaultBinderImport
	}

	names := newImportNames(res.Package)
	data := fileData{Package: res.Package.Name()}

	if res.Package.Path() == opts.BinderImport {
		return nil, fmt.Errorf("codegen: cannot generate into the binder package itself")
	}
	data.Binder = names.add(opts.BinderImport, binderName)

	qualifier := func(p *types.Package) string {
		if p == res.Package {
			return ""
		}
		return names.add(p.Path(), p.Name())
	}

	for _, o := range res.Owners {
		od := ownerData{
			Var:  o.BinderName(),
			Type: types.TypeString(o.Type(), qualifier),
		}
		for _, b := range o.Bindings {
			for _, e := range b.Events {
				od.Entries = append(od.Entries, entryData{
					Method: b.Method,
					Quoted: strconv.Quote(b.Method),
					Event:  types.TypeString(e, qualifier),
					Pass:   b.Param != nil,
				})
			}
		}
		data.Owners = append(data.Owners, od)
	}
	data.Imports = names.specs()

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("codegen: render %s: %w", res.Package.Path(), err)
	}

	out, err := imports.Process(opts.Filename, buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("codegen: format %s: %w\n%s", res.Package.Path(), err, buf.Bytes())
	}
	return out, nil
}

// importNames assigns a distinct local name to every imported path.
type importNames struct {
	scope  *types.Scope
	byPath map[string]string
	taken  map[string]bool
}

func newImportNames(pkg *types.Package) *importNames {
	return &importNames{
		scope:  pkg.Scope(),
		byPath: make(map[string]string),
		taken:  make(map[string]bool),
	}
}

func (n *importNames) add(importPath, name string) string {
	if got, ok := n.byPath[importPath]; ok {
		return got
	}
	candidate := name
	for i := 2; n.taken[candidate] || n.scope.Lookup(candidate) != nil; i++ {
		candidate = name + strconv.Itoa(i)
	}
	n.byPath[importPath] = candidate
	n.taken[candidate] = true
	return candidate
}

func (n *importNames) specs() []importSpec {
	out := make([]importSpec, 0, len(n.byPath))
	for p, name := range n.byPath {
		spec := importSpec{Path: p}
		if name != path.Base(p) {
			spec.Alias = name
		}
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Package check resolves handler declarations against a type-checked
// package and enforces the handler rules:
//
//   - a declaration without a handles list needs exactly one parameter, whose
//     type is the only event type handled;
//   - a declaration with a handles list may omit the parameter; if it has
//     one, every listed event type must be assignable to it;
//   - markers attach to methods only, and handler methods return nothing.
//
// Violations are reported as diagnostics, never as runtime failures.
package check

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"sort"
	"strings"

	"github.com/ehabterra/eventbinder/internal/marker"
	"github.com/ehabterra/eventbinder/internal/metadata"
)

// Input is one type-checked package.
type Input struct {
	Fset  *token.FileSet
	Pkg   *types.Package
	Info  *types.Info
	Files []*ast.File

	// KeepOwner filters receiver types by name. Nil keeps all of them.
	// Declarations of dropped owners are neither validated nor bound.
	KeepOwner func(name string) bool
}

// Diagnostic is one configuration error.
type Diagnostic struct {
	Pos      token.Pos
	Position token.Position
	Message  string
}

func (d Diagnostic) String() string {
	if d.Position.Filename == "" {
		return d.Message
	}
	return fmt.Sprintf("%s: %s", d.Position, d.Message)
}

// Binding is a validated handler method.
type Binding struct {
	Method string
	// Param is the parameter type, or nil when the method takes none.
	Param types.Type
	// Events are the handled event types in declaration order.
	Events   []types.Type
	Source   metadata.Source
	Position token.Position

	pos token.Pos
}

// Owner is a receiver type with at least one handler method.
type Owner struct {
	Named *types.Named
	// Pointer is set when any handler method has a pointer receiver, which
	// makes *T the owner type the binder is instantiated with.
	Pointer  bool
	Bindings []*Binding
}

// Name returns the owner's type name.
func (o *Owner) Name() string {
	return o.Named.Obj().Name()
}

// Type returns the type generated code binds, T or *T.
func (o *Owner) Type() types.Type {
	if o.Pointer {
		return types.NewPointer(o.Named)
	}
	return o.Named
}

// BinderName returns the name of the generated binder variable. It is
// exported exactly when the owner type is.
func (o *Owner) BinderName() string {
	return o.Name() + "EventBinder"
}

// Result is the outcome of checking one package.
type Result struct {
	Package     *types.Package
	Owners      []*Owner
	Diagnostics []Diagnostic
}

// OK reports whether the package has no diagnostics.
func (r *Result) OK() bool {
	return len(r.Diagnostics) == 0
}

// Registrations returns the number of (event type, method) pairs.
func (r *Result) Registrations() int {
	n := 0
	for _, o := range r.Owners {
		for _, b := range o.Bindings {
			n += len(b.Events)
		}
	}
	return n
}

// pending is a declaration matched to its method, not yet validated.
type pending struct {
	fn      *types.Func
	handles []string
	source  metadata.Source
	pos     token.Pos
	where   token.Position
	// scope is the position type expressions are evaluated at.
	scope token.Pos
}

type checker struct {
	in    Input
	diags []Diagnostic
}

// Package checks the directives in the files of in plus the table entries
// decls, which must belong to the same package.
func Package(in Input, decls []metadata.Declaration) *Result {
	c := &checker{in: in}

	var pend []*pending
	byMethod := make(map[*types.Func]*pending)
	add := func(p *pending) {
		if prev, ok := byMethod[p.fn]; ok {
			c.reportAt(p.pos, p.where, "handler %s declared more than once (also at %s)",
				methodName(p.fn), prev.where)
			return
		}
		byMethod[p.fn] = p
		pend = append(pend, p)
	}

	for _, f := range in.Files {
		if ast.IsGenerated(f) {
			continue
		}
		for _, p := range c.scanFile(f) {
			add(p)
		}
	}
	for _, d := range decls {
		if p := c.lookupDeclaration(d); p != nil {
			add(p)
		}
	}

	owners := make(map[*types.Named]*Owner)
	for _, p := range pend {
		named, ptr, ok := c.receiver(p)
		if !ok {
			continue
		}
		if in.KeepOwner != nil && !in.KeepOwner(named.Obj().Name()) {
			continue
		}
		b := c.validate(p)
		if b == nil {
			continue
		}
		o := owners[named]
		if o == nil {
			o = &Owner{Named: named}
			owners[named] = o
		}
		o.Pointer = o.Pointer || ptr
		o.Bindings = append(o.Bindings, b)
	}

	res := &Result{Package: in.Pkg}
	for _, o := range owners {
		sort.SliceStable(o.Bindings, func(i, j int) bool {
			return o.Bindings[i].pos < o.Bindings[j].pos
		})
		res.Owners = append(res.Owners, o)
	}
	sort.Slice(res.Owners, func(i, j int) bool {
		return res.Owners[i].Name() < res.Owners[j].Name()
	})
	for _, o := range res.Owners {
		c.checkBinderName(o)
	}

	sortDiagnostics(c.diags)
	res.Diagnostics = c.diags
	return res
}

// scanFile collects the marked methods of f and reports misplaced markers.
func (c *checker) scanFile(f *ast.File) []*pending {
	var out []*pending

	reported := make(map[*ast.Comment]bool)
	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		found := marker.Find(fd.Doc)
		if len(found) == 0 {
			continue
		}
		if fd.Recv == nil {
			for _, cm := range found {
				reported[cm] = true
				c.report(cm.Pos(), "eventbinder:handler marker on function %s: markers attach to methods only", fd.Name.Name)
			}
			continue
		}
		if len(found) > 1 {
			c.report(found[1].Pos(), "method %s has more than one eventbinder:handler marker", fd.Name.Name)
			continue
		}

		m, err := marker.Parse(found[0].Text)
		if err != nil {
			c.report(found[0].Pos(), "invalid eventbinder:handler marker on %s: %v", fd.Name.Name, err)
			continue
		}

		fn, _ := c.in.Info.Defs[fd.Name].(*types.Func)
		if fn == nil {
			// The package did not type-check; the type error says why.
			continue
		}
		out = append(out, &pending{
			fn:      fn,
			handles: m.Handles,
			source:  metadata.SourceDirective,
			pos:     found[0].Pos(),
			where:   c.in.Fset.Position(found[0].Pos()),
			scope:   found[0].Pos(),
		})
	}

	for _, cm := range marker.Stray(f) {
		if !reported[cm] {
			c.report(cm.Pos(), "eventbinder:handler marker must be attached to a method declaration")
		}
	}
	return out
}

// checkBinderName reports a package-level declaration that takes the name of
// o's generated binder variable. Declarations in generated files are ours
// and get replaced.
func (c *checker) checkBinderName(o *Owner) {
	obj := c.in.Pkg.Scope().Lookup(o.BinderName())
	if obj == nil || c.inGeneratedFile(obj.Pos()) {
		return
	}
	b := o.Bindings[0]
	c.reportAt(b.pos, b.Position, "binder variable %s for %s conflicts with the declaration at %s",
		o.BinderName(), o.Name(), c.in.Fset.Position(obj.Pos()))
}

func (c *checker) inGeneratedFile(pos token.Pos) bool {
	tf := c.in.Fset.File(pos)
	if tf == nil {
		return false
	}
	for _, f := range c.in.Files {
		if c.in.Fset.File(f.Pos()) == tf {
			return ast.IsGenerated(f)
		}
	}
	return false
}

// lookupDeclaration matches a table entry to a method of the package.
func (c *checker) lookupDeclaration(d metadata.Declaration) *pending {
	where := d.Position
	if where.Filename == "" {
		where.Filename = d.Where()
	}

	if d.Package != c.in.Pkg.Path() {
		c.reportAt(token.NoPos, where, "handler entry %s belongs to package %s, not %s", d.ID(), d.Package, c.in.Pkg.Path())
		return nil
	}

	obj := c.in.Pkg.Scope().Lookup(d.Type)
	tn, ok := obj.(*types.TypeName)
	if !ok {
		c.reportAt(token.NoPos, where, "handler entry %s: %s is not a type in %s", d.ID(), d.Type, d.Package)
		return nil
	}
	named, ok := tn.Type().(*types.Named)
	if !ok {
		c.reportAt(token.NoPos, where, "handler entry %s: %s is not a named type", d.ID(), d.Type)
		return nil
	}

	var fn *types.Func
	for i := 0; i < named.NumMethods(); i++ {
		if m := named.Method(i); m.Name() == d.Method {
			fn = m
			break
		}
	}
	if fn == nil {
		c.reportAt(token.NoPos, where, "handler entry %s: type %s has no method %s", d.ID(), d.Type, d.Method)
		return nil
	}

	if len(d.Handles) > 0 {
		if _, err := marker.ParseHandles(strings.Join(d.Handles, ",")); err != nil {
			c.reportAt(token.NoPos, where, "handler entry %s: %v", d.ID(), err)
			return nil
		}
	}

	return &pending{
		fn:      fn,
		handles: d.Handles,
		source:  metadata.SourceTable,
		pos:     token.NoPos,
		where:   where,
		scope:   token.NoPos,
	}
}

// receiver returns the named receiver type of p's method.
func (c *checker) receiver(p *pending) (*types.Named, bool, bool) {
	sig := p.fn.Type().(*types.Signature)
	recv := sig.Recv()
	if recv == nil {
		c.reportAt(p.pos, p.where, "%s is not a method", p.fn.Name())
		return nil, false, false
	}

	t := recv.Type()
	ptr := false
	if pt, ok := t.(*types.Pointer); ok {
		t = pt.Elem()
		ptr = true
	}
	named, ok := t.(*types.Named)
	if !ok {
		c.reportAt(p.pos, p.where, "handler %s has an unsupported receiver type %s", p.fn.Name(), recv.Type())
		return nil, false, false
	}
	if named.TypeParams().Len() > 0 {
		c.reportAt(p.pos, p.where, "handler %s is declared on generic type %s; generic owners are not supported",
			methodName(p.fn), named.Obj().Name())
		return nil, false, false
	}
	return named, ptr, true
}

// validate applies the handler rules to p.
func (c *checker) validate(p *pending) *Binding {
	sig := p.fn.Type().(*types.Signature)
	name := methodName(p.fn)
	params := sig.Params()

	if sig.Results().Len() != 0 {
		c.reportAt(p.pos, p.where, "handler %s must not return values", name)
		return nil
	}
	if sig.Variadic() {
		c.reportAt(p.pos, p.where, "handler %s must not be variadic", name)
		return nil
	}

	b := &Binding{
		Method:   p.fn.Name(),
		Source:   p.source,
		Position: p.where,
		pos:      p.fn.Pos(),
	}
	if params.Len() == 1 {
		b.Param = params.At(0).Type()
	}

	if len(p.handles) == 0 {
		if params.Len() != 1 {
			c.reportAt(p.pos, p.where, "handler %s has no handles list and must take exactly one parameter, found %d",
				name, params.Len())
			return nil
		}
		b.Events = []types.Type{b.Param}
		return b
	}

	if params.Len() > 1 {
		c.reportAt(p.pos, p.where, "handler %s must take at most one parameter when handles is set, found %d",
			name, params.Len())
		return nil
	}

	ok := true
	seen := make(map[string]bool, len(p.handles))
	for _, expr := range p.handles {
		t, err := resolveType(c.in.Fset, c.in.Pkg, p.scope, expr)
		if err != nil {
			c.reportAt(p.pos, p.where, "handler %s: cannot resolve event type %s: %v", name, expr, err)
			ok = false
			continue
		}
		key := types.TypeString(t, nil)
		if seen[key] {
			c.reportAt(p.pos, p.where, "handler %s lists event type %s more than once", name, key)
			ok = false
			continue
		}
		seen[key] = true

		if b.Param != nil && !types.AssignableTo(t, b.Param) {
			c.reportAt(p.pos, p.where, "handler %s: event type %s is not assignable to parameter type %s",
				name, types.TypeString(t, types.RelativeTo(c.in.Pkg)), types.TypeString(b.Param, types.RelativeTo(c.in.Pkg)))
			ok = false
			continue
		}
		b.Events = append(b.Events, t)
	}
	if !ok {
		return nil
	}
	return b
}

func (c *checker) report(pos token.Pos, format string, args ...interface{}) {
	c.reportAt(pos, c.in.Fset.Position(pos), format, args...)
}

func (c *checker) reportAt(pos token.Pos, where token.Position, format string, args ...interface{}) {
	c.diags = append(c.diags, Diagnostic{
		Pos:      pos,
		Position: where,
		Message:  fmt.Sprintf(format, args...),
	})
}

func methodName(fn *types.Func) string {
	sig := fn.Type().(*types.Signature)
	if sig.Recv() == nil {
		return fn.Name()
	}
	t := sig.Recv().Type()
	if pt, ok := t.(*types.Pointer); ok {
		t = pt.Elem()
	}
	if named, ok := t.(*types.Named); ok {
		return named.Obj().Name() + "." + fn.Name()
	}
	return fn.Name()
}

func sortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i].Position, diags[j].Position
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

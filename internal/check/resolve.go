package check

import (
	"errors"
	"fmt"
	"go/token"
	"go/types"
	"strings"
)

// resolveType evaluates an event type expression in pkg.
//
// Three spellings are accepted: a type expression valid at pos ("EventOne",
// "*EventOne", "events.EventTwo" with the file's imports), and a fully
// qualified "import/path.Name" with optional leading stars. A qualified name
// whose path has no slash ("testapp.Saved") is tried when the expression does
// not evaluate. pos may be token.NoPos, in which case only the package scope
// is visible.
func resolveType(fset *token.FileSet, pkg *types.Package, pos token.Pos, expr string) (types.Type, error) {
	expr = strings.TrimSpace(expr)
	stars := len(expr) - len(strings.TrimLeft(expr, "*"))
	base := expr[stars:]

	if strings.Contains(base, "/") {
		t, err := resolveQualified(pkg, base)
		if err != nil {
			return nil, err
		}
		for i := 0; i < stars; i++ {
			t = types.NewPointer(t)
		}
		return t, nil
	}

	tv, err := types.Eval(fset, pkg, pos, expr)
	if err != nil {
		if t, ok := resolveBarePath(pkg, base); ok {
			for i := 0; i < stars; i++ {
				t = types.NewPointer(t)
			}
			return t, nil
		}
		var terr types.Error
		if errors.As(err, &terr) {
			return nil, errors.New(terr.Msg)
		}
		return nil, err
	}
	if !tv.IsType() {
		return nil, fmt.Errorf("%s is not a type", expr)
	}
	return tv.Type, nil
}

// resolveQualified looks up "import/path.Name" in pkg or any package it
// imports, directly or not.
func resolveQualified(pkg *types.Package, qualified string) (types.Type, error) {
	dot := strings.LastIndex(qualified, ".")
	slash := strings.LastIndex(qualified, "/")
	if dot < slash || dot == len(qualified)-1 {
		return nil, fmt.Errorf("%s must have the form import/path.Name", qualified)
	}
	path, name := qualified[:dot], qualified[dot+1:]

	target := findPackage(pkg, path)
	if target == nil {
		return nil, fmt.Errorf("package %s is not imported by %s", path, pkg.Path())
	}

	obj := target.Scope().Lookup(name)
	if obj == nil {
		return nil, fmt.Errorf("undefined: %s", qualified)
	}
	tn, ok := obj.(*types.TypeName)
	if !ok {
		return nil, fmt.Errorf("%s is not a type", qualified)
	}
	if target != pkg && !tn.Exported() {
		return nil, fmt.Errorf("%s is not exported", qualified)
	}
	return tn.Type(), nil
}

// resolveBarePath resolves "path.Name" when path is the full import path of
// pkg or a package it imports.
func resolveBarePath(pkg *types.Package, qualified string) (types.Type, bool) {
	dot := strings.LastIndex(qualified, ".")
	if dot <= 0 || findPackage(pkg, qualified[:dot]) == nil {
		return nil, false
	}
	t, err := resolveQualified(pkg, qualified)
	return t, err == nil
}

func findPackage(root *types.Package, path string) *types.Package {
	seen := make(map[*types.Package]bool)
	queue := []*types.Package{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if seen[p] {
			continue
		}
		seen[p] = true
		if p.Path() == path {
			return p
		}
		queue = append(queue, p.Imports()...)
	}
	return nil
}

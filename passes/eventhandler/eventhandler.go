// Package eventhandler defines an Analyzer that reports invalid
// //eventbinder:handler markers.
//
// # Analyzer eventhandler
//
// eventhandler: check eventbinder handler declarations
//
// A method marked //eventbinder:handler without a handles list must take
// exactly one parameter, the event type. With a handles list it may take no
// parameter, or one parameter every listed event type is assignable to.
// Handlers must not return values or be variadic, and markers must be
// attached to method declarations.
package eventhandler

import (
	"go/types"
	"reflect"
	"strings"

	"golang.org/x/tools/go/analysis"

	"github.com/ehabterra/eventbinder/internal/check"
	"github.com/ehabterra/eventbinder/pkg/patterns"
)

const Doc = `check eventbinder handler declarations

A method marked //eventbinder:handler without a handles list must take
exactly one parameter, the event type. With a handles list it may take no
parameter, or one parameter every listed event type is assignable to.`

var Analyzer = &analysis.Analyzer{
	Name:       "eventhandler",
	Doc:        Doc,
	URL:        "https://pkg.go.dev/github.com/ehabterra/eventbinder/passes/eventhandler",
	Run:        run,
	ResultType: reflect.TypeOf((*Result)(nil)),
}

var excludeTypes string

func init() {
	Analyzer.Flags.StringVar(&excludeTypes, "exclude-types", "", "comma-separated glob patterns of owner types to skip")
}

// Handler is one validated handler method.
type Handler struct {
	Owner  *types.TypeName
	Method string
	Events []types.Type
}

// Result lists the handlers of the analyzed package.
type Result struct {
	Handlers []Handler
}

func run(pass *analysis.Pass) (interface{}, error) {
	var exclude []string
	if excludeTypes != "" {
		exclude = strings.Split(excludeTypes, ",")
	}
	filter, err := patterns.NewSet(nil, exclude)
	if err != nil {
		return nil, err
	}

	res := check.Package(check.Input{
		Fset:      pass.Fset,
		Pkg:       pass.Pkg,
		Info:      pass.TypesInfo,
		Files:     pass.Files,
		KeepOwner: filter.Allow,
	}, nil)

	for _, d := range res.Diagnostics {
		if d.Pos.IsValid() {
			pass.Reportf(d.Pos, "%s", d.Message)
		}
	}

	out := &Result{}
	for _, o := range res.Owners {
		for _, b := range o.Bindings {
			out.Handlers = append(out.Handlers, Handler{
				Owner:  o.Named.Obj(),
				Method: b.Method,
				Events: b.Events,
			})
		}
	}
	return out, nil
}

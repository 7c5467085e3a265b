package check

import (
	"go/types"

	"github.com/ehabterra/eventbinder/internal/metadata"
)

// Table converts r to its table form. Types are written with their full
// import path, a spelling declaration files accept in handles lists. The
// table itself is a report and does not load as a declaration file.
func (r *Result) Table() *metadata.PackageTable {
	pt := &metadata.PackageTable{
		Path:   r.Package.Path(),
		Name:   r.Package.Name(),
		Owners: make([]*metadata.OwnerTable, 0, len(r.Owners)),
	}

	for _, o := range r.Owners {
		ot := &metadata.OwnerTable{
			Type:     o.Name(),
			Pointer:  o.Pointer,
			Binder:   o.BinderName(),
			Handlers: make([]*metadata.HandlerTable, 0, len(o.Bindings)),
		}
		for _, b := range o.Bindings {
			ht := &metadata.HandlerTable{
				Method: b.Method,
				Source: b.Source,
			}
			if b.Param != nil {
				ht.Param = types.TypeString(b.Param, nil)
			}
			for _, e := range b.Events {
				ht.Handles = append(ht.Handles, types.TypeString(e, nil))
			}
			ot.Handlers = append(ot.Handlers, ht)
		}
		pt.Owners = append(pt.Owners, ot)
	}
	return pt
}

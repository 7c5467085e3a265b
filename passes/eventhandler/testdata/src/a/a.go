package a

type A struct{}
type B struct{}

type Any interface{}

type Presenter struct{}

//eventbinder:handler
func (p *Presenter) onA(a A) {}

//eventbinder:handler handles=A,B
func (p *Presenter) onEither() {}

//eventbinder:handler handles=A,*B
func (p *Presenter) onAny(e Any) {}

//eventbinder:handler // want "must take exactly one parameter, found 2"
func (p *Presenter) onBoth(a A, b B) {}

//eventbinder:handler // want "must take exactly one parameter, found 0"
func (p *Presenter) onNothing() {}

//eventbinder:handler handles=A,B // want "event type B is not assignable to parameter type A"
func (p *Presenter) onWrong(a A) {}

//eventbinder:handler handles=A // want "must take at most one parameter when handles is set, found 2"
func (p *Presenter) onPair(a, b A) {}

//eventbinder:handler // want "must not return values"
func (p *Presenter) onResult(a A) error { return nil }

//eventbinder:handler handles=A // want "must not be variadic"
func (p *Presenter) onMany(as ...A) {}

//eventbinder:handler handles=Missing // want "cannot resolve event type Missing: undefined: Missing"
func (p *Presenter) onMissing() {}

//eventbinder:handler priority=1 // want "unknown option"
func (p *Presenter) onOption(a A) {}

//eventbinder:handlers handles=A // want `unknown directive "eventbinder:handlers"`
func (p *Presenter) onTypo() {}

//eventbinder:handler
//eventbinder:handler // want "has more than one eventbinder:handler marker"
func (p *Presenter) onTwice(a A) {}

type view struct{}

//eventbinder:handler
func (v view) onB(b B) {}

type Box[T any] struct{}

//eventbinder:handler // want "generic owners are not supported"
func (b *Box[T]) onA(a A) {}

//eventbinder:handler // want "markers attach to methods only"
func helper(a A) {}

//eventbinder:handler // want "must be attached to a method declaration"
type Stray struct{}

//eventbinder:handler2 // want "must be attached to a method declaration"
type Misspelled struct{}

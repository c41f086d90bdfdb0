package mir

// Builder assembles a Body incrementally. Locals are created with Safe set;
// the outermost scope exists from the start.
type Builder struct {
	body  *Body
	cur   BlockID
	scope ScopeID
	span  Span
}

// NewBuilder starts a body for fn whose return place has type ret.
func NewBuilder(fn FuncID, ret Type) *Builder {
	b := &Builder{body: &Body{
		Func:   fn,
		Locals: []LocalDecl{{Name: "ret", Ty: ret, Safe: true}},
		Scopes: []SourceScope{{Parent: NoScope, Safety: SafetySafe}},
	}}
	b.NewBlock()
	return b
}

// AddArg declares the next argument local. Arguments must be declared before
// any other local.
func (b *Builder) AddArg(name string, ty Type) Local {
	if b.body.ArgCount+1 != len(b.body.Locals) {
		panic("mir: argument declared after a non-argument local")
	}
	b.body.ArgCount++
	return b.AddLocal(name, ty)
}

// AddLocal declares a local.
func (b *Builder) AddLocal(name string, ty Type) Local {
	b.body.Locals = append(b.body.Locals, LocalDecl{Name: name, Ty: ty, Safe: true})
	return Local(len(b.body.Locals) - 1)
}

// AddScope declares a child of parent.
func (b *Builder) AddScope(parent ScopeID, safety Safety) ScopeID {
	b.body.Scopes = append(b.body.Scopes, SourceScope{Parent: parent, Safety: safety})
	return ScopeID(len(b.body.Scopes) - 1)
}

// SetScopes replaces the whole scope tree. scopes[0] must be the root.
func (b *Builder) SetScopes(scopes []SourceScope) {
	b.body.Scopes = append(b.body.Scopes[:0], scopes...)
}

// SetScope sets the scope of instructions pushed from now on.
func (b *Builder) SetScope(s ScopeID) { b.scope = s }

// SetSpan sets the span of instructions pushed from now on.
func (b *Builder) SetSpan(s Span) { b.span = s }

// Scope returns the current scope.
func (b *Builder) Scope() ScopeID { return b.scope }

// NewBlock appends an empty block and makes it current.
func (b *Builder) NewBlock() BlockID {
	b.body.Blocks = append(b.body.Blocks, BasicBlock{})
	b.cur = BlockID(len(b.body.Blocks) - 1)
	return b.cur
}

// ReserveBlock appends an empty block without switching to it.
func (b *Builder) ReserveBlock() BlockID {
	b.body.Blocks = append(b.body.Blocks, BasicBlock{})
	return BlockID(len(b.body.Blocks) - 1)
}

// SwitchTo makes id the current block.
func (b *Builder) SwitchTo(id BlockID) { b.cur = id }

// Current returns the block instructions are appended to.
func (b *Builder) Current() BlockID { return b.cur }

// Terminated reports whether the current block already has a terminator.
func (b *Builder) Terminated() bool { return b.body.Blocks[b.cur].Terminator != nil }

// Push appends a statement to the current block.
func (b *Builder) Push(kind StatementKind) Location {
	bb := &b.body.Blocks[b.cur]
	bb.Statements = append(bb.Statements, Statement{
		Source: SourceInfo{Scope: b.scope, Span: b.span},
		Kind:   kind,
	})
	return Location{Block: b.cur, Index: len(bb.Statements) - 1}
}

// Assign appends place = rv.
func (b *Builder) Assign(place Place, rv Rvalue) Location {
	return b.Push(&Assign{Place: place, Rvalue: rv})
}

// Terminate closes the current block.
func (b *Builder) Terminate(kind TerminatorKind) Location {
	bb := &b.body.Blocks[b.cur]
	if bb.Terminator != nil {
		panic("mir: block " + b.cur.String() + " already terminated")
	}
	bb.Terminator = &Terminator{
		Source: SourceInfo{Scope: b.scope, Span: b.span},
		Kind:   kind,
	}
	return Location{Block: b.cur, Index: len(bb.Statements)}
}

// Call closes the current block with a call that continues in a fresh block,
// which becomes current.
func (b *Builder) Call(fn Operand, args []Operand, dest Place) Location {
	next := b.ReserveBlock()
	loc := b.Terminate(&Call{Func: fn, Args: args, Destination: dest, Target: &next})
	b.SwitchTo(next)
	return loc
}

// Finish validates and returns the body.
func (b *Builder) Finish() (*Body, error) {
	if err := b.body.Validate(); err != nil {
		return nil, err
	}
	return b.body, nil
}

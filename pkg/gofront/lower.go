package gofront

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/715d/ptafilter/internal/analysis"
	"github.com/715d/ptafilter/pkg/mir"
)

// Cast kinds produced by lowering.
const (
	CastConvert         mir.CastKind = "convert"
	CastChangeType      mir.CastKind = "change_type"
	CastChangeInterface mir.CastKind = "change_interface"
	CastMakeInterface   mir.CastKind = "make_interface"
	CastSliceToArrayPtr mir.CastKind = "slice_to_array_pointer"
	CastMultiConvert    mir.CastKind = "multi_convert"
	CastTypeAssert      mir.CastKind = "type_assert"
)

// lowerer turns one SSA function into a mir body. SSA block i becomes mir
// block i; blocks split by calls are appended after them.
type lowerer struct {
	names  *analysis.NameCache
	fn     *ssa.Function
	pc     *pkgContext
	b      *mir.Builder
	scopes *scopeTree
	locals map[ssa.Value]mir.Local
	scope  mir.ScopeID
}

func lowerFunction(names *analysis.NameCache, pc *pkgContext, fn *ssa.Function, opts Options) (*mir.Body, error) {
	sig := fn.Signature
	l := &lowerer{
		names:  names,
		fn:     fn,
		pc:     pc,
		b:      mir.NewBuilder(names.FuncID(fn), resultType(names, sig.Results())),
		scopes: buildScopes(pc, fn, opts),
		locals: map[ssa.Value]mir.Local{},
	}

	for _, p := range fn.Params {
		l.locals[p] = l.b.AddArg(p.Name(), names.Type(p.Type()))
	}
	for _, fv := range fn.FreeVars {
		l.locals[fv] = l.b.AddArg(fv.Name(), names.Type(fv.Type()))
	}
	l.b.SetScopes(l.scopes.scopes)

	for range len(fn.Blocks) - 1 {
		l.b.ReserveBlock()
	}
	for _, bb := range fn.Blocks {
		l.b.SwitchTo(mir.BlockID(bb.Index))
		for _, instr := range bb.Instrs {
			l.setPos(instr.Pos())
			l.instr(bb, instr)
		}
	}

	body, err := l.b.Finish()
	if err != nil {
		return nil, fmt.Errorf("lower %s: %w", fn, err)
	}
	return body, nil
}

func resultType(names *analysis.NameCache, results *types.Tuple) mir.Type {
	switch results.Len() {
	case 0:
		return mir.UnitType
	case 1:
		return names.Type(results.At(0).Type())
	}
	return names.Type(results)
}

func (l *lowerer) setPos(pos token.Pos) {
	if id, ok := l.scopes.scopeAt(pos); ok {
		l.scope = id
	}
	l.b.SetScope(l.scope)
	if pos.IsValid() {
		l.b.SetSpan(l.pc.span(pos))
	}
}

func (l *lowerer) localOf(v ssa.Value) mir.Local {
	if loc, ok := l.locals[v]; ok {
		return loc
	}
	loc := l.b.AddLocal(v.Name(), l.names.Type(v.Type()))
	l.locals[v] = loc
	return loc
}

func (l *lowerer) temp(ty mir.Type) mir.Place {
	return mir.LocalPlace(l.b.AddLocal("", ty))
}

func (l *lowerer) dest(v ssa.Value) mir.Place { return mir.LocalPlace(l.localOf(v)) }

func (l *lowerer) operand(v ssa.Value) mir.Operand {
	switch v := v.(type) {
	case *ssa.Const:
		val := "nil"
		if v.Value != nil {
			val = v.Value.ExactString()
		}
		return mir.Const(&mir.Constant{Ty: l.names.Type(v.Type()), Value: val})
	case *ssa.Function:
		return l.fnOperand(v)
	case *ssa.Builtin:
		return mir.FnOperand(mir.FuncID("builtin." + v.Name()))
	case *ssa.Global:
		return mir.Const(&mir.Constant{Ty: l.names.Type(v.Type()), Value: "&" + v.String()})
	}
	return mir.Copy(mir.LocalPlace(l.localOf(v)))
}

func (l *lowerer) operands(vs []ssa.Value) []mir.Operand {
	out := make([]mir.Operand, 0, len(vs))
	for _, v := range vs {
		if v != nil {
			out = append(out, l.operand(v))
		}
	}
	return out
}

// place returns a local holding v, materializing constants and globals into
// a temporary.
func (l *lowerer) place(v ssa.Value) mir.Place {
	switch v.(type) {
	case *ssa.Const, *ssa.Function, *ssa.Builtin, *ssa.Global:
		tmp := l.temp(l.names.Type(v.Type()))
		l.b.Assign(tmp, &mir.Use{Operand: l.operand(v)})
		return tmp
	}
	return mir.LocalPlace(l.localOf(v))
}

func (l *lowerer) index(base mir.Place, idx ssa.Value) mir.Place {
	if c, ok := idx.(*ssa.Const); ok && c.Value != nil {
		if n, exact := constant.Int64Val(constant.ToInt(c.Value)); exact && n >= 0 {
			return base.Project(mir.ProjectionElem{Kind: mir.ProjConstantIndex, Field: int(n)})
		}
	}
	return base.Index(l.place(idx).Local)
}

func (l *lowerer) fnOperand(f *ssa.Function) mir.Operand {
	if origin := f.Origin(); origin != nil && origin != f {
		return mir.FnOperand(l.names.FuncID(origin), l.names.TypeArgs(f.TypeArgs())...)
	}
	return mir.FnOperand(l.names.FuncID(f))
}

func (l *lowerer) runtimeCall(name string, args []mir.Operand, dest mir.Place) {
	l.b.Call(mir.FnOperand(mir.FuncID("runtime."+name)), args, dest)
}

func (l *lowerer) call(c *ssa.CallCommon, dest mir.Place) {
	if c.IsInvoke() {
		fn := mir.Const(&mir.Constant{
			Ty:    mir.Type{Kind: mir.KindFunc, Name: c.Method.FullName()},
			Value: "invoke " + c.Method.Name(),
		})
		args := append([]mir.Operand{l.operand(c.Value)}, l.operands(c.Args)...)
		l.b.Call(fn, args, dest)
		return
	}
	fn := l.operand(c.Value)
	if callee := c.StaticCallee(); callee != nil {
		fn = l.fnOperand(callee)
	}
	l.b.Call(fn, l.operands(c.Args), dest)
}

func (l *lowerer) cast(kind mir.CastKind, v ssa.Value, x ssa.Value) {
	l.b.Assign(l.dest(v), &mir.Cast{Kind: kind, Operand: l.operand(x), Ty: l.names.Type(v.Type())})
}

// phiCopies assigns the incoming values of every successor's phis at the end
// of from.
func (l *lowerer) phiCopies(from *ssa.BasicBlock) {
	for _, succ := range from.Succs {
		k := -1
		for i, p := range succ.Preds {
			if p == from {
				k = i
				break
			}
		}
		if k < 0 {
			continue
		}
		for _, instr := range succ.Instrs {
			phi, ok := instr.(*ssa.Phi)
			if !ok {
				break
			}
			l.b.Assign(l.dest(phi), &mir.Use{Operand: l.operand(phi.Edges[k])})
		}
	}
}

func (l *lowerer) instr(bb *ssa.BasicBlock, instr ssa.Instruction) {
	b := l.b
	switch v := instr.(type) {
	case *ssa.Phi, *ssa.DebugRef:
		// Phis are assigned in their predecessors.

	case *ssa.Alloc:
		op := "alloca"
		if v.Heap {
			op = "new"
		}
		elem := v.Type().Underlying().(*types.Pointer).Elem()
		b.Assign(l.dest(v), &mir.NullaryOp{Op: op, Ty: l.names.Type(elem)})

	case *ssa.Store:
		b.Assign(l.place(v.Addr).Deref(), &mir.Use{Operand: l.operand(v.Val)})

	case *ssa.UnOp:
		switch {
		case v.Op == token.MUL:
			b.Assign(l.dest(v), &mir.Use{Operand: mir.Copy(l.place(v.X).Deref())})
		case v.Op == token.ARROW && v.CommaOk:
			l.runtimeCall("chanrecv2", l.operands([]ssa.Value{v.X}), l.dest(v))
		case v.Op == token.ARROW:
			l.runtimeCall("chanrecv1", l.operands([]ssa.Value{v.X}), l.dest(v))
		default:
			b.Assign(l.dest(v), &mir.UnaryOp{Op: v.Op.String(), Operand: l.operand(v.X)})
		}

	case *ssa.BinOp:
		b.Assign(l.dest(v), &mir.BinaryOp{Op: v.Op.String(), Left: l.operand(v.X), Right: l.operand(v.Y)})

	case *ssa.Convert:
		l.cast(CastConvert, v, v.X)
	case *ssa.ChangeType:
		l.cast(CastChangeType, v, v.X)
	case *ssa.ChangeInterface:
		l.cast(CastChangeInterface, v, v.X)
	case *ssa.MakeInterface:
		l.cast(CastMakeInterface, v, v.X)
	case *ssa.SliceToArrayPointer:
		l.cast(CastSliceToArrayPtr, v, v.X)
	case *ssa.MultiConvert:
		l.cast(CastMultiConvert, v, v.X)
	case *ssa.TypeAssert:
		l.cast(CastTypeAssert, v, v.X)

	case *ssa.FieldAddr:
		b.Assign(l.dest(v), &mir.AddressOf{Mutable: true, Place: l.place(v.X).Deref().Field(v.Field)})
	case *ssa.Field:
		b.Assign(l.dest(v), &mir.Use{Operand: mir.Copy(l.place(v.X).Field(v.Field))})
	case *ssa.IndexAddr:
		base := l.place(v.X)
		if _, ok := v.X.Type().Underlying().(*types.Pointer); ok {
			base = base.Deref()
		}
		b.Assign(l.dest(v), &mir.AddressOf{Mutable: true, Place: l.index(base, v.Index)})
	case *ssa.Index:
		b.Assign(l.dest(v), &mir.Use{Operand: mir.Copy(l.index(l.place(v.X), v.Index))})
	case *ssa.Lookup:
		if _, ok := v.X.Type().Underlying().(*types.Map); ok {
			name := "mapaccess1"
			if v.CommaOk {
				name = "mapaccess2"
			}
			l.runtimeCall(name, l.operands([]ssa.Value{v.X, v.Index}), l.dest(v))
			return
		}
		b.Assign(l.dest(v), &mir.Use{Operand: mir.Copy(l.index(l.place(v.X), v.Index))})
	case *ssa.Extract:
		b.Assign(l.dest(v), &mir.Use{Operand: mir.Copy(l.place(v.Tuple).Field(v.Index))})

	case *ssa.MakeClosure:
		fn := v.Fn.(*ssa.Function)
		b.Assign(l.dest(v), &mir.Aggregate{
			Kind:     mir.AggregateClosure,
			Closure:  l.names.FuncID(fn),
			Operands: l.operands(v.Bindings),
		})
	case *ssa.MakeSlice:
		l.runtimeCall("makeslice", l.operands([]ssa.Value{v.Len, v.Cap}), l.dest(v))
	case *ssa.MakeMap:
		l.runtimeCall("makemap", l.operands([]ssa.Value{v.Reserve}), l.dest(v))
	case *ssa.MakeChan:
		l.runtimeCall("makechan", l.operands([]ssa.Value{v.Size}), l.dest(v))
	case *ssa.Slice:
		l.runtimeCall("slice", l.operands([]ssa.Value{v.X, v.Low, v.High, v.Max}), l.dest(v))
	case *ssa.MapUpdate:
		l.runtimeCall("mapassign", l.operands([]ssa.Value{v.Map, v.Key, v.Value}), l.temp(mir.UnitType))
	case *ssa.Send:
		l.runtimeCall("chansend", l.operands([]ssa.Value{v.Chan, v.X}), l.temp(mir.UnitType))
	case *ssa.Select:
		var args []ssa.Value
		for _, st := range v.States {
			args = append(args, st.Chan, st.Send)
		}
		l.runtimeCall("selectgo", l.operands(args), l.dest(v))
	case *ssa.Range:
		l.runtimeCall("range", l.operands([]ssa.Value{v.X}), l.dest(v))
	case *ssa.Next:
		l.runtimeCall("next", l.operands([]ssa.Value{v.Iter}), l.dest(v))

	case *ssa.Call:
		l.call(&v.Call, l.dest(v))
	case *ssa.Go:
		l.call(&v.Call, l.temp(mir.UnitType))
	case *ssa.Defer:
		l.call(&v.Call, l.temp(mir.UnitType))
	case *ssa.RunDefers:
		l.runtimeCall("rundefers", nil, l.temp(mir.UnitType))

	case *ssa.Jump:
		l.phiCopies(bb)
		b.Terminate(&mir.Goto{Target: mir.BlockID(bb.Succs[0].Index)})
	case *ssa.If:
		l.phiCopies(bb)
		b.Terminate(&mir.SwitchInt{
			Discr:     l.operand(v.Cond),
			Values:    []uint64{0},
			Targets:   []mir.BlockID{mir.BlockID(bb.Succs[1].Index)},
			Otherwise: mir.BlockID(bb.Succs[0].Index),
		})
	case *ssa.Return:
		switch len(v.Results) {
		case 0:
		case 1:
			b.Assign(mir.LocalPlace(mir.ReturnPlace), &mir.Use{Operand: l.operand(v.Results[0])})
		default:
			b.Assign(mir.LocalPlace(mir.ReturnPlace), &mir.Aggregate{Kind: mir.AggregateTuple, Operands: l.operands(v.Results)})
		}
		b.Terminate(&mir.Return{})
	case *ssa.Panic:
		b.Terminate(&mir.Call{
			Func:        mir.FnOperand("runtime.gopanic"),
			Args:        l.operands([]ssa.Value{v.X}),
			Destination: l.temp(mir.UnitType),
		})

	default:
		var ops []ssa.Value
		for _, rand := range instr.Operands(nil) {
			if rand != nil && *rand != nil {
				ops = append(ops, *rand)
			}
		}
		b.Push(&mir.Intrinsic{Op: fmt.Sprintf("%T", instr), Operands: l.operands(ops)})
	}
}

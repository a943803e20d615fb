package subtle

// bootstrapCore installs the six builtin prototypes (Object, Fn, Native,
// Number, Boolean, String) and their native methods, then publishes them
// as globals. This is the Go re-expression of original_source/core.c's
// core_init_vm, supplemented per SPEC_FULL.md with the full Object
// surface (rawGetSlot/rawSetSlot/hasSlot/getOwnSlot/setOwnSlot/
// hasOwnSlot/deleteSlot/same/clone/hasAncestor) the distilled spec.md
// only names a handful of by example.
func bootstrapCore(vm *VM) {
	vm.getSlotString = FromObj(vm.NewString([]byte("getSlot")))
	vm.setSlotString = FromObj(vm.NewString([]byte("setSlot")))
	vm.equalString = FromObj(vm.NewString([]byte("==")))
	vm.notEqualString = FromObj(vm.NewString([]byte("!=")))
	vm.notString = FromObj(vm.NewString([]byte("!")))

	vm.ObjectProto = vm.NewObject(Nil)
	addMethod(vm, vm.ObjectProto, "proto", nativeObjectProto)
	addMethod(vm, vm.ObjectProto, "setProto", nativeObjectSetProto)
	// getSlot/setSlot are what the compiler's dot-access codegen targets
	// (cached as vm.getSlotString/vm.setSlotString, marked directly by
	// gc.go's markRoots rather than looked up by name each time).
	// rawGetSlot/rawSetSlot are the same behavior exposed under the more
	// descriptive names for code that resolves them by string at runtime.
	addMethod(vm, vm.ObjectProto, "getSlot", nativeObjectRawGetSlot)
	addMethod(vm, vm.ObjectProto, "setSlot", nativeObjectRawSetSlot)
	addMethod(vm, vm.ObjectProto, "rawGetSlot", nativeObjectRawGetSlot)
	addMethod(vm, vm.ObjectProto, "rawSetSlot", nativeObjectRawSetSlot)
	addMethod(vm, vm.ObjectProto, "hasSlot", nativeObjectHasSlot)
	addMethod(vm, vm.ObjectProto, "getOwnSlot", nativeObjectGetOwnSlot)
	addMethod(vm, vm.ObjectProto, "setOwnSlot", nativeObjectSetOwnSlot)
	addMethod(vm, vm.ObjectProto, "hasOwnSlot", nativeObjectHasOwnSlot)
	addMethod(vm, vm.ObjectProto, "deleteSlot", nativeObjectDeleteSlot)
	addMethod(vm, vm.ObjectProto, "same", nativeObjectSame)
	addMethod(vm, vm.ObjectProto, "==", nativeObjectEqual)
	addMethod(vm, vm.ObjectProto, "!=", nativeObjectNotEqual)
	addMethod(vm, vm.ObjectProto, "!", nativeObjectNot)
	addMethod(vm, vm.ObjectProto, "clone", nativeObjectClone)
	addMethod(vm, vm.ObjectProto, "hasAncestor", nativeObjectHasAncestor)

	// Allocating here is safe: every *Proto field is a GC root (gc.go's
	// markRoots), and the not-yet-assigned fields are nil, so a
	// collection triggered mid-bootstrap cannot free what's already set.
	vm.FnProto = vm.NewObject(FromObj(vm.ObjectProto))
	addMethod(vm, vm.FnProto, "new", nativeFnNew)
	addMethod(vm, vm.FnProto, "call", nativeFnCall)
	addMethod(vm, vm.FnProto, "callWithThis", nativeFnCallWithThis)

	vm.NativeProto = vm.NewObject(FromObj(vm.ObjectProto))
	addMethod(vm, vm.NativeProto, "call", nativeNativeCall)
	addMethod(vm, vm.NativeProto, "callWithThis", nativeNativeCallWithThis)

	vm.NumberProto = vm.NewObject(FromObj(vm.ObjectProto))
	addMethod(vm, vm.NumberProto, "+", nativeNumberPlus)
	addMethod(vm, vm.NumberProto, "-", nativeNumberMinus)
	addMethod(vm, vm.NumberProto, "*", nativeNumberMultiply)
	addMethod(vm, vm.NumberProto, "/", nativeNumberDivide)
	addMethod(vm, vm.NumberProto, "<", nativeNumberLt)
	addMethod(vm, vm.NumberProto, ">", nativeNumberGt)
	addMethod(vm, vm.NumberProto, "<=", nativeNumberLeq)
	addMethod(vm, vm.NumberProto, ">=", nativeNumberGeq)
	addMethod(vm, vm.NumberProto, "neg", nativeNumberNegate)

	vm.BooleanProto = vm.NewObject(FromObj(vm.ObjectProto))

	vm.StringProto = vm.NewObject(FromObj(vm.ObjectProto))
	addMethod(vm, vm.StringProto, "+", nativeStringPlus)

	vm.AddGlobal("Object", FromObj(vm.ObjectProto))
	vm.AddGlobal("Fn", FromObj(vm.FnProto))
	vm.AddGlobal("Native", FromObj(vm.NativeProto))
	vm.AddGlobal("Number", FromObj(vm.NumberProto))
	vm.AddGlobal("Boolean", FromObj(vm.BooleanProto))
	vm.AddGlobal("String", FromObj(vm.StringProto))
}

func addMethod(vm *VM, proto *ObjObject, name string, fn NativeFn) {
	vm.AddNative(&proto.Slots, name, fn)
}

// nativeReturn writes v as the call's result. Every NativeFn ends by
// either returning this or calling vm.RuntimeError and returning false,
// per the contract of spec.md §4.6.
func nativeReturn(args []Value, v Value) bool {
	args[0] = v
	return true
}

// --- Object ------------------------------------------------------------

func nativeObjectProto(vm *VM, args []Value, argc int) bool {
	return nativeReturn(args, vm.GetPrototype(args[0]))
}

func nativeObjectSetProto(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("setProto called with 0 arguments")
		return false
	}
	obj := args[0].AsObject()
	if obj == nil {
		vm.RuntimeError("setProto called on a non-object")
		return false
	}
	obj.Proto = args[1]
	return nativeReturn(args, Nil)
}

func nativeObjectRawGetSlot(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("rawGetSlot called with 0 arguments")
		return false
	}
	slot, ok := vm.GetSlot(args[0], args[1])
	if !ok {
		slot = Nil
	}
	return nativeReturn(args, slot)
}

func nativeObjectRawSetSlot(vm *VM, args []Value, argc int) bool {
	if argc < 2 {
		vm.RuntimeError("rawSetSlot called with %d arguments, need 2", argc)
		return false
	}
	obj := args[0].AsObject()
	if obj == nil {
		vm.RuntimeError("rawSetSlot called on a non-object")
		return false
	}
	obj.Slots.Set(args[1], args[2])
	return nativeReturn(args, Nil)
}

func nativeObjectHasSlot(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("hasSlot called with 0 arguments")
		return false
	}
	_, ok := vm.GetSlot(args[0], args[1])
	return nativeReturn(args, Bool(ok))
}

// getOwnSlot returns the receiver's own slot value (or nil if absent),
// as distinct from hasOwnSlot's boolean presence check. (The original
// source's getOwnSlot and hasOwnSlot both return a boolean, which looks
// like a copy/paste slip rather than intent — see DESIGN.md.)
func nativeObjectGetOwnSlot(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("getOwnSlot called with 0 arguments")
		return false
	}
	obj := args[0].AsObject()
	if obj == nil {
		return nativeReturn(args, Nil)
	}
	v, ok := obj.Slots.Get(args[1])
	if !ok {
		return nativeReturn(args, Nil)
	}
	return nativeReturn(args, v)
}

func nativeObjectSetOwnSlot(vm *VM, args []Value, argc int) bool {
	if argc != 2 {
		vm.RuntimeError("setOwnSlot requires 2 arguments")
		return false
	}
	obj := args[0].AsObject()
	if obj == nil {
		return nativeReturn(args, Nil)
	}
	obj.Slots.Set(args[1], args[2])
	return nativeReturn(args, args[2])
}

func nativeObjectHasOwnSlot(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("hasOwnSlot called with 0 arguments")
		return false
	}
	obj := args[0].AsObject()
	if obj == nil {
		return nativeReturn(args, False)
	}
	_, ok := obj.Slots.Get(args[1])
	return nativeReturn(args, Bool(ok))
}

func nativeObjectDeleteSlot(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("deleteSlot called with 0 arguments")
		return false
	}
	obj := args[0].AsObject()
	if obj == nil {
		vm.RuntimeError("deleteSlot called on a non-object")
		return false
	}
	existed := obj.Slots.Delete(args[1])
	return nativeReturn(args, Bool(existed))
}

func nativeObjectSame(vm *VM, args []Value, argc int) bool {
	if argc < 2 {
		vm.RuntimeError("same requires 2 arguments")
		return false
	}
	return nativeReturn(args, Bool(Equal(args[1], args[2])))
}

func nativeObjectEqual(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("== called with 0 arguments")
		return false
	}
	return nativeReturn(args, Bool(Equal(args[0], args[1])))
}

func nativeObjectNotEqual(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("!= called with 0 arguments")
		return false
	}
	return nativeReturn(args, Bool(!Equal(args[0], args[1])))
}

func nativeObjectNot(vm *VM, args []Value, argc int) bool {
	return nativeReturn(args, Bool(!args[0].Truthy()))
}

func nativeObjectClone(vm *VM, args []Value, argc int) bool {
	obj := vm.NewObject(args[0])
	return nativeReturn(args, FromObj(obj))
}

func nativeObjectHasAncestor(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("hasAncestor called with 0 arguments")
		return false
	}
	return nativeReturn(args, Bool(vm.HasAncestor(args[0], args[1])))
}

// --- Fn / Native ---------------------------------------------------------

func nativeFnNew(vm *VM, args []Value, argc int) bool {
	if argc == 0 {
		vm.RuntimeError("Fn.new called with 0 arguments")
		return false
	}
	if !args[1].IsClosure() {
		vm.RuntimeError("Fn.new called with a non-function")
		return false
	}
	return nativeReturn(args, args[1])
}

func nativeFnCall(vm *VM, args []Value, argc int) bool {
	closure := args[0].AsClosure()
	if closure == nil {
		vm.RuntimeError("call called on a non-function")
		return false
	}
	return vm.pushFrame(closure, argc)
}

func nativeFnCallWithThis(vm *VM, args []Value, argc int) bool {
	closure := args[0].AsClosure()
	if closure == nil {
		vm.RuntimeError("callWithThis called on a non-function")
		return false
	}
	if argc == 0 {
		vm.RuntimeError("callWithThis called with no arguments")
		return false
	}
	for i := 0; i < argc; i++ {
		args[i] = args[i+1]
	}
	vm.pop()
	return vm.pushFrame(closure, argc-1)
}

func nativeNativeCall(vm *VM, args []Value, argc int) bool {
	native := args[0].AsNative()
	if native == nil {
		vm.RuntimeError("call called on a non-native")
		return false
	}
	return native.Fn(vm, args, argc)
}

func nativeNativeCallWithThis(vm *VM, args []Value, argc int) bool {
	native := args[0].AsNative()
	if native == nil {
		vm.RuntimeError("callWithThis called on a non-native")
		return false
	}
	if argc == 0 {
		vm.RuntimeError("callWithThis called with no arguments")
		return false
	}
	for i := 0; i < argc; i++ {
		args[i] = args[i+1]
	}
	vm.pop()
	return native.Fn(vm, args, argc-1)
}

// --- Number --------------------------------------------------------------

func numberArith(vm *VM, args []Value, argc int, name string, apply func(a, b float64) Value) bool {
	if !args[0].IsNumber() {
		vm.RuntimeError("%s expected to be called on a number", name)
		return false
	}
	if argc == 0 || !args[1].IsNumber() {
		vm.RuntimeError("%s called with a non-number", name)
		return false
	}
	return nativeReturn(args, apply(args[0].AsNumber(), args[1].AsNumber()))
}

func nativeNumberPlus(vm *VM, args []Value, argc int) bool {
	return numberArith(vm, args, argc, "+", func(a, b float64) Value { return Number(a + b) })
}
func nativeNumberMinus(vm *VM, args []Value, argc int) bool {
	return numberArith(vm, args, argc, "-", func(a, b float64) Value { return Number(a - b) })
}
func nativeNumberMultiply(vm *VM, args []Value, argc int) bool {
	return numberArith(vm, args, argc, "*", func(a, b float64) Value { return Number(a * b) })
}
func nativeNumberDivide(vm *VM, args []Value, argc int) bool {
	return numberArith(vm, args, argc, "/", func(a, b float64) Value { return Number(a / b) })
}
func nativeNumberLt(vm *VM, args []Value, argc int) bool {
	return numberArith(vm, args, argc, "<", func(a, b float64) Value { return Bool(a < b) })
}
func nativeNumberGt(vm *VM, args []Value, argc int) bool {
	return numberArith(vm, args, argc, ">", func(a, b float64) Value { return Bool(a > b) })
}
func nativeNumberLeq(vm *VM, args []Value, argc int) bool {
	return numberArith(vm, args, argc, "<=", func(a, b float64) Value { return Bool(a <= b) })
}
func nativeNumberGeq(vm *VM, args []Value, argc int) bool {
	return numberArith(vm, args, argc, ">=", func(a, b float64) Value { return Bool(a >= b) })
}

func nativeNumberNegate(vm *VM, args []Value, argc int) bool {
	if !args[0].IsNumber() {
		vm.RuntimeError("neg expected to be called on a number")
		return false
	}
	return nativeReturn(args, Number(-args[0].AsNumber()))
}

// --- String --------------------------------------------------------------

func nativeStringPlus(vm *VM, args []Value, argc int) bool {
	this := args[0].AsString()
	if this == nil {
		vm.RuntimeError("+ expected to be called on a string")
		return false
	}
	if argc == 0 {
		vm.RuntimeError("+ called with a non-string")
		return false
	}
	other := args[1].AsString()
	if other == nil {
		vm.RuntimeError("+ called with a non-string")
		return false
	}
	buf := make([]byte, 0, len(this.chars)+len(other.chars))
	buf = append(buf, this.chars...)
	buf = append(buf, other.chars...)
	return nativeReturn(args, FromObj(vm.NewString(buf)))
}

package subtle

// Interpret runs fn as the top-level program: it wraps fn in a Closure
// with no upvalues, pushes the initial call frame, and drives the
// dispatch loop to completion. This is the entry point compiler.Compile
// results feed into; it is also usable directly by anything (tests,
// this module's own end-to-end scenarios) that wants to build a Chunk
// by hand without going through source text at all.
func (vm *VM) Interpret(fn *ObjFunction) (result Result, err *RuntimeError) {
	defer func() {
		if r := recover(); r != nil {
			p, ok := r.(vmPanic)
			if !ok {
				panic(r)
			}
			vm.resetStack()
			result = ResultRuntimeError
			err = p.err
		}
	}()

	closure := vm.newClosure(fn, nil)
	vm.push(Nil) // implicit top-level receiver
	vm.frames[0] = CallFrame{closure: closure, ip: 0, slotBase: vm.stackTop - 1}
	vm.frameCount = 1
	result = vm.run()
	vm.resetStack()
	return result, nil
}

func (vm *VM) currentFrame() *CallFrame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) readByte(f *CallFrame) byte {
	b := f.chunk().Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readOffset(f *CallFrame) uint16 {
	hi := vm.readByte(f)
	lo := vm.readByte(f)
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readConstant(f *CallFrame) Value {
	return f.chunk().Constants[vm.readOffset(f)]
}

// pushFrame implements the Closure half of the call protocol (spec.md
// §4.6): verify arity, push a frame whose slots alias the stack region
// starting at the receiver, and let the dispatch loop continue at the
// callee. It is used directly by OP_INVOKE and by Fn's "call" and
// "callWithThis" built-ins (core.go), matching the original
// source's vm_push_frame being exposed to native code.
func (vm *VM) pushFrame(closure *ObjClosure, argc int) bool {
	if argc != closure.Function.Arity {
		vm.RuntimeError("expected %d arguments but got %d", closure.Function.Arity, argc)
		return false
	}
	if vm.frameCount >= len(vm.frames) {
		vm.RuntimeError("stack overflow")
		return false
	}
	base := vm.stackTop - argc - 1
	vm.frames[vm.frameCount] = CallFrame{closure: closure, ip: 0, slotBase: base}
	vm.frameCount++
	return true
}

// callNative implements the Native half of the call protocol: invoke
// synchronously, then collapse the receiver+argument block down to the
// single result value the native wrote into args[0].
//
// Fn.call and Fn.callWithThis (core.go) are natives that themselves push
// a new call frame instead of producing an immediate result — their
// eventual RETURN collapses the stack the normal way. Native.call and
// Native.callWithThis run the wrapped native directly, so they push a
// frame only when that native does. callNative detects this by frame count and, when it
// happens, leaves the stack untouched for the new frame to use as its
// slots rather than collapsing over them.
func (vm *VM) callNative(native *ObjNative, argc int) {
	base := vm.stackTop - argc - 1
	args := vm.stack[base : base+argc+1]
	framesBefore := vm.frameCount
	if !native.Fn(vm, args, argc) {
		vm.RuntimeError("native %q failed", native.Name)
		return
	}
	if vm.frameCount > framesBefore {
		return
	}
	vm.stack[base] = args[0]
	vm.stackTop = base + 1
}

// invoke is OP_INVOKE's resolve-then-dispatch step (spec.md §4.6).
func (vm *VM) invoke(key Value, argc int) (pushedFrame bool) {
	base := vm.stackTop - argc - 1
	receiver := vm.stack[base]
	slot, ok := vm.GetSlot(receiver, key)
	if !ok {
		name := "?"
		if s := key.AsString(); s != nil {
			name = s.String()
		}
		vm.RuntimeError("%s does not understand %q", describeValue(receiver), name)
		return false
	}
	switch callee := slot.obj.(type) {
	case *ObjClosure:
		return vm.pushFrame(callee, argc)
	case *ObjNative:
		framesBefore := vm.frameCount
		vm.callNative(callee, argc)
		return vm.frameCount > framesBefore
	default:
		vm.RuntimeError("%s is not callable", describeValue(slot))
		return false
	}
}

func describeValue(v Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsTrue(), v.IsFalse():
		return "a boolean"
	case v.IsNumber():
		return "a number"
	case v.IsString():
		return "a string"
	case v.IsClosure():
		return "a function"
	case v.IsNative():
		return "a native"
	case v.IsObject():
		return "an object"
	default:
		return "a value"
	}
}

// captureUpvalue returns the open upvalue for the given stack index,
// creating one if none exists yet, and keeps the VM's open-upvalue list
// ordered by descending stack index so RETURN can close a whole suffix
// in one pass (spec.md §4.5, §9).
func (vm *VM) captureUpvalue(stackIndex int) *ObjUpvalue {
	var prev *ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && cur.stackIndex > stackIndex {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.stackIndex == stackIndex {
		return cur
	}
	created := vm.newUpvalue(&vm.stack[stackIndex])
	created.stackIndex = stackIndex
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue whose captured stack index is
// >= fromIndex.
func (vm *VM) closeUpvalues(fromIndex int) {
	for vm.openUpvalues != nil && vm.openUpvalues.stackIndex >= fromIndex {
		u := vm.openUpvalues
		u.close()
		vm.openUpvalues = u.Next
	}
}

// run is the switch-threaded dispatch loop (spec.md §4.5).
func (vm *VM) run() Result {
	frame := vm.currentFrame()
	for {
		op := Opcode(vm.readByte(frame))
		switch op {
		case OpConstant:
			vm.push(vm.readConstant(frame))

		case OpPop:
			vm.pop()

		case OpTrue:
			vm.push(True)
		case OpFalse:
			vm.push(False)
		case OpNil:
			vm.push(Nil)

		case OpDefGlobal:
			name := vm.readConstant(frame)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case OpGetGlobal:
			name := vm.readConstant(frame)
			v, ok := vm.globals.Get(name)
			if !ok {
				vm.RuntimeError("undefined variable '%s'", name.AsString().String())
			}
			vm.push(v)

		case OpSetGlobal:
			name := vm.readConstant(frame)
			if isNew := vm.globals.Set(name, vm.peek(0)); isNew {
				vm.globals.Delete(name)
				vm.RuntimeError("undefined variable '%s'", name.AsString().String())
			}

		case OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.slotBase+slot])

		case OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.slotBase+slot] = vm.peek(0)

		case OpGetUpvalue:
			idx := int(vm.readByte(frame))
			vm.push(frame.closure.Upvalues[idx].get())

		case OpSetUpvalue:
			idx := int(vm.readByte(frame))
			frame.closure.Upvalues[idx].set(vm.peek(0))

		case OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case OpJump:
			offset := vm.readOffset(frame)
			frame.ip += int(offset)

		case OpJumpIfTrue:
			offset := vm.readOffset(frame)
			if vm.peek(0).Truthy() {
				frame.ip += int(offset)
			}

		case OpJumpIfFalse:
			offset := vm.readOffset(frame)
			if !vm.peek(0).Truthy() {
				frame.ip += int(offset)
			}

		case OpLoop:
			offset := vm.readOffset(frame)
			frame.ip -= int(offset)

		case OpEq:
			b := vm.pop()
			a := vm.pop()
			vm.push(Bool(Equal(a, b)))

		case OpNeq:
			b := vm.pop()
			a := vm.pop()
			vm.push(Bool(!Equal(a, b)))

		case OpNot:
			vm.stack[vm.stackTop-1] = Bool(!vm.peek(0).Truthy())

		case OpAssert:
			if !vm.pop().Truthy() {
				vm.RuntimeError("assertion failed")
			}

		case OpObject:
			vm.push(FromObj(vm.NewObject(FromObj(vm.ObjectProto))))

		case OpObjectSet:
			key := vm.readConstant(frame)
			value := vm.pop()
			obj := vm.peek(0).AsObject()
			if obj == nil {
				vm.RuntimeError("cannot set a slot on a non-object")
			}
			obj.Slots.Set(key, value)

		case OpObjlitSet:
			value := vm.pop()
			key := vm.pop()
			obj := vm.peek(0).AsObject()
			if obj == nil {
				vm.RuntimeError("cannot set a slot on a non-object")
			}
			obj.Slots.Set(key, value)

		case OpClosure:
			fnVal := vm.readConstant(frame)
			fn, _ := fnVal.obj.(*ObjFunction)
			upvalues := make([]*ObjUpvalue, fn.UpvalueCount)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(frame)
				index := int(vm.readByte(frame))
				if isLocal == 1 {
					upvalues[i] = vm.captureUpvalue(frame.slotBase + index)
				} else {
					upvalues[i] = frame.closure.Upvalues[index]
				}
			}
			vm.push(FromObj(vm.newClosure(fn, upvalues)))

		case OpInvoke:
			key := vm.readConstant(frame)
			argc := int(vm.readByte(frame))
			if vm.invoke(key, argc) {
				frame = vm.currentFrame()
			}

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				return ResultOK
			}
			vm.stackTop = frame.slotBase
			vm.push(result)
			frame = vm.currentFrame()

		default:
			vm.RuntimeError("unknown opcode %d", op)
		}
	}
}

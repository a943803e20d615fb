package subtle

// collectGarbage runs one full tri-color mark-sweep pass (spec.md §4.7).
// It is synchronous and stop-the-world in the sense that nothing else on
// this single thread runs while it executes (spec.md §5).
func (vm *VM) collectGarbage() {
	vm.gcCount++
	vm.markRoots()
	vm.traceReferences()
	vm.sweepInternTable()
	vm.sweep()
	if vm.nextGC = int64(float64(vm.bytesAllocated) * vm.cfg.GCGrowthFactor); vm.nextGC < vm.cfg.InitialGCBytes {
		vm.nextGC = vm.cfg.InitialGCBytes
	}
}

// markRoots marks every root spec.md §4.7 step 1 enumerates: the live
// value stack, every call frame's closure, every open upvalue, the six
// prototype pointers, the cached key strings, the globals table, and the
// temporary root register. The compiler-in-progress root does not apply
// here: this module's compiler lives in its own package and protects its
// own locals with PushRoot/PopRoot instead of being embedded in VM (see
// DESIGN.md).
func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}
	for u := vm.openUpvalues; u != nil; u = u.Next {
		vm.markObject(u)
	}
	for _, p := range []*ObjObject{vm.ObjectProto, vm.FnProto, vm.NativeProto, vm.NumberProto, vm.BooleanProto, vm.StringProto} {
		if p != nil {
			vm.markObject(p)
		}
	}

	vm.markValue(vm.getSlotString)
	vm.markValue(vm.setSlotString)
	vm.markValue(vm.equalString)
	vm.markValue(vm.notEqualString)
	vm.markValue(vm.notString)

	vm.markTable(&vm.globals)

	for _, r := range vm.roots {
		vm.markValue(r)
	}
}

func (vm *VM) markValue(v Value) {
	if v.tag == TagObj {
		vm.markObject(v.obj)
	}
}

func (vm *VM) markObject(o Obj) {
	if o == nil {
		return
	}
	h := o.header()
	if h.marked {
		return
	}
	h.marked = true
	vm.grayStack = append(vm.grayStack, o)
}

func (vm *VM) markTable(t *Table) {
	t.Each(func(key, value Value) {
		vm.markValue(key)
		vm.markValue(value)
	})
}

// traceReferences drains the gray stack, marking each object's children
// black as it is processed (spec.md §4.7 step 2).
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		n := len(vm.grayStack) - 1
		obj := vm.grayStack[n]
		vm.grayStack = vm.grayStack[:n]
		vm.blackenObject(obj)
	}
}

func (vm *VM) blackenObject(o Obj) {
	switch v := o.(type) {
	case *ObjString:
		// No children.
	case *ObjFunction:
		for _, c := range v.Chunk.Constants {
			vm.markValue(c)
		}
		if v.Name != nil {
			vm.markObject(v.Name)
		}
	case *ObjClosure:
		vm.markObject(v.Function)
		for _, u := range v.Upvalues {
			vm.markObject(u)
		}
	case *ObjUpvalue:
		// An open upvalue points into the stack, which is already a
		// root; only a closed upvalue's owned value needs tracing.
		if !v.isOpen() {
			vm.markValue(v.Closed)
		}
	case *ObjObject:
		vm.markValue(v.Proto)
		vm.markTable(&v.Slots)
	case *ObjNative:
		// Ctx is opaque; nothing to trace.
	}
}

// sweepInternTable removes any intern-table entry whose key String
// wasn't marked during this collection: these are weak references, and
// must be swept before the object sweep frees the strings themselves
// (spec.md §4.7 step 3, §5 ordering).
func (vm *VM) sweepInternTable() {
	var dead []Value
	vm.strings.Each(func(key, _ Value) {
		if s := key.AsString(); s != nil && !s.marked {
			dead = append(dead, key)
		}
	})
	for _, k := range dead {
		vm.strings.Delete(k)
	}
}

// sweep walks the global allocation list, freeing every unmarked object
// and clearing the marked bit on survivors (spec.md §4.7 step 4).
func (vm *VM) sweep() {
	var prev Obj
	cur := vm.objects
	for cur != nil {
		h := cur.header()
		if h.marked {
			h.marked = false
			prev = cur
			cur = h.next
			continue
		}
		unreached := cur
		cur = h.next
		if prev == nil {
			vm.objects = cur
		} else {
			prev.header().next = cur
		}
		vm.freeObject(unreached)
	}
}

func (vm *VM) freeObject(o Obj) {
	vm.bytesAllocated -= int64(o.header().size)
	if n, ok := o.(*ObjNative); ok && n.Destroy != nil {
		n.Destroy(n.Ctx)
	}
	// Go's own GC reclaims the backing memory once o is unreferenced;
	// there is no explicit free() primitive to call here the way the
	// original source's object_free dispatch does, since this module
	// has no manual heap to return bytes to. What matters for spec
	// conformance is unlinking o from vm.objects (done by the caller)
	// and running any variant destructor, both of which happen above.
}

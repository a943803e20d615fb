package subtle

import "testing"

func countObjects(vm *VM) int {
	n := 0
	for o := vm.objects; o != nil; o = o.header().next {
		n++
	}
	return n
}

func objectInHeap(vm *VM, target Obj) bool {
	for o := vm.objects; o != nil; o = o.header().next {
		if o == target {
			return true
		}
	}
	return false
}

// TestGCSweepsUnreachable is spec.md §8's "no object unreachable from
// any root survives a GC": objects allocated and then dropped from
// every root (never pushed to the stack, never stored in a global or
// another live object's slots) must be freed by the next collection.
func TestGCSweepsUnreachable(t *testing.T) {
	vm := New(NewConfig("GC_SWEEP_TEST"))
	baseline := countObjects(vm)

	for i := 0; i < 10; i++ {
		vm.NewObject(Nil) // intentionally not rooted anywhere
	}
	if countObjects(vm) != baseline+10 {
		t.Fatalf("expected %d objects after allocation, got %d", baseline+10, countObjects(vm))
	}

	vm.collectGarbage()
	if got := countObjects(vm); got != baseline {
		t.Fatalf("expected GC to sweep all 10 unrooted objects back to baseline %d, got %d", baseline, got)
	}
}

// TestGCKeepsStackReachable is spec.md §8's "every object reachable
// from a root is still allocated and its marked bit is cleared".
func TestGCKeepsStackReachable(t *testing.T) {
	vm := New(NewConfig("GC_STACK_TEST"))
	obj := vm.NewObject(Nil)
	vm.push(FromObj(obj))

	vm.collectGarbage()

	if !objectInHeap(vm, obj) {
		t.Fatal("an object referenced from the value stack was swept")
	}
	if obj.header().marked {
		t.Fatal("a surviving object's marked bit was not cleared after sweep")
	}
	vm.pop()
}

// TestGCKeepsGlobalReachable confirms the globals table is itself a
// root (gc.go's markRoots), not just the stack/frames/prototypes.
func TestGCKeepsGlobalReachable(t *testing.T) {
	vm := New(NewConfig("GC_GLOBAL_TEST"))
	obj := vm.NewObject(Nil)
	vm.AddGlobal("kept", FromObj(obj))

	vm.collectGarbage()

	if !objectInHeap(vm, obj) {
		t.Fatal("an object referenced only from the globals table was swept")
	}
}

// TestPushRootPopRootProtectsAcrossAllocation is spec.md §8's
// "push_root(v); allocate_many(); pop_root(); keeps v live across the
// allocations" regression test for the temporary-root protocol.
func TestPushRootPopRootProtectsAcrossAllocation(t *testing.T) {
	vm := New(NewConfig("GC_ROOT_TEST", OptInitialGCBytes(1))) // collect aggressively
	obj := vm.NewObject(Nil)

	vm.PushRoot(FromObj(obj))
	for i := 0; i < 200; i++ {
		vm.NewObject(Nil) // each allocation is GC-safe and may collect
	}
	if !objectInHeap(vm, obj) {
		t.Fatal("object died across allocations while still push_root'd")
	}
	vm.PopRoot()

	vm.collectGarbage()
	if objectInHeap(vm, obj) {
		t.Fatal("object survived a GC after its temporary root was popped and nothing else reaches it")
	}
}

// TestStringInterningWeakSweep is spec.md §8's "after a GC where a
// string has no live references outside the intern table, a subsequent
// allocation with the same bytes returns a fresh pointer".
func TestStringInterningWeakSweep(t *testing.T) {
	vm := New(NewConfig("GC_INTERN_TEST"))
	s1 := vm.NewString([]byte("ephemeral"))
	if vm.strings.Count() == 0 {
		t.Fatal("NewString did not register in the intern table")
	}

	// s1 is reachable from nothing but the intern table's weak entry:
	// not on the stack, not in globals, not in any live object's slots.
	vm.collectGarbage()

	if _, ok := vm.strings.Get(FromObj(s1)); ok {
		t.Fatal("intern table entry for an unreferenced string survived a GC")
	}

	s2 := vm.NewString([]byte("ephemeral"))
	if s1 == s2 {
		t.Fatal("expected a fresh pointer after the intern entry was swept, got the same one")
	}
}

// TestStringInterningDedupesWhileLive is spec.md §8's "two distinct
// allocations of a string with bytes s return pointer-equal String
// objects" — while at least one reference keeps the first alive.
func TestStringInterningDedupesWhileLive(t *testing.T) {
	vm := New(NewConfig("GC_INTERN_LIVE_TEST"))
	s1 := vm.NewString([]byte("stable"))
	vm.push(FromObj(s1)) // keep it rooted across any intervening GC
	s2 := vm.NewString([]byte("stable"))
	if s1 != s2 {
		t.Fatal("two interned allocations of the same bytes returned distinct pointers")
	}
	vm.pop()
}

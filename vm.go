package subtle

import (
	"fmt"
	"log"
	"os"
)

// VM is the single-threaded interpreter: a value stack, a call-frame
// stack, the prototype/global/intern tables, and the allocator/GC state
// they all share (spec.md §3, §5).
type VM struct {
	cfg *Config

	frames     []CallFrame
	frameCount int

	stack    []Value
	stackTop int

	openUpvalues *ObjUpvalue

	ObjectProto  *ObjObject
	FnProto      *ObjObject
	NativeProto  *ObjObject
	NumberProto  *ObjObject
	BooleanProto *ObjObject
	StringProto  *ObjObject

	objects        Obj
	bytesAllocated int64
	nextGC         int64

	grayStack []Obj

	roots []Value

	strings Table // string interning table (weak)
	globals Table

	getSlotString  Value
	setSlotString  Value
	equalString    Value
	notEqualString Value
	notString      Value

	logger *log.Logger

	gcCount int // collections run; exposed for tests/diagnostics
}

// New builds a VM with the given configuration (or defaults, if cfg is
// nil) and bootstraps the builtin prototypes (core.go).
func New(cfg *Config) *VM {
	if cfg == nil {
		cfg = NewConfig("")
	}
	vm := &VM{
		cfg:     cfg,
		frames:  make([]CallFrame, cfg.FramesMax),
		stack:   make([]Value, cfg.stackMax()),
		nextGC:  cfg.InitialGCBytes,
		logger:  log.New(os.Stderr, "", log.LstdFlags),
	}
	vm.roots = make([]Value, 0, cfg.MaxRoots)
	bootstrapCore(vm)
	return vm
}

// SetLogger overrides the default stderr logger the VM holds. No code in
// this package writes to that logger; it emits no diagnostics of its own.
func (vm *VM) SetLogger(l *log.Logger) { vm.logger = l }

// --- value stack -----------------------------------------------------

func (vm *VM) push(v Value) {
	if vm.stackTop >= len(vm.stack) {
		panic(vmPanic{&RuntimeError{Message: "stack overflow"}})
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// --- temporary root register (push_root/pop_root, spec.md §4.7) -----

// PushRoot anchors v against collection until the matching PopRoot. It
// is the escape hatch native code uses to protect a freshly created
// Value that is not yet wired into any other root (stack, globals,
// closure) at the moment another allocation might trigger a GC.
func (vm *VM) PushRoot(v Value) {
	if len(vm.roots) >= cap(vm.roots) {
		panic(vmPanic{&RuntimeError{Message: "root stack overflow"}})
	}
	vm.roots = append(vm.roots, v)
}

// PopRoot removes the most recently pushed root.
func (vm *VM) PopRoot() {
	vm.roots = vm.roots[:len(vm.roots)-1]
}

// --- prototype chain (spec.md §4.4) -----------------------------------

// GetPrototype returns v's prototype, or Nil to terminate the chain.
func (vm *VM) GetPrototype(v Value) Value {
	switch v.tag {
	case TagObj:
		switch o := v.obj.(type) {
		case *ObjObject:
			return o.Proto
		case *ObjClosure:
			return FromObj(vm.FnProto)
		case *ObjNative:
			return FromObj(vm.NativeProto)
		case *ObjString:
			return FromObj(vm.StringProto)
		default:
			return Nil
		}
	case TagNumber:
		return FromObj(vm.NumberProto)
	case TagTrue, TagFalse:
		return FromObj(vm.BooleanProto)
	case TagNil:
		return FromObj(vm.ObjectProto)
	default:
		return Nil
	}
}

// GetSlot walks receiver's prototype chain looking up key, per spec.md
// §4.4: an ObjObject's own slot table is consulted first; on miss the
// search continues on GetPrototype(receiver). The walk is bounded by
// Config.MaxPrototypeChain to keep cyclic chains from looping forever;
// exceeding it is treated as "not found".
func (vm *VM) GetSlot(receiver, key Value) (Value, bool) {
	cur := receiver
	for i := 0; i < vm.cfg.MaxPrototypeChain; i++ {
		if o := cur.AsObject(); o != nil {
			if v, ok := o.Slots.Get(key); ok {
				return v, true
			}
		}
		cur = vm.GetPrototype(cur)
		if cur.IsNil() {
			return Nil, false
		}
	}
	return Nil, false
}

// HasAncestor walks src's prototype chain (including src itself) looking
// for target, comparing with Equal. Cycles are broken with each object's
// visited bit, cleared again on unwind (spec.md §4.4).
func (vm *VM) HasAncestor(src, target Value) bool {
	if Equal(src, target) {
		return true
	}
	if src.tag == TagObj {
		h := src.obj.header()
		if h.visited {
			return false
		}
		h.visited = true
		defer func() { h.visited = false }()
	}
	return vm.HasAncestor(vm.GetPrototype(src), target)
}

// --- runtime errors ----------------------------------------------------

// vmPanic carries a *RuntimeError through a panic/recover so that deeply
// nested opcode handlers can abort the current Interpret call without
// threading an error return through every frame, while Interpret itself
// still returns the ResultRuntimeError contract of spec.md §7.
type vmPanic struct{ err *RuntimeError }

// RuntimeError raises a runtime error at the current frame's line and
// unwinds to the enclosing Interpret call. Native functions call this
// and then return false; the dispatch loop propagates the failure.
func (vm *VM) RuntimeError(format string, args ...interface{}) {
	line := 0
	if vm.frameCount > 0 {
		f := &vm.frames[vm.frameCount-1]
		line = f.chunk().GetLine(f.ip - 1)
	}
	panic(vmPanic{&RuntimeError{Line: line, Message: fmt.Sprintf(format, args...)}})
}

// --- allocation --------------------------------------------------------

// maybeCollect runs a collection if bytes_allocated exceeds next_gc. It
// is called before a new object is linked into the heap, so the object
// under construction is never itself at risk: nothing references it yet
// (spec.md §4.7's allocation-time invariant).
func (vm *VM) maybeCollect() {
	if vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
}

func (vm *VM) track(o Obj, size int) {
	h := o.header()
	h.size = size
	h.next = vm.objects
	vm.objects = o
	vm.bytesAllocated += int64(size)
}

// NewString interns bytes, returning the existing ObjString if an equal
// one is already interned (spec.md §3: "at most one String with a given
// byte sequence exists at any moment").
func (vm *VM) NewString(data []byte) *ObjString {
	hash := FNV1a32(data)
	if s := vm.strings.FindString(data, hash); s != nil {
		return s
	}
	vm.maybeCollect()
	cp := make([]byte, len(data))
	copy(cp, data)
	s := &ObjString{chars: cp, hash: hash}
	s.typ = ObjTypeString
	vm.track(s, len(cp)+24)
	// Root the new string across the intern-table Set, which may itself
	// grow (an allocation-adjacent, though not GC-triggering, op).
	vm.PushRoot(FromObj(s))
	vm.strings.Set(FromObj(s), True)
	vm.PopRoot()
	return s
}

func (vm *VM) newFunction() *ObjFunction {
	vm.maybeCollect()
	fn := &ObjFunction{Chunk: &Chunk{}}
	fn.typ = ObjTypeFunction
	vm.track(fn, 64)
	return fn
}

// NewFunction allocates an empty function object for the compiler to fill
// in as it emits bytecode (arity, upvalue count, name, and chunk contents
// are all set by the caller after allocation). The CLOSURE opcode (not
// the compiler) is what wraps a nested compiled function in a closure at
// runtime; Interpret wraps the top-level program's function itself.
func (vm *VM) NewFunction() *ObjFunction { return vm.newFunction() }

func (vm *VM) newClosure(fn *ObjFunction, upvalues []*ObjUpvalue) *ObjClosure {
	vm.maybeCollect()
	c := &ObjClosure{Function: fn, Upvalues: upvalues}
	c.typ = ObjTypeClosure
	vm.track(c, 32+8*len(upvalues))
	return c
}

func (vm *VM) newUpvalue(location *Value) *ObjUpvalue {
	vm.maybeCollect()
	u := &ObjUpvalue{Location: location}
	u.typ = ObjTypeUpvalue
	vm.track(u, 40)
	return u
}

// NewObject allocates a fresh ObjObject with the given prototype.
func (vm *VM) NewObject(proto Value) *ObjObject {
	vm.maybeCollect()
	o := &ObjObject{Proto: proto}
	o.typ = ObjTypeObject
	vm.track(o, 48)
	return o
}

// NewNative allocates a native-function object.
func (vm *VM) NewNative(name string, fn NativeFn) *ObjNative {
	vm.maybeCollect()
	n := &ObjNative{Name: name, Fn: fn}
	n.typ = ObjTypeNative
	vm.track(n, 32)
	return n
}

// --- globals / extension registration (spec.md §6) ---------------------

// AddGlobal defines a global binding, interning name.
func (vm *VM) AddGlobal(name string, v Value) {
	vm.PushRoot(v)
	key := FromObj(vm.NewString([]byte(name)))
	vm.PushRoot(key)
	vm.globals.Set(key, v)
	vm.PopRoot()
	vm.PopRoot()
}

// AddNative defines name on the given slot table as a native method.
func (vm *VM) AddNative(table *Table, name string, fn NativeFn) {
	native := vm.NewNative(name, fn)
	nv := FromObj(native)
	vm.PushRoot(nv)
	key := FromObj(vm.NewString([]byte(name)))
	vm.PushRoot(key)
	table.Set(key, nv)
	vm.PopRoot()
	vm.PopRoot()
}

// GCStats summarizes the allocator/collector state, for diagnostics.
type GCStats struct {
	BytesAllocated int64
	NextGC         int64
	Collections    int
}

func (vm *VM) Stats() GCStats {
	return GCStats{BytesAllocated: vm.bytesAllocated, NextGC: vm.nextGC, Collections: vm.gcCount}
}

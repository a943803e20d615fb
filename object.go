package subtle

import "unsafe"

// ObjType tags the heap-object variants. It exists for diagnostics and
// disassembly; runtime dispatch itself goes through Go type switches on
// the Obj interface, which is this module's idiomatic stand-in for the
// original source's "common header with a variant tag and unchecked
// downcasts" (spec.md §9).
type ObjType uint8

const (
	ObjTypeString ObjType = iota
	ObjTypeFunction
	ObjTypeClosure
	ObjTypeUpvalue
	ObjTypeObject
	ObjTypeNative
)

func (t ObjType) String() string {
	switch t {
	case ObjTypeString:
		return "String"
	case ObjTypeFunction:
		return "Function"
	case ObjTypeClosure:
		return "Closure"
	case ObjTypeUpvalue:
		return "Upvalue"
	case ObjTypeObject:
		return "Object"
	case ObjTypeNative:
		return "Native"
	default:
		return "?"
	}
}

// Obj is implemented by every heap-allocated variant. Each variant embeds
// objHeader, which supplies the GC bookkeeping spec.md §3 requires of
// every heap object: the variant tag, the next-pointer threading it into
// the allocator's object list, the marked/visited bits, and its payload
// byte size for bytes_allocated accounting.
type Obj interface {
	header() *objHeader
	Type() ObjType
}

type objHeader struct {
	typ     ObjType
	next    Obj
	marked  bool
	visited bool
	size    int
}

func (h *objHeader) header() *objHeader { return h }
func (h *objHeader) Type() ObjType      { return h.typ }

// objAddr returns the heap object's identity as an address-shaped integer,
// used only for hashing/diagnostics (never for arithmetic on the object).
func objAddr(o Obj) uintptr {
	return uintptr(unsafe.Pointer(o.header()))
}

// ObjString is an immutable, interned byte buffer.
type ObjString struct {
	objHeader
	chars []byte
	hash  uint32
}

func (s *ObjString) String() string { return string(s.chars) }

// ObjFunction is a compiled function body: a Chunk, its arity, how many
// upvalues its closures must capture, and an optional name.
type ObjFunction struct {
	objHeader
	Arity        int
	UpvalueCount int
	Name         *ObjString
	Chunk        *Chunk
}

// ObjClosure pairs a Function with the upvalues captured at the point of
// its CLOSURE instruction.
type ObjClosure struct {
	objHeader
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

// ObjUpvalue is open (Location points into a live stack slot) or closed
// (it owns Closed, a heap-resident copy of the captured value). The
// open->closed transition is one-way.
type ObjUpvalue struct {
	objHeader
	Location   *Value
	Closed     Value
	Next       *ObjUpvalue // descending-stack-index-ordered open list
	stackIndex int         // valid only while open; orders Next
}

func (u *ObjUpvalue) isOpen() bool { return u.Location != nil }

func (u *ObjUpvalue) get() Value {
	if u.isOpen() {
		return *u.Location
	}
	return u.Closed
}

func (u *ObjUpvalue) set(v Value) {
	if u.isOpen() {
		*u.Location = v
		return
	}
	u.Closed = v
}

func (u *ObjUpvalue) close() {
	u.Closed = *u.Location
	u.Location = nil
}

// ObjObject is a prototype Value plus a slot Table. It is the sole
// heap-object variant that anything else in the system delegates to via
// the prototype chain (§4.4).
type ObjObject struct {
	objHeader
	Proto Value
	Slots Table
}

// NativeFn is the native-callback contract of §4.6 / §6: given the
// argument block (args[0] is the receiver, args[1:argc+1] are the
// arguments), write the result into args[0] and return true on success,
// or call vm.RuntimeError and return false on failure.
type NativeFn func(vm *VM, args []Value, argc int) bool

// ObjNative wraps a Go function implementing a primitive. Ctx is an
// opaque extension context pointer (§6); Destroy, if non-nil, runs when
// the native is swept.
type ObjNative struct {
	objHeader
	Name    string
	Fn      NativeFn
	Ctx     interface{}
	Destroy func(interface{})
}

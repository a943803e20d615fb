package subtle

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// ValueTag discriminates the variants of Value.
type ValueTag uint8

const (
	// TagUndefined is the empty-slot marker used internally by Table. It is
	// never observable from user code.
	TagUndefined ValueTag = iota
	TagNil
	TagTrue
	TagFalse
	TagNumber
	TagObj
)

// Value is the VM's tagged scalar/heap discriminated union. Values are
// copied by value; only TagObj values share identity with each other.
type Value struct {
	tag ValueTag
	num float64
	obj Obj
}

var (
	Undefined = Value{tag: TagUndefined}
	Nil       = Value{tag: TagNil}
	True      = Value{tag: TagTrue}
	False     = Value{tag: TagFalse}
)

// Number returns a Value wrapping the given float64.
func Number(n float64) Value { return Value{tag: TagNumber, num: n} }

// FromObj returns a Value wrapping the given heap object.
func FromObj(o Obj) Value { return Value{tag: TagObj, obj: o} }

// Bool returns True or False.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func (v Value) IsUndefined() bool { return v.tag == TagUndefined }
func (v Value) IsNil() bool       { return v.tag == TagNil }
func (v Value) IsTrue() bool      { return v.tag == TagTrue }
func (v Value) IsFalse() bool     { return v.tag == TagFalse }
func (v Value) IsNumber() bool    { return v.tag == TagNumber }
func (v Value) IsObj() bool       { return v.tag == TagObj }

func (v Value) IsString() bool  { _, ok := v.obj.(*ObjString); return v.tag == TagObj && ok }
func (v Value) IsClosure() bool { _, ok := v.obj.(*ObjClosure); return v.tag == TagObj && ok }
func (v Value) IsNative() bool  { _, ok := v.obj.(*ObjNative); return v.tag == TagObj && ok }
func (v Value) IsObject() bool  { _, ok := v.obj.(*ObjObject); return v.tag == TagObj && ok }

// AsNumber returns v's float payload without checking the tag (0 for a
// Value that is not a TagNumber); callers must check IsNumber first,
// matching the original source's unchecked VAL_TO_NUMBER macro.
func (v Value) AsNumber() float64 { return v.num }

// AsObj returns the heap object backing v, or nil if v is not TagObj.
func (v Value) AsObj() Obj { return v.obj }

func (v Value) AsString() *ObjString {
	s, _ := v.obj.(*ObjString)
	return s
}

func (v Value) AsClosure() *ObjClosure {
	c, _ := v.obj.(*ObjClosure)
	return c
}

func (v Value) AsNative() *ObjNative {
	n, _ := v.obj.(*ObjNative)
	return n
}

func (v Value) AsObject() *ObjObject {
	o, _ := v.obj.(*ObjObject)
	return o
}

// Truthy implements §4.1: false and nil are falsy, everything else
// (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.tag {
	case TagFalse, TagNil:
		return false
	default:
		return true
	}
}

// Equal implements structural equality per §4.1. Number uses IEEE-754
// comparison (NaN != NaN, even NaN != itself); Obj values compare by
// pointer, which is safe for strings because of interning.
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagUndefined, TagNil, TagTrue, TagFalse:
		return true
	case TagNumber:
		return a.num == b.num
	case TagObj:
		return a.obj == b.obj
	default:
		return false
	}
}

// Hash mixes a Value down to a 32-bit hash for use as a Table key.
// Nil/True/False/Undefined hash to small distinct constants; Number
// mixes its IEEE bit pattern through murmur3's 32-bit finalizer (the
// same avalanche step the teacher uses for every on-disk checksum, here
// repurposed as a general-purpose integer mixer instead of a streaming
// hash); Obj hashes the pointer identity, except String which uses its
// cached byte hash so interned-equal strings always hash equal.
func Hash(v Value) uint32 {
	switch v.tag {
	case TagUndefined:
		return 1
	case TagNil:
		return 2
	case TagTrue:
		return 3
	case TagFalse:
		return 4
	case TagNumber:
		return hashNumber(v.num)
	case TagObj:
		if s, ok := v.obj.(*ObjString); ok {
			return s.hash
		}
		return hashPointer(v.obj)
	default:
		return 0
	}
}

func hashNumber(n float64) uint32 {
	bits := math.Float64bits(n)
	lo := uint32(bits)
	hi := uint32(bits >> 32)
	return murmur3.Fmix32(lo ^ murmur3.Fmix32(hi))
}

func hashPointer(o Obj) uint32 {
	addr := objAddr(o)
	return murmur3.Fmix32(uint32(addr)) ^ murmur3.Fmix32(uint32(addr>>32))
}

// FNV1a32 hashes a byte string the way the spec requires for ObjString:
// a 32-bit FNV-1a over the raw bytes.
func FNV1a32(data []byte) uint32 {
	const (
		offsetBasis uint32 = 2166136261
		prime       uint32 = 16777619
	)
	h := offsetBasis
	for _, b := range data {
		h ^= uint32(b)
		h *= prime
	}
	return h
}

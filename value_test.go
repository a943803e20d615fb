package subtle

import "testing"

func TestValueTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil, false},
		{False, false},
		{True, true},
		{Number(0), true},
		{Number(-1), true},
		{FromObj(&ObjString{chars: []byte("")}), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestValueEqual(t *testing.T) {
	s1 := &ObjString{chars: []byte("x")}
	s2 := &ObjString{chars: []byte("x")}

	cases := []struct {
		a, b Value
		want bool
	}{
		{Nil, Nil, true},
		{Nil, Undefined, false},
		{True, True, true},
		{True, False, false},
		{Number(1), Number(1), true},
		{Number(1), Number(2), false},
		{Number(0), Number(-0), true},
		// Not interned here: distinct ObjString pointers with equal
		// bytes are NOT Equal. Pointer-equal-iff-interned is an
		// invariant NewString upholds, not something Equal checks on
		// its own (spec.md §3).
		{FromObj(s1), FromObj(s2), false},
		{FromObj(s1), FromObj(s1), true},
	}
	for _, c := range cases {
		if got := Equal(c.a, c.b); got != c.want {
			t.Errorf("Equal(%+v, %+v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestValueEqualNaN(t *testing.T) {
	nan := Number(nan())
	if Equal(nan, nan) {
		t.Fatal("NaN must not equal itself, per spec.md §4.1's IEEE-754 comparison")
	}
}

func nan() float64 {
	var z float64
	return z / z
}

func TestHashStringUsesCachedHash(t *testing.T) {
	s := &ObjString{chars: []byte("abc"), hash: 42}
	if got := Hash(FromObj(s)); got != 42 {
		t.Errorf("Hash(string) = %d, want cached hash 42", got)
	}
}

func TestHashScalarsDistinct(t *testing.T) {
	seen := map[uint32]string{
		Hash(Undefined): "undefined",
		Hash(Nil):       "nil",
		Hash(True):      "true",
		Hash(False):     "false",
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct scalar hashes, got %d: %v", len(seen), seen)
	}
}

func TestFNV1a32Deterministic(t *testing.T) {
	a := FNV1a32([]byte("hello"))
	b := FNV1a32([]byte("hello"))
	if a != b {
		t.Fatalf("FNV1a32 not deterministic: %d != %d", a, b)
	}
	if FNV1a32([]byte("hello")) == FNV1a32([]byte("world")) {
		t.Fatal("FNV1a32 collided on two short distinct inputs (possible, but suspiciously unlucky for a smoke test)")
	}
}

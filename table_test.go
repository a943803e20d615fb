package subtle

import (
	"math/rand"
	"testing"
)

// TestTableBasicGetSetDelete mirrors the teacher's plain table-driven
// style before the property test below exercises a random sequence.
func TestTableBasicGetSetDelete(t *testing.T) {
	var tbl Table

	if _, ok := tbl.Get(Number(1)); ok {
		t.Fatal("Get on an empty table must miss")
	}
	if tbl.Capacity() != 0 {
		t.Fatalf("zero-value Table must start at capacity 0, got %d", tbl.Capacity())
	}

	if isNew := tbl.Set(Number(1), Number(100)); !isNew {
		t.Fatal("first Set of a key must report isNew")
	}
	if v, ok := tbl.Get(Number(1)); !ok || v.AsNumber() != 100 {
		t.Fatalf("Get(1) = (%v, %v), want (100, true)", v, ok)
	}
	if isNew := tbl.Set(Number(1), Number(200)); isNew {
		t.Fatal("overwriting an existing key must not report isNew")
	}
	if v, _ := tbl.Get(Number(1)); v.AsNumber() != 200 {
		t.Fatalf("Get(1) after overwrite = %v, want 200", v)
	}

	if existed := tbl.Delete(Number(1)); !existed {
		t.Fatal("deleting a present key must report existed")
	}
	if existed := tbl.Delete(Number(1)); existed {
		t.Fatal("deleting an absent key must not report existed")
	}
	if _, ok := tbl.Get(Number(1)); ok {
		t.Fatal("Get after Delete must miss")
	}
}

// TestTableGrowthPreservesPriorInsertions directly exercises spec.md
// §8's "after growth, the relative order of insertions does not affect
// the result of any subsequent get" by inserting enough distinct keys
// to force at least one grow() and then re-reading every one of them.
func TestTableGrowthPreservesPriorInsertions(t *testing.T) {
	var tbl Table
	const n = 100
	for i := 0; i < n; i++ {
		tbl.Set(Number(float64(i)), Number(float64(i*i)))
	}
	if tbl.Capacity() < n {
		t.Fatalf("expected capacity to have grown past %d entries, got %d", n, tbl.Capacity())
	}
	for i := 0; i < n; i++ {
		v, ok := tbl.Get(Number(float64(i)))
		if !ok || v.AsNumber() != float64(i*i) {
			t.Fatalf("Get(%d) = (%v, %v), want (%d, true)", i, v, ok, i*i)
		}
	}
}

// TestTablePropertyRandomSequence runs a seeded random sequence of
// set/delete/get against both the Table and a plain Go map oracle,
// checking spec.md §8's hash-table invariants after every step.
func TestTablePropertyRandomSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(12345))
	var tbl Table
	oracle := map[float64]float64{}

	const keyDomain = 37 // small enough to force collisions and tombstone reuse
	const steps = 5000

	for i := 0; i < steps; i++ {
		key := float64(rng.Intn(keyDomain))
		switch rng.Intn(3) {
		case 0, 1: // set, weighted to grow the live set more than it shrinks
			val := rng.Float64()
			tbl.Set(Number(key), Number(val))
			oracle[key] = val
		case 2:
			tbl.Delete(Number(key))
			delete(oracle, key)
		}

		if tbl.Valid() != len(oracle) {
			t.Fatalf("step %d: Valid() = %d, want %d (oracle size)", i, tbl.Valid(), len(oracle))
		}
		if tbl.Count() < tbl.Valid() {
			t.Fatalf("step %d: Count() = %d < Valid() = %d", i, tbl.Count(), tbl.Valid())
		}
		if cap := tbl.Capacity(); cap != 0 {
			if !isPow2(cap) || cap < 8 {
				t.Fatalf("step %d: capacity %d is not a power of two >= 8", i, cap)
			}
			if float64(tbl.Count()) > float64(cap)*maxLoad {
				t.Fatalf("step %d: count %d exceeds 0.75 * capacity %d", i, tbl.Count(), cap)
			}
		}
	}

	for key, want := range oracle {
		got, ok := tbl.Get(Number(key))
		if !ok || got.AsNumber() != want {
			t.Fatalf("final check: Get(%v) = (%v, %v), want (%v, true)", key, got, ok, want)
		}
	}
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// TestTableFindStringInterningLookup exercises the interning
// specialization directly (not through NewString), confirming it
// terminates at the first empty slot and ignores tombstones correctly.
func TestTableFindStringInterningLookup(t *testing.T) {
	var tbl Table
	s := &ObjString{chars: []byte("hello"), hash: FNV1a32([]byte("hello"))}
	tbl.Set(FromObj(s), True)

	found := tbl.FindString([]byte("hello"), FNV1a32([]byte("hello")))
	if found != s {
		t.Fatalf("FindString did not return the interned *ObjString")
	}
	if tbl.FindString([]byte("nope"), FNV1a32([]byte("nope"))) != nil {
		t.Fatal("FindString found a string that was never inserted")
	}
}

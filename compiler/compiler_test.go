package compiler_test

import (
	"testing"

	subtle "github.com/gholt/subtlevm"
	"github.com/gholt/subtlevm/compiler"
)

// run compiles and executes source against a fresh VM, failing the test
// if compilation produced any errors.
func run(t *testing.T, source string) (subtle.Result, *subtle.RuntimeError) {
	t.Helper()
	vm := subtle.New(nil)
	fn, errs := compiler.Compile(vm, source)
	if len(errs) > 0 {
		t.Fatalf("unexpected compile errors for %q: %v", source, errs)
	}
	return vm.Interpret(fn)
}

// runExpectCompileError compiles source and requires at least one
// compile error be reported (and, consequently, no function returned).
func runExpectCompileError(t *testing.T, source string) {
	t.Helper()
	vm := subtle.New(nil)
	fn, errs := compiler.Compile(vm, source)
	if len(errs) == 0 || fn != nil {
		t.Fatalf("expected a compile error for %q, got fn=%v errs=%v", source, fn, errs)
	}
}

// --- spec.md §8 interpreter end-to-end scenarios ---------------------------

func TestScenarioOperatorPrecedence(t *testing.T) {
	result, err := run(t, `let x = 1 + 2 * 3; assert x == 7`)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

func TestScenarioStringConcatInterns(t *testing.T) {
	result, err := run(t, `let s = "foo" + "bar"; assert s == "foobar"`)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

func TestScenarioClosureUpvalueCapture(t *testing.T) {
	source := `
		let counter = fn() { let n = 0; fn() { n = n + 1; n } };
		let c = counter();
		assert c() == 1;
		assert c() == 2;
		assert c() == 3
	`
	result, err := run(t, source)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

func TestScenarioObjectLiteralAndOwnSlot(t *testing.T) {
	source := `
		let o = { a: 1, b: 2 };
		o.c = 3;
		assert o.a + o.b + o.c == 6;
		assert o.hasOwnSlot("a");
		assert !o.hasOwnSlot("d")
	`
	result, err := run(t, source)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

func TestScenarioPrototypeDelegationAndAncestry(t *testing.T) {
	source := `
		let p = { greet: fn() { "hi" } };
		let q = { };
		q.setProto(p);
		assert q.greet() == "hi";
		assert q.hasAncestor(p)
	`
	result, err := run(t, source)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

func TestScenarioAllocationStressLinkedList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping allocation stress scenario in -short mode")
	}
	source := `
		let n = 100000;
		let head = { };
		let i = 0;
		while i < n {
			let next = { };
			next.prev = head;
			head = next;
			i = i + 1;
		}
		let count = 0;
		let cur = head;
		while !(cur.prev == nil) {
			count = count + 1;
			cur = cur.prev;
		}
		assert count == n
	`
	result, err := run(t, source)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

// --- spec.md §8 runtime-error scenarios -------------------------------------

func TestScenarioUndefinedVariable(t *testing.T) {
	result, _ := run(t, `assert undefined_var`)
	if result != subtle.ResultRuntimeError {
		t.Fatalf("result = %v, want RuntimeError (undefined global)", result)
	}
}

func TestScenarioMissingSlotOnNumber(t *testing.T) {
	result, _ := run(t, `(1).foo()`)
	if result != subtle.ResultRuntimeError {
		t.Fatalf("result = %v, want RuntimeError (missing slot)", result)
	}
}

func TestScenarioNumberPlusStringTypeMismatch(t *testing.T) {
	result, _ := run(t, `1 + "x"`)
	if result != subtle.ResultRuntimeError {
		t.Fatalf("result = %v, want RuntimeError (+ does not accept a string)", result)
	}
}

func TestScenarioAssertFailed(t *testing.T) {
	result, _ := run(t, `assert false`)
	if result != subtle.ResultRuntimeError {
		t.Fatalf("result = %v, want RuntimeError (assertion failed)", result)
	}
}

// --- compile-error handling --------------------------------------------------

func TestCompileErrorUnterminatedString(t *testing.T) {
	runExpectCompileError(t, `let s = "never closed`)
}

func TestCompileErrorUnexpectedCharacter(t *testing.T) {
	runExpectCompileError(t, `let x = 1 @ 2`)
}

func TestCompileErrorAccumulatesMultiple(t *testing.T) {
	vm := subtle.New(nil)
	_, errs := compiler.Compile(vm, "let = ; let = ;")
	if len(errs) < 2 {
		t.Fatalf("expected multiple accumulated compile errors, got %d: %v", len(errs), errs)
	}
}

// --- smaller language-feature unit tests --------------------------------------

func TestBareCallInvokesThroughCallProtocol(t *testing.T) {
	// A bare call desugars to OP_INVOKE "call" with the callee as its
	// own receiver (core.go's Fn.call), which is why `this` inside a
	// plainly-called function is the function itself rather than nil.
	source := `
		let f = fn() { this };
		let r = f();
		assert !(r == nil)
	`
	result, err := run(t, source)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

func TestLocalShadowsGlobal(t *testing.T) {
	source := `
		let x = 1;
		let f = fn() { let x = 2; x };
		assert f() == 2;
		assert x == 1
	`
	result, err := run(t, source)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

func TestIfElseBranches(t *testing.T) {
	source := `
		let classify = fn(n) {
			if n < 0 { "neg" } else {
				if n == 0 { "zero" } else { "pos" }
			}
		};
		assert classify(-1) == "neg";
		assert classify(0) == "zero";
		assert classify(1) == "pos"
	`
	result, err := run(t, source)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

func TestAndOrShortCircuit(t *testing.T) {
	source := `
		let calls = { n: 0 };
		let sideEffect = fn() { calls.n = calls.n + 1; true };
		let a = false and sideEffect();
		assert calls.n == 0;
		let b = true or sideEffect();
		assert calls.n == 0;
		assert !a;
		assert b
	`
	result, err := run(t, source)
	if result != subtle.ResultOK {
		t.Fatalf("result = %v, err = %v, want Ok", result, err)
	}
}

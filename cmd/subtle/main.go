// Command subtle is a REPL and script runner for the language this
// module's package implements. It mirrors original_source/main.c's
// unconditional vm_init/repl/vm_free shape, extended with a positional
// script-file argument and a --dump flag for inspecting compiled
// bytecode, in the options-struct style of reference/brimstore-valuesstore's
// main.go (a go-flags parser over a struct, positional args for file-like
// inputs).
package main

import (
	"bufio"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	subtlevm "github.com/gholt/subtlevm"
	"github.com/gholt/subtlevm/compiler"
	"github.com/gholt/subtlevm/internal/debugdump"
)

type optsStruct struct {
	Dump       bool `long:"dump" description:"Disassemble compiled bytecode to stderr before running it."`
	Stats      bool `long:"stats" description:"Print GC stats to stderr after running."`
	Positional struct {
		Script string `positional-arg-name:"script" description:"Path to a script file; omit for a REPL."`
	} `positional-args:"yes"`
}

func main() {
	var opts optsStruct
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	vm := subtlevm.New(nil)

	if opts.Positional.Script != "" {
		os.Exit(runFile(vm, opts.Positional.Script, opts))
		return
	}
	repl(vm, opts)
}

func runFile(vm *subtlevm.VM, path string, opts optsStruct) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subtle: %v\n", err)
		return 1
	}
	return runSource(vm, string(source), path, opts)
}

func repl(vm *subtlevm.VM, opts optsStruct) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		runSource(vm, scanner.Text(), "repl", opts)
	}
}

// runSource compiles and runs one program, returning a process exit
// code (0 for Ok, 1 otherwise) so runFile can propagate it; the REPL
// ignores the return value and keeps looping regardless of outcome,
// matching vm_interpret's per-line contract in the original REPL.
func runSource(vm *subtlevm.VM, source, name string, opts optsStruct) int {
	fn, errs := compiler.Compile(vm, source)
	if len(errs) > 0 {
		return 1
	}

	if opts.Dump {
		debugdump.DumpChunk(os.Stderr, name, fn.Chunk)
	}

	result, err := vm.Interpret(fn)
	if opts.Stats {
		debugdump.DumpStats(os.Stderr, vm.Stats())
	}
	if result != subtlevm.ResultOK {
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		return 1
	}
	return 0
}

// Package debugdump renders a Chunk's bytecode and a VM's collector
// stats as aligned text, in the spirit of original_source/debug.c's
// debug_print_chunk/debug_print_instruction, but using brimtext's
// column alignment instead of hand-rolled printf widths. It is not on
// any Interpret code path: the CLI's --dump and --stats flags are the
// only callers.
package debugdump

import (
	"fmt"
	"io"

	"github.com/gholt/brimtext"

	subtlevm "github.com/gholt/subtlevm"
)

// DumpChunk writes one row per instruction in c to w, headed by name.
func DumpChunk(w io.Writer, name string, c *subtlevm.Chunk) {
	fmt.Fprintf(w, "==== %s ====\n", name)
	rows := make([][]string, 0, c.Len())
	lastLine := -1
	for offset := 0; offset < c.Len(); {
		line := c.GetLine(offset)
		lineCol := "   |"
		if line != lastLine {
			lineCol = fmt.Sprintf("%4d", line)
			lastLine = line
		}
		var row []string
		row, offset = disassemble(c, offset)
		rows = append(rows, append([]string{lineCol}, row...))
	}
	fmt.Fprint(w, brimtext.Align(rows, nil))
}

// disassemble decodes the instruction at offset, returning its display
// columns and the offset of the following instruction.
func disassemble(c *subtlevm.Chunk, offset int) ([]string, int) {
	op := subtlevm.Opcode(c.Code[offset])
	switch op {
	case subtlevm.OpGetLocal, subtlevm.OpSetLocal,
		subtlevm.OpGetUpvalue, subtlevm.OpSetUpvalue:
		slot := c.Code[offset+1]
		return []string{fmt.Sprintf("%4d", offset), op.String(), fmt.Sprintf("%d", slot)}, offset + 2

	case subtlevm.OpConstant, subtlevm.OpDefGlobal, subtlevm.OpGetGlobal,
		subtlevm.OpSetGlobal, subtlevm.OpObjectSet, subtlevm.OpClosure:
		idx := c.ReadOffset(offset + 1)
		cols := []string{fmt.Sprintf("%4d", offset), op.String(), fmt.Sprintf("%d", idx), formatValue(c.Constants[idx])}
		next := offset + 3
		if op == subtlevm.OpClosure {
			fn, ok := c.Constants[idx].AsObj().(*subtlevm.ObjFunction)
			if ok {
				for i := 0; i < fn.UpvalueCount; i++ {
					isLocal := c.Code[next]
					index := c.Code[next+1]
					kind := "upvalue"
					if isLocal != 0 {
						kind = "local"
					}
					cols = append(cols, fmt.Sprintf("%s %d", kind, index))
					next += 2
				}
			}
		}
		return cols, next

	case subtlevm.OpInvoke:
		idx := c.ReadOffset(offset + 1)
		argc := c.Code[offset+3]
		return []string{fmt.Sprintf("%4d", offset), op.String(), formatValue(c.Constants[idx]), fmt.Sprintf("(%d args)", argc)}, offset + 4

	case subtlevm.OpJump, subtlevm.OpJumpIfTrue, subtlevm.OpJumpIfFalse:
		delta := c.ReadOffset(offset + 1)
		return []string{fmt.Sprintf("%4d", offset), op.String(), fmt.Sprintf("-> %d", offset+3+int(delta))}, offset + 3

	case subtlevm.OpLoop:
		delta := c.ReadOffset(offset + 1)
		return []string{fmt.Sprintf("%4d", offset), op.String(), fmt.Sprintf("-> %d", offset+3-int(delta))}, offset + 3

	default:
		return []string{fmt.Sprintf("%4d", offset), op.String()}, offset + 1
	}
}

// formatValue renders a constant-pool Value the way debug_print_value
// does: literally for scalars, the raw bytes for a string, a tag name
// for anything heap-allocated that isn't printable standalone.
func formatValue(v subtlevm.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsTrue():
		return "true"
	case v.IsFalse():
		return "false"
	case v.IsNumber():
		return fmt.Sprintf("%g", v.AsNumber())
	case v.IsString():
		return fmt.Sprintf("%q", v.AsString().String())
	default:
		return "<fn>"
	}
}

// DumpStats renders a VM's GC counters as an aligned key/value table.
func DumpStats(w io.Writer, stats subtlevm.GCStats) {
	rows := [][]string{
		{"bytesAllocated", fmt.Sprintf("%d", stats.BytesAllocated)},
		{"nextGC", fmt.Sprintf("%d", stats.NextGC)},
		{"collections", fmt.Sprintf("%d", stats.Collections)},
	}
	fmt.Fprint(w, brimtext.Align(rows, nil))
}

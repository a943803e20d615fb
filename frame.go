package subtle

// CallFrame is one activation record: the closure being executed, an
// instruction pointer into that closure's function's chunk, and the
// value-stack index marking the frame's slot 0 (spec.md §4.5).
type CallFrame struct {
	closure  *ObjClosure
	ip       int
	slotBase int
}

func (f *CallFrame) chunk() *Chunk { return f.closure.Function.Chunk }

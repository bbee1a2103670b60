package compiler

import "github.com/skx/cc32/ast"

// entry is one named slot in a stack frame or in the global symbol
// table: a type plus an addressing base. Globals use their linker
// name as the base; frame-local entries use "" and are always
// relative to ebp.
type entry struct {
	typ    ast.Type
	name   string
	global string // "" for a frame-local entry, else the base symbol name
	addr   int    // byte offset from ebp (locals/params) or 0 (globals)
}

// Value renders this entry's addressing-mode operand. offset is
// either an int (a statically-known index, scaled by element size
// internally below) or a string holding a register name, for a
// dynamically-indexed array access. prefix controls whether the
// "dword"/"byte" size keyword is included.
func (e entry) Value(offset interface{}, prefix bool) string {
	isChar := primType(e.typ) == "char"
	sizePrefix := ""
	if prefix {
		if isChar {
			sizePrefix = "byte"
		} else {
			sizePrefix = "dword"
		}
	}

	base := "ebp"
	baseAddr := e.addr
	if e.global != "" {
		base = e.global
		baseAddr = 0
	}

	if reg, ok := offset.(string); ok {
		// Indexed by a register whose value isn't known until
		// runtime: NASM, not Go, has to do the index*elemSize
		// multiply, so the scale is emitted as literal text.
		scale := ""
		if !isChar {
			scale = "4*"
		}
		head := e.Value(0, prefix)
		return head[:len(head)-1] + "+" + scale + reg + "]"
	}

	// A compile-time-known index: scale it into a byte count here,
	// in Go, and fold it straight into the base address rather than
	// emitting a "4*N" expression for the assembler to compute.
	idx := offset.(int)
	if !isChar {
		idx *= 4
	}
	off := baseAddr + idx
	if off == 0 {
		return sizePrefix + "[" + base + "]"
	}
	if off > 0 {
		return sizePrefix + "[" + base + "+" + itoaFrame(off) + "]"
	}
	return sizePrefix + "[" + base + "-" + itoaFrame(-off) + "]"
}

func primType(t ast.Type) string {
	switch v := t.(type) {
	case ast.Primitive:
		return v.Name
	case *ast.Array:
		return v.Elem.Name
	default:
		return "int"
	}
}

func itoaFrame(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoaFrame(-n)
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// StackFrame is an immutable snapshot of a function's parameters and
// the locals in scope at some point in its body. Extending it (on
// entering a block) produces a new frame that shares the unextended
// prefix rather than mutating this one.
type StackFrame struct {
	entries []entry
	table   map[string]entry
}

// NewStackFrame builds the initial frame for a function from its
// parameter name list: each is int-sized and addressed at ebp+8,
// ebp+12, ... in declaration order, reversed so the table reflects
// how they were pushed (right-to-left by the caller).
func NewStackFrame(params []string) StackFrame {
	f := StackFrame{entries: make([]entry, 0, len(params))}
	for i := len(params) - 1; i >= 0; i-- {
		f.entries = append(f.entries, entry{
			typ:  ast.Primitive{Name: "int"},
			addr: 8 + 4*i,
		})
	}
	// names are attached in a second pass so the addr computation
	// above doesn't need to thread them through
	for i, p := range params {
		f.entries[len(params)-1-i].name = p
	}
	f.buildTable()
	return f
}

func (f *StackFrame) buildTable() {
	f.table = make(map[string]entry, len(f.entries))
	for _, e := range f.entries {
		f.table[e.name] = e
	}
}

func (f StackFrame) lastLocalAddr() int {
	if len(f.entries) == 0 {
		return 0
	}
	last := f.entries[len(f.entries)-1]
	if last.addr <= 0 {
		return last.addr
	}
	return 0
}

// Extend returns a new frame with the given local declarations
// appended below the current lowest local (or below ebp, for the
// first block), and the total byte count those locals occupy.
func (f StackFrame) Extend(locals []*ast.LocalDeclaration) (StackFrame, int) {
	out := StackFrame{entries: append([]entry(nil), f.entries...)}
	last := f.lastLocalAddr()
	for _, v := range locals {
		last -= v.Type.Size()
		out.entries = append(out.entries, entry{typ: v.Type, name: v.Name, addr: last})
	}
	out.buildTable()
	return out, f.lastLocalAddr() - last
}

// Size is the number of bytes of locals (negative-offset entries)
// currently in this frame; it excludes parameters.
func (f StackFrame) Size() int {
	if len(f.entries) == 0 {
		return 0
	}
	last := f.entries[len(f.entries)-1]
	if last.addr > 0 {
		return 0
	}
	return -last.addr
}

// Lookup returns the entry for name and whether it was found.
func (f StackFrame) Lookup(name string) (entry, bool) {
	e, ok := f.table[name]
	return e, ok
}

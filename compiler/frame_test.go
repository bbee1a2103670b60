package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/cc32/ast"
)

func TestNewStackFrameAddressesParams(t *testing.T) {
	f := NewStackFrame([]string{"a", "b", "c"})

	a, ok := f.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 8, a.addr)

	b, ok := f.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, 12, b.addr)

	c, ok := f.Lookup("c")
	require.True(t, ok)
	assert.Equal(t, 16, c.addr)
}

func TestStackFrameExtendAddsNegativeOffsets(t *testing.T) {
	f := NewStackFrame(nil)
	extended, size := f.Extend([]*ast.LocalDeclaration{
		{Type: ast.Primitive{Name: "int"}, Name: "x"},
		{Type: ast.Primitive{Name: "char"}, Name: "ch"},
	})
	assert.Equal(t, 5, size)

	x, ok := extended.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, -4, x.addr)

	ch, ok := extended.Lookup("ch")
	require.True(t, ok)
	assert.Equal(t, -5, ch.addr)
}

func TestStackFrameExtendDoesNotMutateOriginal(t *testing.T) {
	f := NewStackFrame(nil)
	_, _ = f.Extend([]*ast.LocalDeclaration{{Type: ast.Primitive{Name: "int"}, Name: "x"}})

	_, ok := f.Lookup("x")
	assert.False(t, ok, "extending a frame must not mutate the original")
}

func TestStackFrameExtendNestsBelowPriorLocals(t *testing.T) {
	f := NewStackFrame(nil)
	f1, _ := f.Extend([]*ast.LocalDeclaration{{Type: ast.Primitive{Name: "int"}, Name: "x"}})
	f2, size := f1.Extend([]*ast.LocalDeclaration{{Type: ast.Primitive{Name: "int"}, Name: "y"}})
	assert.Equal(t, 4, size)

	y, ok := f2.Lookup("y")
	require.True(t, ok)
	assert.Equal(t, -8, y.addr)
}

func TestEntryValueAddressing(t *testing.T) {
	e := entry{typ: ast.Primitive{Name: "int"}, addr: -4}
	assert.Equal(t, "dword[ebp-4]", e.Value(0, true))

	g := entry{typ: ast.Primitive{Name: "char"}, global: "msg"}
	assert.Equal(t, "byte[msg+3]", g.Value(3, true))
}

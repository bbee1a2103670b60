package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/cc32/ast"
)

func parseExprString(t *testing.T, src string) ast.Expression {
	t.Helper()
	p := NewParser("int f() { " + src + "; }")
	prog := p.ParseProgram()
	require.Empty(t, p.Errors, "unexpected syntax errors")
	require.Len(t, prog.Decls, 1)
	fn, ok := prog.Decls[0].(*ast.Function)
	require.True(t, ok)
	require.Len(t, fn.Body.Items, 1)
	stmt, ok := fn.Body.Items[0].(*ast.ExpressionStmt)
	require.True(t, ok)
	return stmt.Expr
}

func TestPrecedenceArithmetic(t *testing.T) {
	// "1 + 2 * 3" must bind as 1 + (2 * 3): * is tighter than +.
	e := parseExprString(t, "1 + 2 * 3")
	bin, ok := e.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "+", bin.Op)

	rhs, ok := bin.Rhs.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "*", rhs.Op)
}

func TestAssignmentIsRightAssociativeAndLowest(t *testing.T) {
	// "a = b = 1 + 2" must bind as a = (b = (1 + 2)).
	e := parseExprString(t, "a = b = 1 + 2")
	outer, ok := e.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "=", outer.Op)
	assert.IsType(t, &ast.Identifier{}, outer.Lhs)

	inner, ok := outer.Rhs.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "=", inner.Op)
	assert.IsType(t, &ast.Binary{}, inner.Rhs)
}

func TestLogicalAndOrShareATier(t *testing.T) {
	// "a || b && c" is left-associative across the shared tier, not
	// grouped as "a || (b && c)" the way C's split precedence would.
	e := parseExprString(t, "a || b && c")
	outer, ok := e.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "&&", outer.Op)
	assert.IsType(t, &ast.Binary{}, outer.Lhs)

	lhs := outer.Lhs.(*ast.Binary)
	assert.Equal(t, "||", lhs.Op)
}

func TestUnaryIsRightAssociative(t *testing.T) {
	e := parseExprString(t, "!!a")
	outer, ok := e.(*ast.Unary)
	require.True(t, ok)
	assert.Equal(t, ast.UnaryNot, outer.Op)
	inner, ok := outer.Expr.(*ast.Unary)
	require.True(t, ok)
	assert.Equal(t, ast.UnaryNot, inner.Op)
}

func TestStarIsMultiplyNotDereferenceMidExpression(t *testing.T) {
	e := parseExprString(t, "a * b")
	bin, ok := e.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "*", bin.Op)
	assert.IsType(t, &ast.Identifier{}, bin.Lhs)
	assert.IsType(t, &ast.Identifier{}, bin.Rhs)
}

func TestStarIsDereferenceAtExpressionStart(t *testing.T) {
	e := parseExprString(t, "*p")
	deref, ok := e.(*ast.Dereference)
	require.True(t, ok)
	assert.False(t, deref.IsChar)
	assert.IsType(t, &ast.Identifier{}, deref.Expr)
}

func TestHashIsByteDereference(t *testing.T) {
	e := parseExprString(t, "#p")
	deref, ok := e.(*ast.Dereference)
	require.True(t, ok)
	assert.True(t, deref.IsChar)
}

func TestAddressOfArrayAccess(t *testing.T) {
	e := parseExprString(t, "&arr[1]")
	addr, ok := e.(*ast.Address)
	require.True(t, ok)
	assert.IsType(t, &ast.ArrayAccess{}, addr.LValue)
}

func TestFunctionCallArgs(t *testing.T) {
	e := parseExprString(t, "add(1, 2, x)")
	call, ok := e.(*ast.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "add", call.Name)
	assert.Len(t, call.Args, 3)
}

func TestSyscallCall(t *testing.T) {
	e := parseExprString(t, "$write(1, buf, 5)")
	call, ok := e.(*ast.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "$write", call.Name)
	assert.Len(t, call.Args, 3)
}

func TestDanglingElseAttachesToNearestIf(t *testing.T) {
	src := `
int f() {
	if (a)
		if (b)
			return 1;
		else
			return 2;
}`
	p := NewParser(src)
	prog := p.ParseProgram()
	require.Empty(t, p.Errors)
	fn := prog.Decls[0].(*ast.Function)
	outer := fn.Body.Items[0].(*ast.If)
	assert.Nil(t, outer.Else)
	inner := outer.Then.(*ast.If)
	assert.NotNil(t, inner.Else)
}

func TestGlobalVariableDeclaration(t *testing.T) {
	p := NewParser("int counter = 0;")
	prog := p.ParseProgram()
	require.Empty(t, p.Errors)
	require.Len(t, prog.Decls, 1)
	gv, ok := prog.Decls[0].(*ast.GlobalVariable)
	require.True(t, ok)
	assert.Equal(t, "counter", gv.Name)
	lit := gv.Initializer.(*ast.Literal)
	assert.Equal(t, 0, lit.Int)
}

func TestArrayDeclarationWithInferredLength(t *testing.T) {
	p := NewParser(`char msg[] = "hi";`)
	prog := p.ParseProgram()
	require.Empty(t, p.Errors)
	gv := prog.Decls[0].(*ast.GlobalVariable)
	arr, ok := gv.Type.(*ast.Array)
	require.True(t, ok)
	assert.Equal(t, 0, arr.Length)
	lit := gv.Initializer.(*ast.Literal)
	assert.Equal(t, "hi", lit.Str)
}

func TestFunctionWithParams(t *testing.T) {
	p := NewParser("int add(a, b) { return a + b; }")
	prog := p.ParseProgram()
	require.Empty(t, p.Errors)
	fn := prog.Decls[0].(*ast.Function)
	assert.Equal(t, []string{"a", "b"}, fn.ParamNames)
}

func TestExportFunction(t *testing.T) {
	p := NewParser("export main();")
	prog := p.ParseProgram()
	require.Empty(t, p.Errors)
	exp := prog.Decls[0].(*ast.Export)
	assert.Equal(t, "main", exp.Name)
	assert.True(t, exp.IsFunction)
}

func TestExternCWithVarargs(t *testing.T) {
	p := NewParser(`extern "C" int printf(char[] fmt, ...);`)
	prog := p.ParseProgram()
	require.Empty(t, p.Errors)
	ext := prog.Decls[0].(*ast.Extern)
	assert.Equal(t, "printf", ext.Name)
	assert.Equal(t, ast.LinkageC, ext.Linkage)
	assert.Equal(t, "C", ext.LinkageName)
	assert.True(t, ext.Varargs)
	assert.Equal(t, []string{"fmt"}, ext.ParamNames)
}

func TestExternWithBogusLinkageStringParsesCleanly(t *testing.T) {
	// An unrecognized linkage string is not a syntax error: the parser
	// carries it through untouched and leaves validating it to the
	// code generator.
	p := NewParser(`extern "Pascal" int thing();`)
	prog := p.ParseProgram()
	require.Empty(t, p.Errors)
	ext := prog.Decls[0].(*ast.Extern)
	assert.Equal(t, ast.LinkageC, ext.Linkage)
	assert.Equal(t, "Pascal", ext.LinkageName)
}

func TestSyntaxErrorResynchronizesToNextDeclaration(t *testing.T) {
	src := `
int broken( {
	return 1;
}
int ok() {
	return 2;
}`
	p := NewParser(src)
	prog := p.ParseProgram()
	assert.NotEmpty(t, p.Errors)
	found := false
	for _, d := range prog.Decls {
		if fn, ok := d.(*ast.Function); ok && fn.Name == "ok" {
			found = true
		}
	}
	assert.True(t, found, "parser should recover and still see the following declaration")
}

package compiler

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/cc32/target"
)

// compactFormatter strips all column padding so tests can assert on
// exact instruction text without depending on the default 16/8/40
// layout widths.
func compactFormatter(w io.Writer) *Formatter {
	return &Formatter{w: bufio.NewWriter(w)}
}

func compileLinux(t *testing.T, src string) string {
	t.Helper()
	c, err := New(src, WithTarget(target.Linux()), WithFormat(compactFormatter))
	require.NoError(t, err)
	result, err := c.Compile()
	require.NoError(t, err)
	return result.Assembly
}

func TestGlobalIntVariable(t *testing.T) {
	asm := compileLinux(t, "int x = 5;")
	assert.Contains(t, asm, "SECTION .data")
	assert.Contains(t, asm, "x:")
	assert.Contains(t, asm, "dd 5")
}

func TestGlobalCharArrayFromStringLiteral(t *testing.T) {
	asm := compileLinux(t, `char msg[] = "hi";`)
	assert.Contains(t, asm, "msg:")
	assert.Contains(t, asm, "db `hi`")
	// no synthesized string global should appear for an already-named
	// char array initialized directly from a string literal.
	assert.NotContains(t, asm, "??sl0")
}

func TestMainPrologueAndEpilogue(t *testing.T) {
	asm := compileLinux(t, "int main(argc, argv) { return 0; }")
	assert.Contains(t, asm, "?@main:")
	assert.Contains(t, asm, "push ebp")
	assert.Contains(t, asm, "mov ebp,esp")
	assert.Contains(t, asm, "push 0")
	assert.Contains(t, asm, ".return:")
	assert.Contains(t, asm, "pop eax")
	assert.Contains(t, asm, "mov esp,ebp")
	assert.Contains(t, asm, "pop ebp")
	assert.Contains(t, asm, "pop ebx")
	assert.Contains(t, asm, "add esp,8")
	assert.Contains(t, asm, "push eax")
	assert.Contains(t, asm, "jmp ebx")
}

func TestMainRequiresTwoParams(t *testing.T) {
	c, err := New("int main() { return 0; }", WithTarget(target.Linux()))
	require.NoError(t, err)
	_, err = c.Compile()
	require.Error(t, err)
}

func TestIfElseConditionLowering(t *testing.T) {
	asm := compileLinux(t, `
int f(a, b) {
	if (a == b)
		return 1;
	else
		return 2;
}`)
	assert.Contains(t, asm, "cmp eax,ebx")
	assert.Contains(t, asm, "jne .ifelse0")
}

func TestWhileLoopSubAddBracketTheWholeLoopNotEachIteration(t *testing.T) {
	asm := compileLinux(t, `
int f(n) {
	while (n) {
		int tmp;
		tmp = n;
		n = n - 1;
	}
	return 0;
}`)
	assert.Equal(t, 1, strings.Count(asm, "sub esp,4"))
	assert.Equal(t, 1, strings.Count(asm, "add esp,4"))

	sub := strings.Index(asm, "sub esp,4")
	begin := strings.Index(asm, ".while0")
	end := strings.Index(asm, ".endwhile0")
	add := strings.Index(asm, "add esp,4")
	require.True(t, sub >= 0 && begin >= 0 && end >= 0 && add >= 0)
	// the frame adjustment brackets the loop from outside its
	// back-edge, rather than sitting inside it and re-running every
	// time the loop jumps back to its head.
	assert.True(t, sub < begin)
	assert.True(t, end < add)
}

func TestExternInvalidLinkageIsACompilationError(t *testing.T) {
	c, err := New(`extern "Pascal" int thing();`, WithTarget(target.Linux()))
	require.NoError(t, err)

	_, err = c.Compile()
	require.Error(t, err)
	_, ok := err.(*CompilationError)
	assert.True(t, ok, "invalid extern linkage must be a *CompilationError, not a parse error")
}

func TestExternCCallAligns16Bytes(t *testing.T) {
	asm := compileLinux(t, `
extern "C" int printf(char[] fmt, ...);
int main(argc, argv) {
	printf("hi");
	return 0;
}`)
	assert.Contains(t, asm, "mov eax,esp")
	assert.Contains(t, asm, "and esp,0fffffff0h")
	assert.Contains(t, asm, "call _printf")
	assert.Contains(t, asm, "mov esp,[esp+4]")
}

func TestBreakInBareWhileIsPreservedLiterally(t *testing.T) {
	// "while (cond) break;" is a single side-effecting evaluation of
	// cond with no loop and no branch out at all, not "if (cond) break;".
	asm := compileLinux(t, `
int f(n) {
	while (n) break;
	return 0;
}`)
	assert.NotContains(t, asm, ".while0")
	assert.NotContains(t, asm, ".endwhile0")
}

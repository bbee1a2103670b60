package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/cc32/target"
)

func TestNewDefaultsToDetectedTarget(t *testing.T) {
	c, err := New("int x = 1;")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestWithTargetOverridesDetection(t *testing.T) {
	c, err := New("int x = 1;", WithTarget(target.Darwin()))
	require.NoError(t, err)
	assert.Equal(t, target.Darwin(), c.target)
}

func TestCompileReturnsAssemblyAndNoWarningsForCleanInput(t *testing.T) {
	c, err := New("int x = 1;\nint main(argc, argv) { return 0; }", WithTarget(target.Linux()))
	require.NoError(t, err)

	result, err := c.Compile()
	require.NoError(t, err)
	assert.Contains(t, result.Assembly, "SECTION .data")
	assert.Contains(t, result.Assembly, "SECTION .text")
	assert.Empty(t, result.Warnings)
}

func TestCompileSurfacesParseErrorsWithoutPanicking(t *testing.T) {
	c, err := New("int main(argc, argv) { return", WithTarget(target.Linux()))
	require.NoError(t, err)

	_, err = c.Compile()
	require.Error(t, err)
	_, ok := err.(*ParseError)
	assert.True(t, ok, "expected the first parse error to be returned as-is")
}

func TestCompileSurfacesCodeGenerationErrors(t *testing.T) {
	// main must take exactly two parameters; this is a code generation
	// check, not a syntax one, so it only surfaces once parsing succeeds.
	c, err := New("int main() { return 0; }", WithTarget(target.Linux()))
	require.NoError(t, err)

	_, err = c.Compile()
	require.Error(t, err)
	_, ok := err.(*CompilationError)
	assert.True(t, ok)
}

func TestWithDebugInsertsInt3(t *testing.T) {
	c, err := New("int main(argc, argv) { return 0; }", WithTarget(target.Linux()), WithDebug(true))
	require.NoError(t, err)

	result, err := c.Compile()
	require.NoError(t, err)
	assert.Contains(t, result.Assembly, "int3")
}

func TestWithoutDebugOmitsInt3(t *testing.T) {
	c, err := New("int main(argc, argv) { return 0; }", WithTarget(target.Linux()))
	require.NoError(t, err)

	result, err := c.Compile()
	require.NoError(t, err)
	assert.NotContains(t, result.Assembly, "int3")
}

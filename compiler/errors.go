package compiler

import "fmt"

// CompilationError is raised by the code generator when a program
// cannot be compiled (syntax errors are reported as *ParseError). It carries the AST node (or nil, for
// errors detected before any node exists) at which the problem was
// found.
type CompilationError struct {
	Message string
	Node    interface{}
}

func (e *CompilationError) Error() string {
	return e.Message
}

func newError(format string, node interface{}, args ...interface{}) *CompilationError {
	return &CompilationError{Message: fmt.Sprintf(format, args...), Node: node}
}

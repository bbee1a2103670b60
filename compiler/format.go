package compiler

import (
	"bufio"
	"io"
)

// Formatter is the assembly-text output writer: a two-state pending-
// label machine (empty / pending) plus fixed-width columns.
type Formatter struct {
	w      *bufio.Writer
	margin int
	iwidth int
	width  int
	label  string // "" means no label is pending
}

// NewFormatter wraps w with the default column widths (16/8/40),
// which are not configurable from the CLI.
func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: bufio.NewWriter(w), margin: 16, iwidth: 8, width: 40}
}

// Label queues name to be attached to the next emitted instruction or
// directive. If a label is already pending it is flushed on its own
// line first (two labels in a row both need to exist as symbols).
func (f *Formatter) Label(name string) {
	if name == "" {
		return
	}
	if f.label != "" {
		f.flushLabelAlone()
	}
	f.label = name
}

func (f *Formatter) flushLabelAlone() {
	f.w.WriteString(f.label + ":\n")
	f.label = ""
}

// Blank emits an empty line, or the pending label alone if one exists.
func (f *Formatter) Blank() {
	if f.label != "" {
		f.flushLabelAlone()
		return
	}
	f.w.WriteString("\n")
}

// Directive emits a bare line with no instruction/operand columns
// (e.g. "SECTION .data", "GLOBAL ?@main").
func (f *Formatter) Directive(text string) {
	if f.label != "" {
		f.w.WriteString(f.label + ":\n")
		f.label = ""
	}
	f.w.WriteString(text + "\n")
}

// Instruction emits one opcode (+ optional operand text, comment),
// consuming any pending label as this line's own.
func (f *Formatter) Instruction(inst, operands, comment string) {
	label := f.label
	f.label = ""

	col := label
	if f.margin > 0 {
		if col != "" {
			col += ":"
		}
		col = ljust(col, f.margin)
	} else if col != "" {
		col += ": "
	}

	body := inst
	if operands != "" {
		if f.iwidth > 0 {
			body = ljust(body, f.iwidth-1)
		}
		body += " " + operands
	}
	if comment != "" && f.width > 0 {
		body = ljust(body, f.width)
	}

	f.w.WriteString(col + body + comment + "\n")
}

// Flush drains any buffered output to the underlying writer.
func (f *Formatter) Flush() error {
	return f.w.Flush()
}

func ljust(s string, width int) string {
	for len(s) < width {
		s += " "
	}
	return s
}

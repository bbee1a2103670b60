package compiler

import (
	"strings"

	"github.com/skx/cc32/ast"
	"github.com/skx/cc32/syscalltab"
	"github.com/skx/cc32/target"
)

// intToChar maps a 32-bit register to the 8-bit register that aliases
// its low byte. Only the four registers that have such an alias are
// listed; other registers (esi, edi, ebp when used as scratch) fall
// back to "al" after a mov.
var intToChar = map[string]string{
	"eax": "al",
	"ebx": "bl",
	"ecx": "cl",
	"edx": "dl",
}

// relOps/relOpsNot are the signed/unsigned jump-condition suffixes for
// each relational operator.
var relOps = map[string]string{
	">": "g", "<": "l", ">=": "ge", "<=": "le",
	">|": "a", ">|=": "ae", "<|": "b", "<|=": "be",
	"==": "e", "!=": "ne",
}

var relOpsNot = map[string]string{
	">": "le", "<": "ge", ">=": "l", "<=": "g",
	">|": "be", ">|=": "b", "<|": "ae", "<|=": "a",
	"==": "ne", "!=": "e",
}

// funcSig is a function's call-site signature: its own native label,
// or (for an extern "C" function) the varargs flag needed to relax
// the arity check.
type funcSig struct {
	name       string
	returnType ast.Type
	params     []string
	isC        bool
	varargs    bool
	callLabel  string // "?@name" for native, "_name" for C
}

// CodeGenerator walks an *ast.Program and emits assembly text through
// a Formatter: counters, symbol tables, declaration buffers and
// target configuration.
type CodeGenerator struct {
	out    *Formatter
	target target.Config

	// debug inserts an int3 breakpoint at the start of every function
	// body, for attaching a debugger to the generated binary.
	debug bool

	whilec  int
	ifc     int
	stringc int
	labelc  int

	gvars  map[string]entry
	gfuncs map[string]funcSig

	variables []*ast.GlobalVariable
	functions []*ast.Function
	exports   []*ast.Export
	externs   []*ast.Extern

	warnings []string
}

// NewCodeGenerator creates a generator writing to out under the given
// target configuration.
func NewCodeGenerator(out *Formatter, cfg target.Config) *CodeGenerator {
	return &CodeGenerator{
		out:    out,
		target: cfg,
		gvars:  make(map[string]entry),
		gfuncs: make(map[string]funcSig),
	}
}

// Warnings returns the warning messages accumulated during
// generation (e.g. address-of-a-dereference foldings), in emission
// order.
func (c *CodeGenerator) Warnings() []string {
	return c.warnings
}

func (c *CodeGenerator) warn(message string) {
	c.warnings = append(c.warnings, message)
}

// Generate lowers prog to assembly text, in the order exports/externs,
// then SECTION .text, then SECTION .data.
func (c *CodeGenerator) Generate(prog *ast.Program) error {
	for _, d := range prog.Decls {
		switch v := d.(type) {
		case *ast.GlobalVariable:
			c.variables = append(c.variables, v)
		case *ast.Function:
			c.functions = append(c.functions, v)
		case *ast.Export:
			c.exports = append(c.exports, v)
		case *ast.Extern:
			c.externs = append(c.externs, v)
		default:
			return newError("unrecognized top-level declaration", d)
		}
	}
	for _, v := range c.variables {
		c.gvars[v.Name] = entry{typ: v.Type, global: v.Name}
	}
	for _, f := range c.functions {
		c.gfuncs[f.Name] = funcSig{name: f.Name, returnType: f.ReturnType, params: f.ParamNames, callLabel: "?@" + f.Name}
	}

	if err := c.generateExports(); err != nil {
		return err
	}
	if err := c.generateExterns(); err != nil {
		return err
	}
	if err := c.generateText(); err != nil {
		return err
	}
	return c.generateData()
}

// newGlobalString synthesizes a fresh "??slN" char-array global
// holding s, appends it to the variable buffer (so it is emitted in
// SECTION .data after the variables already buffered), and returns
// its name.
func (c *CodeGenerator) newGlobalString(s string) string {
	name := "??sl" + itoaFrame(c.stringc)
	c.stringc++
	length := len(s) - strings.Count(s, `\`) + strings.Count(s, `\\`)
	gv := &ast.GlobalVariable{
		Type:        &ast.Array{Elem: ast.Primitive{Name: "char"}, Length: length},
		Name:        name,
		Initializer: &ast.Literal{Kind: ast.LitString, Str: s},
	}
	c.variables = append(c.variables, gv)
	c.gvars[name] = entry{typ: gv.Type, global: name}
	return name
}

// literalValue renders lit as the integer cc32 uses for it in the
// given (int|char) context: an int literal's own value, a char
// literal's code point, or (int context only) a synthesized string
// global's name.
func (c *CodeGenerator) literalValue(context string, lit *ast.Literal) (interface{}, error) {
	switch context {
	case "int":
		switch lit.Kind {
		case ast.LitInt:
			return lit.Int, nil
		case ast.LitChar:
			return int(lit.Chr), nil
		default:
			return c.newGlobalString(lit.Str), nil
		}
	default: // "char"
		switch lit.Kind {
		case ast.LitInt:
			if lit.Int > 255 {
				return nil, newError("%d too big to fit in char", lit, lit.Int)
			}
			return lit.Int, nil
		case ast.LitChar:
			return int(lit.Chr), nil
		default:
			return nil, newError("String literal cannot be a char", lit)
		}
	}
}

func (c *CodeGenerator) generateVariable(v *ast.GlobalVariable) error {
	if v.Name == "_start" {
		return newError("Reserved name", v)
	}
	prim := primType(v.Type)
	directive := "dd"
	if prim == "char" {
		directive = "db"
	}

	arr, isArray := v.Type.(*ast.Array)
	if isArray {
		size := arr.Length
		switch init := v.Initializer.(type) {
		case *ast.Literal:
			if init.Kind != ast.LitString || prim != "char" {
				return newError("Array not initialized with array literal", v)
			}
			litLen := len(init.Str) - strings.Count(init.Str, `\`) + strings.Count(init.Str, `\\`)
			if size == 0 {
				size = litLen
				arr.Length = litLen
			}
			if litLen != size {
				return newError("String literal wrong size", v)
			}
			c.out.Label(v.Name)
			c.out.Instruction("db", "`"+init.Str+"`", "")
		case *ast.ArrayLiteral:
			if size == 0 {
				size = len(init.Elements)
				arr.Length = size
			}
			if len(init.Elements) != size {
				return newError("Array literal wrong size", v)
			}
			parts := make([]string, len(init.Elements))
			for i, lit := range init.Elements {
				val, err := c.literalValue(prim, lit)
				if err != nil {
					return err
				}
				parts[i] = renderValue(val)
			}
			c.out.Label(v.Name)
			c.out.Instruction(directive, strings.Join(parts, ","), "")
		default:
			return newError("Array not initialized with array literal", v)
		}
		return nil
	}

	lit, ok := v.Initializer.(*ast.Literal)
	if !ok {
		return newError("Variable not initialized with a literal", v)
	}
	val, err := c.literalValue(prim, lit)
	if err != nil {
		return err
	}
	c.out.Label(v.Name)
	c.out.Instruction(directive, renderValue(val), "")
	return nil
}

func renderValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return itoaFrame(x)
	default:
		return ""
	}
}

// generateData emits SECTION .data, visiting c.variables twice: once
// for the entries buffered when data emission begins (the declared
// globals plus any "??slN" strings synthesized while lowering the
// function bodies), once more for any "??slN" globals synthesized
// while lowering the first pass —
// exactly generate_data's vl = len(self.variables) two-pass loop.
func (c *CodeGenerator) generateData() error {
	c.out.Directive("SECTION .data")
	firstPass := len(c.variables)
	for i := 0; i < firstPass; i++ {
		if err := c.generateVariable(c.variables[i]); err != nil {
			return err
		}
	}
	for i := firstPass; i < len(c.variables); i++ {
		if err := c.generateVariable(c.variables[i]); err != nil {
			return err
		}
	}
	return c.out.Flush()
}

func (c *CodeGenerator) generateText() error {
	c.out.Directive("SECTION .text")
	for _, f := range c.functions {
		if err := c.generateFunction(f); err != nil {
			return err
		}
	}
	return nil
}

func (c *CodeGenerator) generateFunction(f *ast.Function) error {
	if f.Name == "main" && len(f.ParamNames) != 2 {
		return newError("Main must have 2 parameters", f)
	}
	c.gfuncs[f.Name] = funcSig{name: f.Name, returnType: f.ReturnType, params: f.ParamNames, callLabel: "?@" + f.Name}

	frame := NewStackFrame(f.ParamNames)
	c.out.Label("?@" + f.Name)
	c.out.Instruction("push", "ebp", "")
	c.out.Instruction("mov", "ebp,esp", "")
	if c.debug {
		c.out.Instruction("int3", "", "")
	}

	if err := c.generateStatement(f.Body, frame, true, "", ""); err != nil {
		return err
	}

	c.out.Instruction("push", "0", "")
	c.out.Label(".return")
	c.out.Instruction("pop", "eax", "")
	c.out.Instruction("mov", "esp,ebp", "")
	c.out.Instruction("pop", "ebp", "")
	c.out.Instruction("pop", "ebx", "")
	c.out.Instruction("add", "esp,"+itoaFrame(4*len(f.ParamNames)), "")
	if _, isVoid := f.ReturnType.(ast.Void); !isVoid {
		c.out.Instruction("push", "eax", "")
	}
	c.out.Instruction("jmp", "ebx", "")
	return nil
}

// blockLocals collects the LocalDeclaration items of a block, in
// order, the only BlockItem kind besides Statement.
func blockLocals(b *ast.Block) []*ast.LocalDeclaration {
	var out []*ast.LocalDeclaration
	for _, item := range b.Items {
		if ld, ok := item.(*ast.LocalDeclaration); ok {
			out = append(out, ld)
		}
	}
	return out
}

// generateBlockBody lowers a block's Statement items (its
// LocalDeclarations contribute no code of their own; their frame
// slots were already reserved by the caller).
func (c *CodeGenerator) generateBlockBody(b *ast.Block, frame StackFrame, clabel, blabel string) error {
	for _, item := range b.Items {
		if s, ok := item.(ast.Statement); ok {
			if err := c.generateStatement(s, frame, false, clabel, blabel); err != nil {
				return err
			}
		}
	}
	return nil
}

// generateBlock extends frame for b's locals, emitting sub esp
// up front, lowers the body, then emits the matching add esp unless
// this is a function body (whose epilogue already restores esp).
func (c *CodeGenerator) generateBlock(b *ast.Block, frame StackFrame, isFunctionBody bool, clabel, blabel string) error {
	extended, size := frame.Extend(blockLocals(b))
	if size > 0 {
		c.out.Instruction("sub", "esp,"+itoaFrame(size), "")
	}
	err := c.generateBlockBody(b, extended, clabel, blabel)
	if err == nil && !isFunctionBody && size > 0 {
		c.out.Instruction("add", "esp,"+itoaFrame(size), "")
	}
	return err
}

func (c *CodeGenerator) generateStatement(stmt ast.Statement, frame StackFrame, isFunctionBody bool, clabel, blabel string) error {
	switch s := stmt.(type) {
	case *ast.Block:
		return c.generateBlock(s, frame, isFunctionBody, clabel, blabel)

	case *ast.If:
		n := c.ifc
		c.ifc++
		lIf := ".if" + itoaFrame(n)
		lElse := ".ifelse" + itoaFrame(n)
		lEnd := ".ifend" + itoaFrame(n)
		c.out.Label(lIf)
		falseTarget := lEnd
		if s.Else != nil {
			falseTarget = lElse
		}
		if err := c.generateCondition(s.Cond, frame, "", falseTarget); err != nil {
			return err
		}
		if err := c.generateStatement(s.Then, frame, false, clabel, blabel); err != nil {
			return err
		}
		if s.Else != nil {
			c.out.Instruction("jmp", lEnd, "")
			c.out.Label(lElse)
			if err := c.generateStatement(s.Else, frame, false, clabel, blabel); err != nil {
				return err
			}
		}
		c.out.Label(lEnd)
		return nil

	case *ast.While:
		return c.generateWhile(s, frame)

	case *ast.Break:
		if blabel == "" {
			return newError("Nowhere to break", s)
		}
		c.out.Instruction("jmp", blabel, "")
		return nil

	case *ast.Continue:
		if clabel == "" {
			return newError("Nowhere to continue", s)
		}
		c.out.Instruction("jmp", clabel, "")
		return nil

	case *ast.Return:
		if s.Expr != nil {
			if err := c.pushExpr(s.Expr, frame, true); err != nil {
				return err
			}
		}
		c.out.Instruction("jmp", ".return", "")
		return nil

	case *ast.ExpressionStmt:
		return c.pushExpr(s.Expr, frame, false)

	case *ast.Empty:
		return nil

	default:
		return newError("unrecognized statement", stmt)
	}
}

// generateWhile lowers a while loop, with a special case per body
// shape: a block body gets its locals' scope opened once at the loop
// head; a bare "break" body is lowered as a one-shot side-effecting
// evaluation of the condition with no loop at all (see the doc
// comment on that case below); a bare "continue" or empty body
// becomes a busy loop re-testing the condition in place.
func (c *CodeGenerator) generateWhile(w *ast.While, frame StackFrame) error {
	n := c.whilec
	c.whilec++
	lBegin := ".while" + itoaFrame(n)
	lEnd := ".endwhile" + itoaFrame(n)

	switch body := w.Body.(type) {
	case *ast.Block:
		extended, size := frame.Extend(blockLocals(body))
		if size > 0 {
			c.out.Instruction("sub", "esp,"+itoaFrame(size), "")
		}
		c.out.Label(lBegin)
		if err := c.generateCondition(w.Cond, extended, "", lEnd); err != nil {
			return err
		}
		if err := c.generateBlockBody(body, extended, lBegin, lEnd); err != nil {
			return err
		}
		c.out.Instruction("jmp", lBegin, "")
		c.out.Label(lEnd)
		if size > 0 {
			c.out.Instruction("add", "esp,"+itoaFrame(size), "")
		}
		return nil

	case *ast.Break:
		// "while (cond) break;" lowers to evaluating cond once for its
		// side effects, with no loop and no jump out at all. Kept
		// literal rather than "corrected" to an equivalent
		// "if (cond) break;".
		return c.generateStatement(&ast.ExpressionStmt{Expr: w.Cond}, frame, false, "", "")

	case *ast.Continue, *ast.Empty:
		c.out.Label(lBegin)
		return c.generateCondition(w.Cond, frame, lBegin, "")

	default:
		c.out.Label(lBegin)
		if err := c.generateCondition(w.Cond, frame, "", lEnd); err != nil {
			return err
		}
		if err := c.generateStatement(w.Body, frame, false, lBegin, lEnd); err != nil {
			return err
		}
		c.out.Instruction("jmp", lBegin, "")
		c.out.Label(lEnd)
		return nil
	}
}

// generateCondition lowers cond into jumps: to trueLabel when cond is
// non-zero, to falseLabel when zero. Either label may be "" (fall
// through).
func (c *CodeGenerator) generateCondition(cond ast.Expression, frame StackFrame, trueLabel, falseLabel string) error {
	switch e := cond.(type) {
	case *ast.Unary:
		if e.Op == ast.UnaryNot {
			return c.generateCondition(e.Expr, frame, falseLabel, trueLabel)
		}

	case *ast.Literal:
		zero := (e.Kind == ast.LitInt && e.Int == 0) || (e.Kind == ast.LitChar && e.Chr == 0)
		if zero {
			if falseLabel != "" {
				c.out.Instruction("jmp", falseLabel, "")
			}
		} else if trueLabel != "" {
			c.out.Instruction("jmp", trueLabel, "")
		}
		return nil

	case *ast.Address:
		if trueLabel != "" {
			c.out.Instruction("jmp", trueLabel, "")
		}
		return nil

	case *ast.Binary:
		// A fall-through target on the short-circuit side gets a fresh
		// label, placed right after the rhs once it has been lowered.
		if e.Op == "&&" {
			lFalse := falseLabel
			if lFalse == "" {
				lFalse = ".l" + itoaFrame(c.labelc)
				c.labelc++
				defer c.out.Label(lFalse)
			}
			if err := c.generateCondition(e.Lhs, frame, "", lFalse); err != nil {
				return err
			}
			return c.generateCondition(e.Rhs, frame, trueLabel, falseLabel)
		}
		if e.Op == "||" {
			lTrue := trueLabel
			if lTrue == "" {
				lTrue = ".l" + itoaFrame(c.labelc)
				c.labelc++
				defer c.out.Label(lTrue)
			}
			if err := c.generateCondition(e.Lhs, frame, lTrue, ""); err != nil {
				return err
			}
			return c.generateCondition(e.Rhs, frame, trueLabel, falseLabel)
		}
		if e.Op == "&" {
			return c.generateAndCondition(e, frame, trueLabel, falseLabel)
		}
		if mnem, ok := relOps[e.Op]; ok {
			if err := c.pushExpr(e.Lhs, frame, true); err != nil {
				return err
			}
			if err := c.regExpr(e.Rhs, "ebx", frame); err != nil {
				return err
			}
			c.out.Instruction("pop", "eax", "")
			c.out.Instruction("cmp", "eax,ebx", "")
			switch {
			case trueLabel != "" && falseLabel != "":
				c.out.Instruction("j"+mnem, trueLabel, "")
				c.out.Instruction("jmp", falseLabel, "")
			case trueLabel != "":
				c.out.Instruction("j"+mnem, trueLabel, "")
			case falseLabel != "":
				c.out.Instruction("j"+relOpsNot[e.Op], falseLabel, "")
			}
			return nil
		}
	}

	// fallback: materialize into eax and compare against zero.
	if err := c.regExpr(cond, "eax", frame); err != nil {
		return err
	}
	c.out.Instruction("cmp", "eax,0", "")
	if trueLabel != "" {
		c.out.Instruction("jne", trueLabel, "")
	}
	if falseLabel != "" {
		c.out.Instruction("je", falseLabel, "")
	}
	return nil
}

// generateAndCondition handles the "&" bitwise-and-as-a-test
// optimization: when one side is a literal, use "test reg,imm"
// instead of computing both sides and an explicit "and".
func (c *CodeGenerator) generateAndCondition(e *ast.Binary, frame StackFrame, trueLabel, falseLabel string) error {
	var lit *ast.Literal
	var other ast.Expression
	if l, ok := e.Lhs.(*ast.Literal); ok {
		lit, other = l, e.Rhs
	} else if r, ok := e.Rhs.(*ast.Literal); ok {
		lit, other = r, e.Lhs
	}
	if lit == nil {
		if err := c.pushExpr(e.Lhs, frame, true); err != nil {
			return err
		}
		if err := c.regExpr(e.Rhs, "ebx", frame); err != nil {
			return err
		}
		c.out.Instruction("pop", "eax", "")
		c.out.Instruction("test", "eax,ebx", "")
	} else {
		if err := c.regExpr(other, "eax", frame); err != nil {
			return err
		}
		val, err := c.literalValue("int", lit)
		if err != nil {
			return err
		}
		c.out.Instruction("test", "eax,"+renderValue(val), "")
	}
	switch {
	case trueLabel != "" && falseLabel != "":
		c.out.Instruction("jne", trueLabel, "")
		c.out.Instruction("jmp", falseLabel, "")
	case trueLabel != "":
		c.out.Instruction("jne", trueLabel, "")
	case falseLabel != "":
		c.out.Instruction("je", falseLabel, "")
	}
	return nil
}

// lookup resolves name against the current frame, then the globals.
func (c *CodeGenerator) lookup(frame StackFrame, name string) (entry, error) {
	if e, ok := frame.Lookup(name); ok {
		return e, nil
	}
	if e, ok := c.gvars[name]; ok {
		return e, nil
	}
	return entry{}, newError("No such variable: %s", nil, name)
}

// simpleLValue resolves an Identifier or ArrayAccess to its
// addressing-mode operand string.
func (c *CodeGenerator) simpleLValue(lv ast.LValue, reg string, frame StackFrame, prefix bool) (string, error) {
	var name string
	var offset interface{} = 0
	switch v := lv.(type) {
	case *ast.Identifier:
		name = v.Name
	case *ast.ArrayAccess:
		name = v.Name
		if lit, ok := v.Index.(*ast.Literal); ok {
			val, err := c.literalValue("int", lit)
			if err != nil {
				return "", err
			}
			offset = val
		} else {
			if err := c.regExpr(v.Index, reg, frame); err != nil {
				return "", err
			}
			offset = reg
		}
	default:
		return "", newError("not a simple lvalue", lv)
	}
	e, err := c.lookup(frame, name)
	if err != nil {
		return "", err
	}
	return e.Value(offset, prefix), nil
}

// regExpr evaluates expr into reg. May clobber any register except
// reg and ebp.
func (c *CodeGenerator) regExpr(expr ast.Expression, reg string, frame StackFrame) error {
	switch e := expr.(type) {
	case *ast.Literal:
		val, err := c.literalValue("int", e)
		if err != nil {
			return err
		}
		c.out.Instruction("mov", reg+","+renderValue(val), "")
		return nil

	case *ast.Address:
		if deref, ok := e.LValue.(*ast.Dereference); ok {
			c.warn("Will not attempt to dereference")
			return c.regExpr(deref.Expr, reg, frame)
		}
		addr, err := c.simpleLValue(e.LValue, reg, frame, false)
		if err != nil {
			return err
		}
		c.out.Instruction("lea", reg+","+addr, "")
		return nil

	case *ast.Identifier, *ast.ArrayAccess:
		val, err := c.simpleLValue(expr.(ast.LValue), reg, frame, true)
		if err != nil {
			return err
		}
		if strings.HasPrefix(val, "byte") {
			creg := charReg(reg)
			c.out.Instruction("mov", creg+","+val, "")
			c.out.Instruction("movsx", reg+","+creg, "")
		} else {
			c.out.Instruction("mov", reg+","+val, "")
		}
		return nil

	case *ast.Dereference:
		if err := c.regExpr(e.Expr, reg, frame); err != nil {
			return err
		}
		if !e.IsChar {
			c.out.Instruction("mov", reg+",dword["+reg+"]", "")
		} else {
			creg := charReg(reg)
			c.out.Instruction("mov", creg+",byte["+reg+"]", "")
			c.out.Instruction("movsx", reg+","+creg, "")
		}
		return nil

	case *ast.Unary:
		if err := c.regExpr(e.Expr, reg, frame); err != nil {
			return err
		}
		switch e.Op {
		case ast.UnaryNot:
			c.out.Instruction("cmp", reg+",0", "")
			breg := charReg(reg)
			c.out.Instruction("sete", breg, "")
			c.out.Instruction("movzx", reg+","+breg, "")
		case ast.UnaryCompl:
			c.out.Instruction("not", reg, "")
		case ast.UnaryNeg:
			c.out.Instruction("neg", reg, "")
		}
		return nil

	case *ast.Binary:
		return c.regBinary(e, reg, frame)

	case *ast.FunctionCall:
		if err := c.pushExpr(e, frame, true); err != nil {
			return err
		}
		c.out.Instruction("pop", reg, "")
		return nil

	default:
		return newError("unrecognized expression", expr)
	}
}

func charReg(reg string) string {
	if c, ok := intToChar[reg]; ok {
		return c
	}
	return "al"
}

func (c *CodeGenerator) regBinary(e *ast.Binary, reg string, frame StackFrame) error {
	ireg := "eax"
	if reg == "eax" {
		ireg = "ebx"
	}

	switch e.Op {
	case "*":
		if err := c.pushExpr(e.Lhs, frame, true); err != nil {
			return err
		}
		if err := c.regExpr(e.Rhs, ireg, frame); err != nil {
			return err
		}
		c.out.Instruction("pop", reg, "")
		c.out.Instruction("imul", reg+","+ireg, "")
		return nil

	case "#":
		if err := c.pushExpr(e.Lhs, frame, true); err != nil {
			return err
		}
		if err := c.regExpr(e.Rhs, "ebx", frame); err != nil {
			return err
		}
		c.out.Instruction("pop", "eax", "")
		c.out.Instruction("mul", "ebx", "")
		c.out.Instruction("mov", reg+",eax", "")
		return nil

	case "/", "\\", "%", "@":
		if err := c.pushExpr(e.Lhs, frame, true); err != nil {
			return err
		}
		if err := c.regExpr(e.Rhs, "ebx", frame); err != nil {
			return err
		}
		c.out.Instruction("pop", "eax", "")
		c.out.Instruction("cdq", "", "")
		inst := "div"
		if e.Op == "/" || e.Op == "%" {
			inst = "idiv"
		}
		c.out.Instruction(inst, "ebx", "")
		result := "edx"
		if e.Op == "/" || e.Op == "\\" {
			result = "eax"
		}
		c.out.Instruction("mov", reg+","+result, "")
		return nil

	case "+", "-":
		if err := c.pushExpr(e.Lhs, frame, true); err != nil {
			return err
		}
		if err := c.regExpr(e.Rhs, ireg, frame); err != nil {
			return err
		}
		c.out.Instruction("pop", reg, "")
		inst := "add"
		if e.Op == "-" {
			inst = "sub"
		}
		c.out.Instruction(inst, reg+","+ireg, "")
		return nil

	case "<<", ">>", ">>>":
		inst := map[string]string{"<<": "shl", ">>": "sar", ">>>": "shr"}[e.Op]
		if err := c.pushExpr(e.Lhs, frame, true); err != nil {
			return err
		}
		if err := c.regExpr(e.Rhs, ireg, frame); err != nil {
			return err
		}
		c.out.Instruction("pop", reg, "")
		c.out.Instruction(inst, reg+","+ireg, "")
		return nil

	case "&", "|", "^":
		inst := map[string]string{"&": "and", "|": "or", "^": "xor"}[e.Op]
		if err := c.pushExpr(e.Lhs, frame, true); err != nil {
			return err
		}
		if err := c.regExpr(e.Rhs, ireg, frame); err != nil {
			return err
		}
		c.out.Instruction("pop", reg, "")
		c.out.Instruction(inst, reg+","+ireg, "")
		return nil

	case "&&", "||":
		n := c.labelc
		c.labelc += 2
		lFalse := ".l" + itoaFrame(n)
		lEnd := ".l" + itoaFrame(n+1)
		if err := c.generateCondition(e, frame, "", lFalse); err != nil {
			return err
		}
		c.out.Instruction("mov", reg+",1", "")
		c.out.Instruction("jmp", lEnd, "")
		c.out.Label(lFalse)
		c.out.Instruction("mov", reg+",0", "")
		c.out.Label(lEnd)
		return nil

	case "=":
		return c.regAssign(e, reg, ireg, frame)
	}

	if mnem, ok := relOps[e.Op]; ok {
		if err := c.pushExpr(e.Lhs, frame, true); err != nil {
			return err
		}
		if err := c.regExpr(e.Rhs, ireg, frame); err != nil {
			return err
		}
		c.out.Instruction("pop", reg, "")
		c.out.Instruction("cmp", reg+","+ireg, "")
		creg := charReg(reg)
		c.out.Instruction("set"+mnem, creg, "")
		c.out.Instruction("movzx", reg+","+creg, "")
		return nil
	}

	return newError("unrecognized binary operator %q", e, e.Op)
}

func (c *CodeGenerator) regAssign(e *ast.Binary, reg, ireg string, frame StackFrame) error {
	lv, ok := e.Lhs.(ast.LValue)
	if !ok {
		return newError("assignment target is not an lvalue", e)
	}
	if err := c.pushExpr(e.Rhs, frame, true); err != nil {
		return err
	}

	if deref, isDeref := lv.(*ast.Dereference); isDeref {
		if err := c.regExpr(deref.Expr, ireg, frame); err != nil {
			return err
		}
		c.out.Instruction("pop", reg, "")
		if !deref.IsChar {
			c.out.Instruction("mov", "dword["+ireg+"],"+reg, "")
		} else {
			creg := charReg(reg)
			if _, ok := intToChar[reg]; !ok {
				c.out.Instruction("mov", "eax,"+reg, "")
				creg = "al"
				c.out.Instruction("movsx", reg+",al", "")
			} else {
				c.out.Instruction("movsx", reg+","+creg, "")
			}
			c.out.Instruction("mov", "byte["+ireg+"],"+creg, "")
		}
		return nil
	}

	lval, err := c.simpleLValue(lv, ireg, frame, true)
	if err != nil {
		return err
	}
	c.out.Instruction("pop", reg, "")
	if strings.HasPrefix(lval, "byte") {
		var creg string
		if r, ok := intToChar[reg]; ok {
			creg = r
			c.out.Instruction("movsx", reg+","+creg, "")
		} else {
			c.out.Instruction("mov", "eax,"+reg, "")
			creg = "al"
			c.out.Instruction("movsx", reg+",al", "")
		}
		c.out.Instruction("mov", lval+","+creg, "")
	} else {
		c.out.Instruction("mov", lval+","+reg, "")
	}
	return nil
}

// pushExpr evaluates expr, leaving the result on the stack top when
// push is true; when false (a statement-context call) the value is
// computed for its side effects only.
func (c *CodeGenerator) pushExpr(expr ast.Expression, frame StackFrame, push bool) error {
	call, isCall := expr.(*ast.FunctionCall)
	if !isCall {
		if lit, ok := expr.(*ast.Literal); ok {
			val, err := c.literalValue("int", lit)
			if err != nil {
				return err
			}
			c.out.Instruction("push", renderValue(val), "")
			return nil
		}
		if err := c.regExpr(expr, "eax", frame); err != nil {
			return err
		}
		if push {
			c.out.Instruction("push", "eax", "")
		}
		return nil
	}

	if strings.HasPrefix(call.Name, "$") {
		return c.pushSyscall(call, frame, push)
	}

	sig, ok := c.gfuncs[call.Name]
	if !ok {
		return newError("Function does not exist: %s", call, call.Name)
	}
	if _, isVoid := sig.returnType.(ast.Void); isVoid && push {
		return newError("%s does not return a value", call, call.Name)
	}

	if sig.isC {
		if !sig.varargs {
			if len(sig.params) != len(call.Args) {
				return newError("Incorrect number of arguments to %s", call, call.Name)
			}
		} else if len(call.Args) < len(sig.params) {
			return newError("Not enough arguments to %s", call, call.Name)
		}
		c.out.Instruction("mov", "eax,esp", "")
		c.out.Instruction("and", "esp,0fffffff0h", "")
		pn := len(call.Args)
		if pn&3 != 3 {
			c.out.Instruction("sub", "esp,"+itoaFrame(4*(3-(pn&3))), "")
		}
		c.out.Instruction("push", "eax", "")
		for i := len(call.Args) - 1; i >= 0; i-- {
			if err := c.pushExpr(call.Args[i], frame, true); err != nil {
				return err
			}
		}
		c.out.Instruction("call", sig.callLabel, "")
		c.out.Instruction("mov", "esp,[esp+"+itoaFrame(4*pn)+"]", "")
		if push {
			c.out.Instruction("push", "eax", "")
		}
		return nil
	}

	if len(sig.params) != len(call.Args) {
		return newError("Incorrect number of arguments to %s", call, call.Name)
	}
	for i := len(call.Args) - 1; i >= 0; i-- {
		if err := c.pushExpr(call.Args[i], frame, true); err != nil {
			return err
		}
	}
	c.out.Instruction("call", sig.callLabel, "")
	if _, isVoid := sig.returnType.(ast.Void); !isVoid && !push {
		c.out.Instruction("add", "esp,4", "")
	}
	return nil
}

func (c *CodeGenerator) pushSyscall(call *ast.FunctionCall, frame StackFrame, push bool) error {
	number, ok := syscalltab.Lookup(call.Name)
	if !ok {
		return newError("Unknown syscall: %s", call, call.Name)
	}
	// ebp is saved below the arguments, so the pops below hand the
	// arguments themselves to ebx..ebp and "pop ebp" restores it.
	if c.target.Linux && len(call.Args) == 6 {
		c.out.Instruction("push", "ebp", "")
	}
	for i := len(call.Args) - 1; i >= 0; i-- {
		if err := c.pushExpr(call.Args[i], frame, true); err != nil {
			return err
		}
	}
	if c.target.Linux {
		if len(call.Args) > 6 {
			return newError("More than 6 arguments to linux syscall", call)
		}
		regs := []string{"ebx", "ecx", "edx", "esi", "edi", "ebp"}
		for i := range call.Args {
			c.out.Instruction("pop", regs[i], "")
		}
	} else {
		c.out.Instruction("push", "dword 0", "")
	}
	c.out.Instruction("mov", "eax,"+itoaFrame(number), "")
	c.out.Instruction("int", "80h", "")
	if c.target.Linux {
		if len(call.Args) == 6 {
			c.out.Instruction("pop", "ebp", "")
		}
	} else {
		c.out.Instruction("add", "esp,"+itoaFrame(4*len(call.Args)+4), "")
	}
	if push {
		c.out.Instruction("push", "eax", "")
	}
	return nil
}

func (c *CodeGenerator) generateExports() error {
	for _, exp := range c.exports {
		label := exp.Name
		if exp.IsFunction {
			label = "?@" + label
		}
		c.out.Directive("GLOBAL " + label)
	}
	if _, ok := c.gfuncs["main"]; ok {
		c.out.Directive("GLOBAL ?@main")
	}
	return nil
}

func (c *CodeGenerator) generateExterns() error {
	for _, ext := range c.externs {
		if ext.Linkage == ast.LinkageC && ext.LinkageName != "C" && ext.LinkageName != "c" {
			return newError("Invalid extern linkage %q", ext, ext.LinkageName)
		}

		name := ext.Name
		if ext.Linkage == ast.LinkageC {
			name = c.target.CPrefix + name
		}
		if !ext.IsFunction {
			c.gvars[ext.Name] = entry{typ: ext.VarType, global: name}
		} else if ext.Linkage == ast.LinkageC {
			// The call site always targets "_<name>" literally,
			// independent of the EXTERN directive's own
			// platform-prefixed symbol name below.
			c.gfuncs[ext.Name] = funcSig{name: ext.Name, returnType: ext.ReturnType, params: ext.ParamNames, isC: true, varargs: ext.Varargs, callLabel: "_" + ext.Name}
		} else {
			if ext.Varargs {
				return newError("Native functions do not support varargs", ext)
			}
			c.gfuncs[ext.Name] = funcSig{name: ext.Name, returnType: ext.ReturnType, params: ext.ParamNames, callLabel: "?@" + ext.Name}
		}
		c.out.Directive("EXTERN " + name)
	}
	return nil
}

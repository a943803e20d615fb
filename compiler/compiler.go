// Package compiler turns subtle source text into a compiled top-level
// function the VM can run. It depends on the subtle package (never the
// reverse): the VM's runtime core has no notion of source text at all,
// matching spec.md §1's framing of the compiler as an external
// collaborator consumed opaquely through vm.Interpret.
//
// The design is a single-pass Pratt parser over a hand-written lexer,
// grounded on original_source/compiler.c's ParseRule/Precedence shape
// (prefix/infix parse functions keyed by token type, climbing by
// precedence) re-expressed in idiomatic Go: a table of closures instead
// of function pointers, and slices instead of fixed local arrays.
package compiler

import (
	"fmt"
	"os"
	"strconv"

	subtle "github.com/gholt/subtlevm"
)

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEq
	precCmp
	precTerm
	precFactor
	precUnary
	precCall
	precLiteral
)

type parseFn func(p *parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[TokenType]parseRule

func init() {
	rules = map[TokenType]parseRule{
		TokenLParen:     {prefix: (*parser).grouping, infix: (*parser).call, precedence: precCall},
		TokenDot:        {infix: (*parser).dot, precedence: precCall},
		TokenMinus:      {prefix: (*parser).unary, infix: (*parser).binary, precedence: precTerm},
		TokenPlus:       {infix: (*parser).binary, precedence: precTerm},
		TokenStar:       {infix: (*parser).binary, precedence: precFactor},
		TokenSlash:      {infix: (*parser).binary, precedence: precFactor},
		TokenBang:       {prefix: (*parser).unary},
		TokenBangEq:     {infix: (*parser).binary, precedence: precEq},
		TokenEqEq:       {infix: (*parser).binary, precedence: precEq},
		TokenGt:         {infix: (*parser).binary, precedence: precCmp},
		TokenGeq:        {infix: (*parser).binary, precedence: precCmp},
		TokenLt:         {infix: (*parser).binary, precedence: precCmp},
		TokenLeq:        {infix: (*parser).binary, precedence: precCmp},
		TokenAnd:        {infix: (*parser).and_, precedence: precAnd},
		TokenOr:         {infix: (*parser).or_, precedence: precOr},
		TokenIdentifier: {prefix: (*parser).variable},
		TokenString:     {prefix: (*parser).string},
		TokenNumber:     {prefix: (*parser).number},
		TokenNil:        {prefix: (*parser).literal, precedence: precLiteral},
		TokenTrue:       {prefix: (*parser).literal, precedence: precLiteral},
		TokenFalse:      {prefix: (*parser).literal, precedence: precLiteral},
		TokenThis:       {prefix: (*parser).this_},
		TokenSuper:      {prefix: (*parser).variable},
		TokenFn:         {prefix: (*parser).functionLiteral},
		TokenLBrace:     {prefix: (*parser).objectLiteral},
	}
}

func (p *parser) ruleFor(t TokenType) parseRule { return rules[t] }

// local tracks one declared name within a function's own scope.
type local struct {
	name     string
	depth    int
	captured bool
}

type upvalueRef struct {
	index   int
	isLocal bool
}

// funcState is one nested compiler frame: a function (or the top-level
// script) being compiled, its locals, and the upvalues it has resolved
// from enclosing scopes. Chained via enclosing to mirror the lexical
// nesting of fn literals, matching original_source/vm.h's comment about
// tracking "the compiler currently used to compile source" as a chain.
type funcState struct {
	enclosing  *funcState
	fn         *subtle.ObjFunction
	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

// newFuncState starts a fresh compiler frame for fn. Every frame reserves
// local slot 0 for the call's implicit receiver (what "this" reads):
// INVOKE always places the receiver at the callee's frame slot 0, and
// the top-level program itself occupies that slot with the Nil
// Interpret pushes before frame 0 (interp.go's Interpret). The reserved slot
// sits at depth 0 so it is never a candidate for endScope's local pops.
//
// startDepth is 0 for the top-level script (so a bare `let` at its
// outermost level is global, per isGlobalScope) and 1 for every fn
// literal (whose body is never global, even at its first statement).
func newFuncState(enclosing *funcState, fn *subtle.ObjFunction, startDepth int) *funcState {
	return &funcState{
		enclosing:  enclosing,
		fn:         fn,
		scopeDepth: startDepth,
		locals:     []local{{name: "", depth: 0}},
	}
}

type parser struct {
	vm        *subtle.VM
	lex       *lexer
	current   Token
	previous  Token
	hadError  bool
	panicMode bool
	errors    []subtle.CompileError
	fs        *funcState
}

// Compile parses and compiles source into a top-level function (arity 0,
// no upvalues), ready to hand to (*subtle.VM).Interpret. On a compile
// error it returns a nil function and the accumulated errors, matching
// spec.md §7: "no bytecode executes" when compilation fails.
func Compile(vm *subtle.VM, source string) (*subtle.ObjFunction, []subtle.CompileError) {
	p := &parser{vm: vm, lex: newLexer(source)}
	p.fs = newFuncState(nil, vm.NewFunction(), 0)
	p.advance()
	hasTail := p.stmtList(TokenEOF)
	p.consume(TokenEOF, "expect end of input")
	if !hasTail {
		p.emitOp(subtle.OpNil)
	}
	p.emitOp(subtle.OpReturn)
	if p.hadError {
		return nil, p.errors
	}
	return p.fs.fn, nil
}

// --- token stream helpers ----------------------------------------------

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lex.next()
		if p.current.Type != TokenError {
			break
		}
		p.errorAtCurrent(p.current.Text)
	}
}

func (p *parser) check(t TokenType) bool { return p.current.Type == t }

func (p *parser) match(t TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(t TokenType, message string) {
	if p.check(t) {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

func (p *parser) errorAt(tok Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true
	text := tok.Text
	if tok.Type == TokenEOF {
		text = "end"
	}
	fmt.Fprintf(os.Stderr, "[line %d] Error at %q: %s\n", tok.Line, text, message)
	p.errors = append(p.errors, subtle.CompileError{Line: tok.Line, Token: text, Message: message})
}

func (p *parser) errorAtCurrent(message string)  { p.errorAt(p.current, message) }
func (p *parser) errorAtPrevious(message string) { p.errorAt(p.previous, message) }

// synchronize discards tokens until a likely statement boundary, so one
// error does not cascade into a wall of follow-on errors (spec.md §7's
// panic_mode).
func (p *parser) synchronize() {
	p.panicMode = false
	for !p.check(TokenEOF) {
		if p.previous.Type == TokenSemicolon {
			return
		}
		switch p.current.Type {
		case TokenIf, TokenWhile, TokenLet, TokenReturn, TokenAssert, TokenFn:
			return
		}
		p.advance()
	}
}

// --- bytecode emission ---------------------------------------------------

func (p *parser) chunk() *subtle.Chunk { return p.fs.fn.Chunk }

func (p *parser) emitOp(op subtle.Opcode) { p.chunk().WriteOp(op, p.previous.Line) }
func (p *parser) emitByte(b byte)         { p.chunk().WriteByte(b, p.previous.Line) }
func (p *parser) emitOffset(v uint16)     { p.chunk().WriteOffset(v, p.previous.Line) }

func (p *parser) emitConstant(v subtle.Value) {
	idx := p.chunk().AddConstant(v)
	if idx > 0xFFFF {
		p.errorAtPrevious("too many constants in one chunk")
		idx = 0
	}
	p.emitOp(subtle.OpConstant)
	p.emitOffset(uint16(idx))
}

// emitJump writes op followed by a two-byte placeholder, returning the
// placeholder's offset for patchJump to fill in once the target is known.
func (p *parser) emitJump(op subtle.Opcode) int {
	p.emitOp(op)
	p.emitOffset(0)
	return p.chunk().Len() - 2
}

func (p *parser) patchJump(at int) {
	offset := p.chunk().Len() - (at + 2)
	if offset > 0xFFFF {
		p.errorAtPrevious("jump target too far")
		return
	}
	p.chunk().PatchOffset(at, uint16(offset))
}

func (p *parser) emitLoop(loopStart int) {
	p.emitOp(subtle.OpLoop)
	offset := p.chunk().Len() - loopStart + 2
	if offset > 0xFFFF {
		p.errorAtPrevious("loop body too large")
		offset = 0
	}
	p.emitOffset(uint16(offset))
}

func (p *parser) identifierConstant(name string) int {
	return p.chunk().AddConstant(subtle.FromObj(p.vm.NewString([]byte(name))))
}

func (p *parser) invokeKey(key string, argc int) {
	idx := p.identifierConstant(key)
	p.emitOp(subtle.OpInvoke)
	p.emitOffset(uint16(idx))
	p.emitByte(byte(argc))
}

// --- scope / variable resolution -----------------------------------------

func (p *parser) beginScope() { p.fs.scopeDepth++ }

func (p *parser) endScope() {
	p.fs.scopeDepth--
	fs := p.fs
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		last := fs.locals[len(fs.locals)-1]
		if last.captured {
			p.emitOp(subtle.OpCloseUpvalue)
		} else {
			p.emitOp(subtle.OpPop)
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}

func (p *parser) isGlobalScope() bool {
	return p.fs.enclosing == nil && p.fs.scopeDepth == 0
}

func (p *parser) addLocal(name string) {
	if len(p.fs.locals) >= 256 {
		p.errorAtPrevious("too many locals in one function")
		return
	}
	p.fs.locals = append(p.fs.locals, local{name: name, depth: p.fs.scopeDepth})
}

func resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

func addUpvalue(fs *funcState, index int, isLocal bool) int {
	for i, u := range fs.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}

func resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if l := resolveLocal(fs.enclosing, name); l != -1 {
		fs.enclosing.locals[l].captured = true
		return addUpvalue(fs, l, true)
	}
	if u := resolveUpvalue(fs.enclosing, name); u != -1 {
		return addUpvalue(fs, u, false)
	}
	return -1
}

func (p *parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp subtle.Opcode
	var arg int
	if l := resolveLocal(p.fs, name); l != -1 {
		arg, getOp, setOp = l, subtle.OpGetLocal, subtle.OpSetLocal
	} else if u := resolveUpvalue(p.fs, name); u != -1 {
		arg, getOp, setOp = u, subtle.OpGetUpvalue, subtle.OpSetUpvalue
	} else {
		arg, getOp, setOp = p.identifierConstant(name), subtle.OpGetGlobal, subtle.OpSetGlobal
	}

	if canAssign && p.match(TokenEq) {
		p.expression()
		if getOp == subtle.OpGetGlobal {
			p.emitOp(setOp)
			p.emitOffset(uint16(arg))
		} else {
			p.emitOp(setOp)
			p.emitByte(byte(arg))
		}
		return
	}
	if getOp == subtle.OpGetGlobal {
		p.emitOp(getOp)
		p.emitOffset(uint16(arg))
	} else {
		p.emitOp(getOp)
		p.emitByte(byte(arg))
	}
}

// --- statements ------------------------------------------------------------

// stmtList compiles declarations up to (not including) terminator or EOF,
// reporting whether the final statement was a tail expression (no
// trailing semicolon, no pop emitted) whose value is left on the stack.
// Shared by the top-level program, function bodies, and if/while blocks,
// which each decide differently what to do with that tail value.
func (p *parser) stmtList(terminator TokenType) bool {
	hasTail := false
	for !p.check(terminator) && !p.check(TokenEOF) {
		hasTail = p.declaration()
		if p.panicMode {
			p.synchronize()
		}
	}
	return hasTail
}

func (p *parser) declaration() bool {
	if p.match(TokenLet) {
		p.letDeclaration()
		return false
	}
	return p.statement()
}

func (p *parser) letDeclaration() {
	p.consume(TokenIdentifier, "expect variable name")
	name := p.previous.Text
	isGlobal := p.isGlobalScope()

	if p.match(TokenEq) {
		p.expression()
	} else {
		p.emitOp(subtle.OpNil)
	}
	p.consume(TokenSemicolon, "expect ';' after let declaration")

	if isGlobal {
		idx := p.identifierConstant(name)
		p.emitOp(subtle.OpDefGlobal)
		p.emitOffset(uint16(idx))
		return
	}
	p.addLocal(name)
}

// statement compiles one non-let statement, returning true only when it
// was an expression-statement whose value was left as a tail value (see
// stmtList).
func (p *parser) statement() bool {
	switch {
	case p.match(TokenIf):
		p.ifStatement()
	case p.match(TokenWhile):
		p.whileStatement()
	case p.match(TokenReturn):
		p.returnStatement()
	case p.match(TokenAssert):
		p.assertStatement()
	case p.match(TokenLBrace):
		p.beginScope()
		p.blockBody()
		p.endScope()
	default:
		return p.expressionStatement()
	}
	return false
}

// blockBody compiles statements up to '}' (already past the opening
// brace) and discards any tail value the block would otherwise leave:
// bare blocks, and if/while bodies, are statements, not expressions.
func (p *parser) blockBody() {
	hasTail := p.stmtList(TokenRBrace)
	p.consume(TokenRBrace, "expect '}' after block")
	if hasTail {
		p.emitOp(subtle.OpPop)
	}
}

func (p *parser) ifStatement() {
	p.expression()
	p.consume(TokenLBrace, "expect '{' after if condition")
	thenJump := p.emitJump(subtle.OpJumpIfFalse)
	p.emitOp(subtle.OpPop)
	p.beginScope()
	p.blockBody()
	p.endScope()

	elseJump := p.emitJump(subtle.OpJump)
	p.patchJump(thenJump)
	p.emitOp(subtle.OpPop)

	if p.match(TokenElse) {
		if p.match(TokenIf) {
			p.ifStatement()
		} else {
			p.consume(TokenLBrace, "expect '{' after else")
			p.beginScope()
			p.blockBody()
			p.endScope()
		}
	}
	p.patchJump(elseJump)
}

func (p *parser) whileStatement() {
	loopStart := p.chunk().Len()
	p.expression()
	p.consume(TokenLBrace, "expect '{' after while condition")
	exitJump := p.emitJump(subtle.OpJumpIfFalse)
	p.emitOp(subtle.OpPop)
	p.beginScope()
	p.blockBody()
	p.endScope()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(subtle.OpPop)
}

func (p *parser) returnStatement() {
	if p.match(TokenSemicolon) {
		p.emitOp(subtle.OpNil)
	} else {
		p.expression()
		p.consume(TokenSemicolon, "expect ';' after return value")
	}
	p.emitOp(subtle.OpReturn)
}

func (p *parser) assertStatement() {
	p.expression()
	if !p.check(TokenRBrace) && !p.check(TokenEOF) {
		p.consume(TokenSemicolon, "expect ';' after assert")
	}
	p.emitOp(subtle.OpAssert)
}

func (p *parser) expressionStatement() bool {
	p.expression()
	if p.check(TokenRBrace) || p.check(TokenEOF) {
		return true
	}
	p.consume(TokenSemicolon, "expect ';' after expression")
	p.emitOp(subtle.OpPop)
	return false
}

// --- expressions -----------------------------------------------------------

func (p *parser) expression() { p.parsePrecedence(precAssignment) }

func (p *parser) parsePrecedence(prec precedence) {
	p.advance()
	prefix := p.ruleFor(p.previous.Type).prefix
	if prefix == nil {
		p.errorAtPrevious("expect expression")
		return
	}
	canAssign := prec <= precAssignment
	prefix(p, canAssign)

	for prec <= p.ruleFor(p.current.Type).precedence {
		p.advance()
		infix := p.ruleFor(p.previous.Type).infix
		infix(p, canAssign)
	}

	if canAssign && p.match(TokenEq) {
		p.errorAtPrevious("invalid assignment target")
	}
}

func (p *parser) number(canAssign bool) {
	v, err := strconv.ParseFloat(p.previous.Text, 64)
	if err != nil {
		p.errorAtPrevious("invalid number literal")
		return
	}
	p.emitConstant(subtle.Number(v))
}

func (p *parser) string(canAssign bool) {
	text := p.previous.Text
	raw := text[1 : len(text)-1] // strip the surrounding quotes
	p.emitConstant(subtle.FromObj(p.vm.NewString([]byte(raw))))
}

func (p *parser) literal(canAssign bool) {
	switch p.previous.Type {
	case TokenNil:
		p.emitOp(subtle.OpNil)
	case TokenTrue:
		p.emitOp(subtle.OpTrue)
	case TokenFalse:
		p.emitOp(subtle.OpFalse)
	}
}

func (p *parser) grouping(canAssign bool) {
	p.expression()
	p.consume(TokenRParen, "expect ')' after expression")
}

func (p *parser) unary(canAssign bool) {
	op := p.previous.Type
	p.parsePrecedence(precUnary)
	switch op {
	case TokenMinus:
		p.invokeKey("neg", 0)
	case TokenBang:
		p.emitOp(subtle.OpNot)
	}
}

// binary compiles the right-hand operand and dispatches the operator.
// ==/!= compile to the dedicated EQ/NEQ opcodes (cheap, structural,
// non-overridable), everything else goes through INVOKE since its
// meaning genuinely depends on the left operand's prototype (string
// concatenation vs. number addition) — see DESIGN.md's note on spec.md
// §4.5's closing paragraph.
func (p *parser) binary(canAssign bool) {
	op := p.previous.Type
	rule := p.ruleFor(op)
	p.parsePrecedence(rule.precedence + 1)

	switch op {
	case TokenEqEq:
		p.emitOp(subtle.OpEq)
	case TokenBangEq:
		p.emitOp(subtle.OpNeq)
	case TokenPlus:
		p.invokeKey("+", 1)
	case TokenMinus:
		p.invokeKey("-", 1)
	case TokenStar:
		p.invokeKey("*", 1)
	case TokenSlash:
		p.invokeKey("/", 1)
	case TokenLt:
		p.invokeKey("<", 1)
	case TokenLeq:
		p.invokeKey("<=", 1)
	case TokenGt:
		p.invokeKey(">", 1)
	case TokenGeq:
		p.invokeKey(">=", 1)
	}
}

// and_/or_ are short-circuiting: the left operand is already on the
// stack from the prefix/infix chain.
func (p *parser) and_(canAssign bool) {
	endJump := p.emitJump(subtle.OpJumpIfFalse)
	p.emitOp(subtle.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func (p *parser) or_(canAssign bool) {
	endJump := p.emitJump(subtle.OpJumpIfTrue)
	p.emitOp(subtle.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func (p *parser) variable(canAssign bool) {
	p.namedVariable(p.previous.Text, canAssign)
}

// this_ reads the current function's implicit receiver, always slot 0
// of its own frame (spec.md §4.6: INVOKE sets slot 0 to the receiver a
// method was resolved on; a plain call c() resolves "call" on c itself,
// so "this" inside c is c — see core.go's Fn.call).
func (p *parser) this_(canAssign bool) {
	p.emitOp(subtle.OpGetLocal)
	p.emitByte(0)
}

// dot compiles both `recv.name` (a getSlot/setSlot call, since plain
// field reads/writes are not themselves invocations) and `recv.name(args)`
// (an ordinary method INVOKE).
func (p *parser) dot(canAssign bool) {
	p.consume(TokenIdentifier, "expect property name after '.'")
	name := p.previous.Text

	if canAssign && p.match(TokenEq) {
		p.emitConstant(subtle.FromObj(p.vm.NewString([]byte(name))))
		p.expression()
		p.invokeKey("setSlot", 2)
		return
	}
	if p.match(TokenLParen) {
		argc := p.argumentList()
		p.invokeKey(name, argc)
		return
	}
	p.emitConstant(subtle.FromObj(p.vm.NewString([]byte(name))))
	p.invokeKey("getSlot", 1)
}

// call compiles `callee(args)`: the callee is already on the stack as
// the receiver, so a direct call desugars to INVOKE "call" with the
// evaluated arguments (core.go's Fn.call/Native.call).
func (p *parser) call(canAssign bool) {
	argc := p.argumentList()
	p.invokeKey("call", argc)
}

func (p *parser) argumentList() int {
	argc := 0
	if !p.check(TokenRParen) {
		for {
			p.expression()
			argc++
			if !p.match(TokenComma) {
				break
			}
		}
	}
	p.consume(TokenRParen, "expect ')' after arguments")
	return argc
}

// objectLiteral compiles `{ name: expr, ... }`. Computed-key fields have
// no surface syntax in this grammar (the operator set spec.md §6 lists
// has no `[`/`]`), so OBJLIT_SET is never emitted by this compiler; it
// remains in the opcode table for parity with spec.md §4.5's full set.
func (p *parser) objectLiteral(canAssign bool) {
	p.emitOp(subtle.OpObject)
	for !p.check(TokenRBrace) && !p.check(TokenEOF) {
		var name string
		switch {
		case p.check(TokenIdentifier):
			p.advance()
			name = p.previous.Text
		case p.check(TokenString):
			p.advance()
			name = p.previous.Text[1 : len(p.previous.Text)-1]
		default:
			p.errorAtCurrent("expect field name")
			return
		}
		keyIdx := p.identifierConstant(name)
		p.consume(TokenColon, "expect ':' after field name")
		p.expression()
		p.emitOp(subtle.OpObjectSet)
		p.emitOffset(uint16(keyIdx))
		if !p.match(TokenComma) {
			break
		}
	}
	p.consume(TokenRBrace, "expect '}' after object literal")
}

// functionLiteral compiles `fn(params) { body }` into a Function
// constant and emits the CLOSURE instruction that captures its upvalues.
func (p *parser) functionLiteral(canAssign bool) {
	enclosing := p.fs
	fn := p.vm.NewFunction()
	p.fs = newFuncState(enclosing, fn, 1)

	p.consume(TokenLParen, "expect '(' after 'fn'")
	if !p.check(TokenRParen) {
		for {
			p.consume(TokenIdentifier, "expect parameter name")
			p.addLocal(p.previous.Text)
			fn.Arity++
			if !p.match(TokenComma) {
				break
			}
		}
	}
	p.consume(TokenRParen, "expect ')' after parameters")
	p.consume(TokenLBrace, "expect '{' before function body")

	hasTail := p.stmtList(TokenRBrace)
	p.consume(TokenRBrace, "expect '}' after function body")
	if !hasTail {
		p.emitOp(subtle.OpNil)
	}
	p.emitOp(subtle.OpReturn)

	fn.UpvalueCount = len(p.fs.upvalues)
	upvalues := p.fs.upvalues
	p.fs = enclosing

	idx := p.chunk().AddConstant(subtle.FromObj(fn))
	p.emitOp(subtle.OpClosure)
	p.emitOffset(uint16(idx))
	for _, u := range upvalues {
		if u.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(byte(u.index))
	}
}

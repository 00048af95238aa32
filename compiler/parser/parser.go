// Package parser turns Monty source text into the ast package's syntax
// tree: a hand-written recursive-descent parser with precedence-climbing
// expression parsing over the lexer's indentation-aware token stream.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scostello/monty-go/compiler/ast"
	"github.com/scostello/monty-go/compiler/lexer"
)

// Parser consumes a token stream produced by lexer.New.
type Parser struct {
	toks []lexer.Token
	pos  int
	file string
	src  string
}

// Parse tokenizes and parses src, returning the module AST or a
// *lexer.SyntaxError.
func Parse(src, file string) (*ast.Module, error) {
	toks, err := lexer.New(src, file).Tokens()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks, file: file, src: src}
	return p.parseModule()
}

func (p *Parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *Parser) peek() lexer.Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) advance() lexer.Token {
	tok := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) at(t lexer.TokenType) bool { return p.cur().Type == t }

func (p *Parser) accept(t lexer.TokenType) bool {
	if p.at(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType) (lexer.Token, error) {
	if !p.at(t) {
		return lexer.Token{}, p.errf(p.cur(), "expected %s, found %s", lexer.TokenNames[t], p.describe(p.cur()))
	}
	return p.advance(), nil
}

func (p *Parser) describe(tok lexer.Token) string {
	if tok.Type == lexer.TokEOF {
		return "end of input"
	}
	if tok.Value != "" && tok.Type != lexer.TokNewline {
		return "'" + tok.Value + "'"
	}
	return lexer.TokenNames[tok.Type]
}

func (p *Parser) errf(tok lexer.Token, format string, a ...interface{}) error {
	return &lexer.SyntaxError{
		File:    p.file,
		Line:    tok.Position.Line,
		Column:  tok.Position.Column,
		Message: fmt.Sprintf(format, a...),
		Snippet: p.sourceLine(tok.Position.Line),
	}
}

func (p *Parser) sourceLine(line int) string {
	lines := strings.Split(p.src, "\n")
	if line >= 1 && line <= len(lines) {
		return lines[line-1]
	}
	return ""
}

func (p *Parser) parseModule() (*ast.Module, error) {
	mod := &ast.Module{Pos: ast.Pos{Line: 1}}
	for {
		for p.accept(lexer.TokNewline) {
		}
		if p.at(lexer.TokEOF) {
			return mod, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		mod.Body = append(mod.Body, stmt...)
	}
}

// parseStatement parses one logical statement, which may expand to several
// AST statements for `;`-joined simple statements.
func (p *Parser) parseStatement() ([]ast.Stmt, error) {
	switch p.cur().Type {
	case lexer.TokIf:
		s, err := p.parseIf()
		return wrap(s, err)
	case lexer.TokWhile:
		s, err := p.parseWhile()
		return wrap(s, err)
	case lexer.TokFor:
		s, err := p.parseFor()
		return wrap(s, err)
	case lexer.TokTry:
		s, err := p.parseTry()
		return wrap(s, err)
	case lexer.TokDef:
		s, err := p.parseFuncDef(nil, false)
		return wrap(s, err)
	case lexer.TokClass:
		s, err := p.parseClassDef(nil)
		return wrap(s, err)
	case lexer.TokAt:
		s, err := p.parseDecorated()
		return wrap(s, err)
	case lexer.TokAsync:
		tok := p.advance()
		if !p.at(lexer.TokDef) {
			return nil, p.errf(tok, "expected 'def' after 'async'")
		}
		s, err := p.parseFuncDef(nil, true)
		return wrap(s, err)
	}
	return p.parseSimpleLine()
}

func wrap(s ast.Stmt, err error) ([]ast.Stmt, error) {
	if err != nil {
		return nil, err
	}
	return []ast.Stmt{s}, nil
}

// parseSimpleLine parses `;`-separated simple statements terminated by a
// NEWLINE.
func (p *Parser) parseSimpleLine() ([]ast.Stmt, error) {
	var out []ast.Stmt
	for {
		stmt, err := p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
		if p.accept(lexer.TokSemicolon) {
			if p.at(lexer.TokNewline) || p.at(lexer.TokEOF) {
				break
			}
			continue
		}
		break
	}
	if !p.accept(lexer.TokNewline) && !p.at(lexer.TokEOF) && !p.at(lexer.TokDedent) {
		return nil, p.errf(p.cur(), "unexpected %s", p.describe(p.cur()))
	}
	return out, nil
}

func (p *Parser) parseSimpleStmt() (ast.Stmt, error) {
	tok := p.cur()
	switch tok.Type {
	case lexer.TokReturn:
		p.advance()
		ret := &ast.Return{StmtBase: ast.AtStmt(tok.Position.Line)}
		if !p.at(lexer.TokNewline) && !p.at(lexer.TokSemicolon) && !p.at(lexer.TokEOF) {
			v, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			ret.Value = v
		}
		return ret, nil
	case lexer.TokPass:
		p.advance()
		return &ast.Pass{StmtBase: ast.AtStmt(tok.Position.Line)}, nil
	case lexer.TokBreak:
		p.advance()
		return &ast.Break{StmtBase: ast.AtStmt(tok.Position.Line)}, nil
	case lexer.TokContinue:
		p.advance()
		return &ast.Continue{StmtBase: ast.AtStmt(tok.Position.Line)}, nil
	case lexer.TokRaise:
		p.advance()
		r := &ast.Raise{StmtBase: ast.AtStmt(tok.Position.Line)}
		if !p.at(lexer.TokNewline) && !p.at(lexer.TokSemicolon) && !p.at(lexer.TokEOF) {
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			r.Exc = v
			if p.accept(lexer.TokFrom) {
				if _, err := p.parseTest(); err != nil {
					return nil, err
				}
			}
		}
		return r, nil
	case lexer.TokAssert:
		p.advance()
		test, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		a := &ast.Assert{StmtBase: ast.AtStmt(tok.Position.Line), Test: test}
		if p.accept(lexer.TokComma) {
			msg, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			a.Msg = msg
		}
		return a, nil
	case lexer.TokGlobal:
		p.advance()
		g := &ast.Global{StmtBase: ast.AtStmt(tok.Position.Line)}
		for {
			name, err := p.expect(lexer.TokName)
			if err != nil {
				return nil, err
			}
			g.Names = append(g.Names, name.Value)
			if !p.accept(lexer.TokComma) {
				break
			}
		}
		return g, nil
	case lexer.TokImport:
		p.advance()
		name, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		return &ast.Import{StmtBase: ast.AtStmt(tok.Position.Line), Name: name}, nil
	case lexer.TokFrom:
		return p.parseFromImport()
	case lexer.TokDel:
		p.advance()
		name, err := p.expect(lexer.TokName)
		if err != nil {
			return nil, err
		}
		// del lowers to rebinding the name to None; only plain names are
		// accepted, and the name stays bound afterwards.
		return &ast.Assign{
			StmtBase: ast.AtStmt(tok.Position.Line),
			Targets:  []ast.Expr{&ast.Name{ExprBase: ast.AtExpr(tok.Position.Line), Ident: name.Value}},
			Value:    &ast.NoneLit{ExprBase: ast.AtExpr(tok.Position.Line)},
		}, nil
	}
	return p.parseExprLikeStmt()
}

func (p *Parser) parseDottedName() (string, error) {
	name, err := p.expect(lexer.TokName)
	if err != nil {
		return "", err
	}
	full := name.Value
	for p.accept(lexer.TokDot) {
		part, err := p.expect(lexer.TokName)
		if err != nil {
			return "", err
		}
		full += "." + part.Value
	}
	return full, nil
}

func (p *Parser) parseFromImport() (ast.Stmt, error) {
	tok := p.advance() // from
	module, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokImport); err != nil {
		return nil, err
	}
	fi := &ast.FromImport{StmtBase: ast.AtStmt(tok.Position.Line), Module: module}
	parenthesized := p.accept(lexer.TokLParen)
	for {
		name, err := p.expect(lexer.TokName)
		if err != nil {
			return nil, err
		}
		alias := ""
		if p.accept(lexer.TokAs) {
			a, err := p.expect(lexer.TokName)
			if err != nil {
				return nil, err
			}
			alias = a.Value
		}
		fi.Names = append(fi.Names, name.Value)
		fi.Aliases = append(fi.Aliases, alias)
		if !p.accept(lexer.TokComma) {
			break
		}
		if parenthesized && p.at(lexer.TokRParen) {
			break
		}
	}
	if parenthesized {
		if _, err := p.expect(lexer.TokRParen); err != nil {
			return nil, err
		}
	}
	return fi, nil
}

// parseExprLikeStmt handles expression statements, assignments, augmented
// assignments and annotated assignments, which all begin with an expression
// list.
func (p *Parser) parseExprLikeStmt() (ast.Stmt, error) {
	tok := p.cur()
	first, err := p.parseTestList()
	if err != nil {
		return nil, err
	}

	switch p.cur().Type {
	case lexer.TokAssign:
		targets := []ast.Expr{first}
		var value ast.Expr
		for p.accept(lexer.TokAssign) {
			next, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			if p.at(lexer.TokAssign) {
				targets = append(targets, next)
				continue
			}
			value = next
		}
		for _, t := range targets {
			if err := p.checkTarget(t); err != nil {
				return nil, err
			}
		}
		return &ast.Assign{StmtBase: ast.AtStmt(tok.Position.Line), Targets: targets, Value: value}, nil

	case lexer.TokPlusAssign, lexer.TokMinusAssign, lexer.TokStarAssign,
		lexer.TokSlashAssign, lexer.TokDoubleSlashAssign, lexer.TokPercentAssign,
		lexer.TokDoubleStarAssign, lexer.TokAmpAssign, lexer.TokPipeAssign, lexer.TokCaretAssign:
		opTok := p.advance()
		if err := p.checkTarget(first); err != nil {
			return nil, err
		}
		if _, isTuple := first.(*ast.TupleLit); isTuple {
			return nil, p.errf(opTok, "illegal target for augmented assignment")
		}
		value, err := p.parseTestList()
		if err != nil {
			return nil, err
		}
		op := strings.TrimSuffix(opTok.Value, "=")
		return &ast.AugAssign{StmtBase: ast.AtStmt(tok.Position.Line), Target: first, Op: op, Value: value}, nil

	case lexer.TokColon:
		p.advance()
		if _, err := p.parseTest(); err != nil { // annotation, discarded
			return nil, err
		}
		if err := p.checkTarget(first); err != nil {
			return nil, err
		}
		ann := &ast.AnnAssign{StmtBase: ast.AtStmt(tok.Position.Line), Target: first}
		if p.accept(lexer.TokAssign) {
			v, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			ann.Value = v
		}
		return ann, nil
	}
	return &ast.ExprStmt{StmtBase: ast.AtStmt(tok.Position.Line), Value: first}, nil
}

func (p *Parser) checkTarget(e ast.Expr) error {
	switch t := e.(type) {
	case *ast.Name, *ast.Attribute, *ast.Index:
		return nil
	case *ast.TupleLit:
		for _, el := range t.Elems {
			if err := p.checkTarget(el); err != nil {
				return err
			}
		}
		return nil
	case *ast.ListLit:
		for _, el := range t.Elems {
			if err := p.checkTarget(el); err != nil {
				return err
			}
		}
		return nil
	}
	return p.errf(lexer.Token{Position: lexer.Position{Line: e.NodeLine(), Column: 1}}, "cannot assign to expression")
}

// parseSuite parses either an indented block or a same-line simple
// statement list after a colon.
func (p *Parser) parseSuite() ([]ast.Stmt, error) {
	if _, err := p.expect(lexer.TokColon); err != nil {
		return nil, err
	}
	if p.accept(lexer.TokNewline) {
		for p.accept(lexer.TokNewline) {
		}
		if _, err := p.expect(lexer.TokIndent); err != nil {
			return nil, err
		}
		var body []ast.Stmt
		for {
			for p.accept(lexer.TokNewline) {
			}
			if p.accept(lexer.TokDedent) {
				break
			}
			if p.at(lexer.TokEOF) {
				break
			}
			stmts, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			body = append(body, stmts...)
		}
		if len(body) == 0 {
			return nil, p.errf(p.cur(), "expected an indented block")
		}
		return body, nil
	}
	return p.parseSimpleLine()
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	tok := p.advance() // if / elif
	test, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &ast.If{StmtBase: ast.AtStmt(tok.Position.Line), Test: test, Body: body}
	if p.at(lexer.TokElif) {
		elif, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		node.Else = []ast.Stmt{elif}
	} else if p.accept(lexer.TokElse) {
		orelse, err := p.parseSuite()
		if err != nil {
			return nil, err
		}
		node.Else = orelse
	}
	return node, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	tok := p.advance()
	test, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &ast.While{StmtBase: ast.AtStmt(tok.Position.Line), Test: test, Body: body}, nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	tok := p.advance()
	target, err := p.parseTargetList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokIn); err != nil {
		return nil, err
	}
	iter, err := p.parseTestList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &ast.For{StmtBase: ast.AtStmt(tok.Position.Line), Target: target, Iter: iter, Body: body}, nil
}

// parseTargetList parses a for-loop target: one or more names (or nested
// parenthesized tuples), comma-separated.
func (p *Parser) parseTargetList() (ast.Expr, error) {
	first, err := p.parseTargetAtom()
	if err != nil {
		return nil, err
	}
	if !p.at(lexer.TokComma) {
		return first, nil
	}
	elems := []ast.Expr{first}
	for p.accept(lexer.TokComma) {
		if p.at(lexer.TokIn) {
			break
		}
		next, err := p.parseTargetAtom()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	return &ast.TupleLit{ExprBase: ast.AtExpr(first.NodeLine()), Elems: elems}, nil
}

func (p *Parser) parseTargetAtom() (ast.Expr, error) {
	if p.accept(lexer.TokLParen) {
		inner, err := p.parseTargetList()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	}
	name, err := p.expect(lexer.TokName)
	if err != nil {
		return nil, err
	}
	return &ast.Name{ExprBase: ast.AtExpr(name.Position.Line), Ident: name.Value}, nil
}

func (p *Parser) parseTry() (ast.Stmt, error) {
	tok := p.advance()
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	node := &ast.Try{StmtBase: ast.AtStmt(tok.Position.Line), Body: body}
	for p.at(lexer.TokExcept) {
		excTok := p.advance()
		clause := ast.ExceptClause{Line: excTok.Position.Line}
		if !p.at(lexer.TokColon) {
			kind, err := p.expect(lexer.TokName)
			if err != nil {
				return nil, err
			}
			clause.Kind = kind.Value
			if p.accept(lexer.TokAs) {
				name, err := p.expect(lexer.TokName)
				if err != nil {
					return nil, err
				}
				clause.Name = name.Value
			}
		}
		cbody, err := p.parseSuite()
		if err != nil {
			return nil, err
		}
		clause.Body = cbody
		node.Excepts = append(node.Excepts, clause)
	}
	if p.accept(lexer.TokFinally) {
		fbody, err := p.parseSuite()
		if err != nil {
			return nil, err
		}
		node.Finally = fbody
	}
	if len(node.Excepts) == 0 && len(node.Finally) == 0 {
		return nil, p.errf(tok, "try statement must have at least one except or finally clause")
	}
	return node, nil
}

func (p *Parser) parseDecorated() (ast.Stmt, error) {
	var decorators []ast.Expr
	for p.at(lexer.TokAt) {
		p.advance()
		dec, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		decorators = append(decorators, dec)
		if !p.accept(lexer.TokNewline) {
			return nil, p.errf(p.cur(), "expected newline after decorator")
		}
		for p.accept(lexer.TokNewline) {
		}
	}
	switch p.cur().Type {
	case lexer.TokDef:
		return p.parseFuncDef(decorators, false)
	case lexer.TokAsync:
		tok := p.advance()
		if !p.at(lexer.TokDef) {
			return nil, p.errf(tok, "expected 'def' after 'async'")
		}
		return p.parseFuncDef(decorators, true)
	case lexer.TokClass:
		return p.parseClassDef(decorators)
	}
	return nil, p.errf(p.cur(), "expected def or class after decorators")
}

func (p *Parser) parseParams(terminator lexer.TokenType) ([]ast.Param, error) {
	var params []ast.Param
	seenDefault := false
	for !p.at(terminator) {
		if p.at(lexer.TokStar) || p.at(lexer.TokDoubleStar) {
			return nil, p.errf(p.cur(), "starred parameters are not supported")
		}
		name, err := p.expect(lexer.TokName)
		if err != nil {
			return nil, err
		}
		param := ast.Param{Name: name.Value}
		if p.accept(lexer.TokColon) {
			if _, err := p.parseTest(); err != nil { // annotation, discarded
				return nil, err
			}
		}
		if p.accept(lexer.TokAssign) {
			def, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			param.Default = def
			seenDefault = true
		} else if seenDefault {
			return nil, p.errf(name, "parameter without a default follows parameter with a default")
		}
		params = append(params, param)
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	return params, nil
}

func (p *Parser) parseFuncDef(decorators []ast.Expr, isAsync bool) (ast.Stmt, error) {
	tok := p.advance() // def
	name, err := p.expect(lexer.TokName)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokLParen); err != nil {
		return nil, err
	}
	params, err := p.parseParams(lexer.TokRParen)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokRParen); err != nil {
		return nil, err
	}
	if p.accept(lexer.TokArrow) {
		if _, err := p.parseTest(); err != nil { // return annotation, discarded
			return nil, err
		}
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDef{
		StmtBase:   ast.AtStmt(tok.Position.Line),
		Name:       name.Value,
		Params:     params,
		Body:       body,
		Decorators: decorators,
		IsAsync:    isAsync,
	}, nil
}

func (p *Parser) parseClassDef(decorators []ast.Expr) (ast.Stmt, error) {
	tok := p.advance() // class
	name, err := p.expect(lexer.TokName)
	if err != nil {
		return nil, err
	}
	var bases []ast.Expr
	if p.accept(lexer.TokLParen) {
		for !p.at(lexer.TokRParen) {
			b, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			bases = append(bases, b)
			if !p.accept(lexer.TokComma) {
				break
			}
		}
		if _, err := p.expect(lexer.TokRParen); err != nil {
			return nil, err
		}
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &ast.ClassDef{
		StmtBase:   ast.AtStmt(tok.Position.Line),
		Name:       name.Value,
		Bases:      bases,
		Body:       body,
		Decorators: decorators,
	}, nil
}

// ---- expressions ----

// parseTestList parses comma-separated tests; more than one builds a tuple.
func (p *Parser) parseTestList() (ast.Expr, error) {
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if !p.at(lexer.TokComma) {
		return first, nil
	}
	elems := []ast.Expr{first}
	for p.accept(lexer.TokComma) {
		if p.atExprEnd() {
			break
		}
		next, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	return &ast.TupleLit{ExprBase: ast.AtExpr(first.NodeLine()), Elems: elems}, nil
}

func (p *Parser) atExprEnd() bool {
	switch p.cur().Type {
	case lexer.TokNewline, lexer.TokEOF, lexer.TokAssign, lexer.TokRParen,
		lexer.TokRBracket, lexer.TokRBrace, lexer.TokColon, lexer.TokSemicolon:
		return true
	}
	return false
}

func (p *Parser) parseTest() (ast.Expr, error) {
	if p.at(lexer.TokLambda) {
		return p.parseLambda()
	}
	body, err := p.parseOrTest()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.TokIf) {
		p.advance()
		test, err := p.parseOrTest()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokElse); err != nil {
			return nil, err
		}
		orelse, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return &ast.Ternary{ExprBase: ast.AtExpr(body.NodeLine()), Test: test, Body: body, Orelse: orelse}, nil
	}
	return body, nil
}

func (p *Parser) parseLambda() (ast.Expr, error) {
	tok := p.advance() // lambda
	params, err := p.parseParams(lexer.TokColon)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	return &ast.Lambda{ExprBase: ast.AtExpr(tok.Position.Line), Params: params, Body: body}, nil
}

func (p *Parser) parseOrTest() (ast.Expr, error) {
	left, err := p.parseAndTest()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokOr) {
		p.advance()
		right, err := p.parseAndTest()
		if err != nil {
			return nil, err
		}
		left = &ast.BoolOp{ExprBase: ast.AtExpr(left.NodeLine()), Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndTest() (ast.Expr, error) {
	left, err := p.parseNotTest()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokAnd) {
		p.advance()
		right, err := p.parseNotTest()
		if err != nil {
			return nil, err
		}
		left = &ast.BoolOp{ExprBase: ast.AtExpr(left.NodeLine()), Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNotTest() (ast.Expr, error) {
	if p.at(lexer.TokNot) {
		tok := p.advance()
		operand, err := p.parseNotTest()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{ExprBase: ast.AtExpr(tok.Position.Line), Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rights []ast.Expr
	for {
		op := ""
		switch p.cur().Type {
		case lexer.TokEq:
			op = "=="
		case lexer.TokNe:
			op = "!="
		case lexer.TokLt:
			op = "<"
		case lexer.TokLe:
			op = "<="
		case lexer.TokGt:
			op = ">"
		case lexer.TokGe:
			op = ">="
		case lexer.TokIn:
			op = "in"
		case lexer.TokIs:
			op = "is"
		case lexer.TokNot:
			if p.peek().Type == lexer.TokIn {
				p.advance()
				op = "not in"
			}
		}
		if op == "" {
			break
		}
		p.advance()
		if op == "is" && p.accept(lexer.TokNot) {
			op = "is not"
		}
		right, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		rights = append(rights, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &ast.Compare{ExprBase: ast.AtExpr(left.NodeLine()), Left: left, Ops: ops, Rights: rights}, nil
}

func (p *Parser) parseBitOr() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseBitXor, map[lexer.TokenType]string{lexer.TokPipe: "|"})
}

func (p *Parser) parseBitXor() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseBitAnd, map[lexer.TokenType]string{lexer.TokCaret: "^"})
}

func (p *Parser) parseBitAnd() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseShift, map[lexer.TokenType]string{lexer.TokAmp: "&"})
}

func (p *Parser) parseShift() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseArith, map[lexer.TokenType]string{lexer.TokShl: "<<", lexer.TokShr: ">>"})
}

func (p *Parser) parseArith() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseTerm, map[lexer.TokenType]string{lexer.TokPlus: "+", lexer.TokMinus: "-"})
}

func (p *Parser) parseTerm() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseFactor, map[lexer.TokenType]string{
		lexer.TokStar: "*", lexer.TokSlash: "/", lexer.TokDoubleSlash: "//", lexer.TokPercent: "%",
	})
}

func (p *Parser) parseBinaryLevel(next func() (ast.Expr, error), ops map[lexer.TokenType]string) (ast.Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.cur().Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{ExprBase: ast.AtExpr(left.NodeLine()), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseFactor() (ast.Expr, error) {
	switch p.cur().Type {
	case lexer.TokMinus:
		tok := p.advance()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{ExprBase: ast.AtExpr(tok.Position.Line), Op: "-", Operand: operand}, nil
	case lexer.TokPlus:
		tok := p.advance()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{ExprBase: ast.AtExpr(tok.Position.Line), Op: "+", Operand: operand}, nil
	case lexer.TokTilde:
		tok := p.advance()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{ExprBase: ast.AtExpr(tok.Position.Line), Op: "~", Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *Parser) parsePower() (ast.Expr, error) {
	base, err := p.parseAwaitPrimary()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.TokDoubleStar) {
		p.advance()
		exp, err := p.parseFactor() // right-associative
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpr{ExprBase: ast.AtExpr(base.NodeLine()), Op: "**", Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *Parser) parseAwaitPrimary() (ast.Expr, error) {
	if p.at(lexer.TokAwait) {
		tok := p.advance()
		value, err := p.parseAwaitPrimary()
		if err != nil {
			return nil, err
		}
		return &ast.Await{ExprBase: ast.AtExpr(tok.Position.Line), Value: value}, nil
	}
	return p.parsePrimary()
}

// parsePrimary parses an atom followed by call/attribute/index trailers.
func (p *Parser) parsePrimary() (ast.Expr, error) {
	node, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case lexer.TokLParen:
			node, err = p.parseCallTrailer(node)
		case lexer.TokDot:
			p.advance()
			attr, aerr := p.expect(lexer.TokName)
			if aerr != nil {
				return nil, aerr
			}
			node = &ast.Attribute{ExprBase: ast.AtExpr(node.NodeLine()), Value: node, Attr: attr.Value}
		case lexer.TokLBracket:
			node, err = p.parseIndexTrailer(node)
		default:
			return node, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseCallTrailer(fn ast.Expr) (ast.Expr, error) {
	p.advance() // (
	call := &ast.Call{ExprBase: ast.AtExpr(fn.NodeLine()), Func: fn}
	for !p.at(lexer.TokRParen) {
		if p.at(lexer.TokStar) || p.at(lexer.TokDoubleStar) {
			return nil, p.errf(p.cur(), "starred arguments are not supported")
		}
		if p.at(lexer.TokName) && p.peek().Type == lexer.TokAssign {
			name := p.advance()
			p.advance() // =
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			call.KwNames = append(call.KwNames, name.Value)
			call.KwValues = append(call.KwValues, v)
		} else {
			if len(call.KwNames) > 0 {
				return nil, p.errf(p.cur(), "positional argument follows keyword argument")
			}
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, v)
		}
		if !p.accept(lexer.TokComma) {
			break
		}
	}
	if _, err := p.expect(lexer.TokRParen); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *Parser) parseIndexTrailer(value ast.Expr) (ast.Expr, error) {
	p.advance() // [
	key, err := p.parseSubscript()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokRBracket); err != nil {
		return nil, err
	}
	return &ast.Index{ExprBase: ast.AtExpr(value.NodeLine()), Value: value, Key: key}, nil
}

func (p *Parser) parseSubscript() (ast.Expr, error) {
	line := p.cur().Position.Line
	var start ast.Expr
	if !p.at(lexer.TokColon) {
		s, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		start = s
		if !p.at(lexer.TokColon) {
			return start, nil
		}
	}
	p.advance() // first colon
	sl := &ast.SliceExpr{ExprBase: ast.AtExpr(line), Start: start}
	if !p.at(lexer.TokColon) && !p.at(lexer.TokRBracket) {
		stop, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		sl.Stop = stop
	}
	if p.accept(lexer.TokColon) {
		if !p.at(lexer.TokRBracket) {
			step, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			sl.Step = step
		}
	}
	return sl, nil
}

func (p *Parser) parseAtom() (ast.Expr, error) {
	tok := p.cur()
	line := tok.Position.Line
	switch tok.Type {
	case lexer.TokName:
		p.advance()
		return &ast.Name{ExprBase: ast.AtExpr(line), Ident: tok.Value}, nil
	case lexer.TokNone:
		p.advance()
		return &ast.NoneLit{ExprBase: ast.AtExpr(line)}, nil
	case lexer.TokTrue:
		p.advance()
		return &ast.BoolLit{ExprBase: ast.AtExpr(line), Value: true}, nil
	case lexer.TokFalse:
		p.advance()
		return &ast.BoolLit{ExprBase: ast.AtExpr(line), Value: false}, nil
	case lexer.TokInt:
		p.advance()
		return &ast.IntLit{ExprBase: ast.AtExpr(line), Text: tok.Value}, nil
	case lexer.TokFloat:
		p.advance()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errf(tok, "invalid float literal")
		}
		return &ast.FloatLit{ExprBase: ast.AtExpr(line), Value: f}, nil
	case lexer.TokString, lexer.TokFString:
		return p.parseStringLike()
	case lexer.TokBytes:
		p.advance()
		return &ast.BytesLit{ExprBase: ast.AtExpr(line), Value: []byte(tok.Value)}, nil
	case lexer.TokLParen:
		return p.parseParenAtom()
	case lexer.TokLBracket:
		return p.parseListAtom()
	case lexer.TokLBrace:
		return p.parseBraceAtom()
	case lexer.TokLambda:
		return p.parseLambda()
	}
	return nil, p.errf(tok, "unexpected %s", p.describe(tok))
}

// parseStringLike handles adjacent string literal concatenation and
// f-string interpolation splitting.
func (p *Parser) parseStringLike() (ast.Expr, error) {
	line := p.cur().Position.Line
	var parts []ast.FStringPart
	interpolated := false
	for p.at(lexer.TokString) || p.at(lexer.TokFString) {
		tok := p.advance()
		if tok.Type == lexer.TokString {
			parts = append(parts, ast.FStringPart{Text: tok.Value})
			continue
		}
		interpolated = true
		fparts, err := p.splitFString(tok)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fparts...)
	}
	if !interpolated {
		text := ""
		for _, part := range parts {
			text += part.Text
		}
		return &ast.StrLit{ExprBase: ast.AtExpr(line), Value: text}, nil
	}
	return &ast.FString{ExprBase: ast.AtExpr(line), Parts: parts}, nil
}

// splitFString breaks an f-string body into literal and {expression}
// segments, parsing each embedded expression with a fresh sub-parser.
func (p *Parser) splitFString(tok lexer.Token) ([]ast.FStringPart, error) {
	s := tok.Value
	var parts []ast.FStringPart
	var lit strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '{' {
			if i+1 < len(s) && s[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			depth := 1
			j := i + 1
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				if depth > 0 {
					j++
				}
			}
			if depth != 0 {
				return nil, p.errf(tok, "unterminated expression in f-string")
			}
			exprText := s[i+1 : j]
			if conv := strings.LastIndexByte(exprText, '!'); conv >= 0 && conv == len(exprText)-2 {
				exprText = exprText[:conv] // drop !r / !s conversions
			}
			if colon := strings.IndexByte(exprText, ':'); colon >= 0 && !strings.ContainsAny(exprText[:colon], "([{") {
				return nil, p.errf(tok, "format specifiers in f-strings are not supported")
			}
			sub, err := parseExprText(exprText, p.file)
			if err != nil {
				return nil, err
			}
			if lit.Len() > 0 {
				parts = append(parts, ast.FStringPart{Text: lit.String()})
				lit.Reset()
			}
			parts = append(parts, ast.FStringPart{Expr: sub})
			i = j
			continue
		}
		if ch == '}' && i+1 < len(s) && s[i+1] == '}' {
			lit.WriteByte('}')
			i++
			continue
		}
		lit.WriteByte(ch)
	}
	if lit.Len() > 0 {
		parts = append(parts, ast.FStringPart{Text: lit.String()})
	}
	return parts, nil
}

// parseExprText parses a standalone expression (used for f-string
// interpolations).
func parseExprText(src, file string) (ast.Expr, error) {
	toks, err := lexer.New(src, file).Tokens()
	if err != nil {
		return nil, err
	}
	sub := &Parser{toks: toks, file: file, src: src}
	e, err := sub.parseTest()
	if err != nil {
		return nil, err
	}
	if !sub.at(lexer.TokNewline) && !sub.at(lexer.TokEOF) {
		return nil, sub.errf(sub.cur(), "invalid expression in f-string")
	}
	return e, nil
}

func (p *Parser) parseParenAtom() (ast.Expr, error) {
	tok := p.advance() // (
	if p.accept(lexer.TokRParen) {
		return &ast.TupleLit{ExprBase: ast.AtExpr(tok.Position.Line)}, nil
	}
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.TokRParen) {
		p.advance()
		return first, nil // grouping parens
	}
	elems := []ast.Expr{first}
	for p.accept(lexer.TokComma) {
		if p.at(lexer.TokRParen) {
			break
		}
		next, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	if _, err := p.expect(lexer.TokRParen); err != nil {
		return nil, err
	}
	return &ast.TupleLit{ExprBase: ast.AtExpr(tok.Position.Line), Elems: elems}, nil
}

func (p *Parser) parseListAtom() (ast.Expr, error) {
	tok := p.advance() // [
	if p.accept(lexer.TokRBracket) {
		return &ast.ListLit{ExprBase: ast.AtExpr(tok.Position.Line)}, nil
	}
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.TokFor) {
		comp, err := p.parseCompClauses(tok.Position.Line, ast.CompList, first, nil)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRBracket); err != nil {
			return nil, err
		}
		return comp, nil
	}
	elems := []ast.Expr{first}
	for p.accept(lexer.TokComma) {
		if p.at(lexer.TokRBracket) {
			break
		}
		next, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		elems = append(elems, next)
	}
	if _, err := p.expect(lexer.TokRBracket); err != nil {
		return nil, err
	}
	return &ast.ListLit{ExprBase: ast.AtExpr(tok.Position.Line), Elems: elems}, nil
}

func (p *Parser) parseBraceAtom() (ast.Expr, error) {
	tok := p.advance() // {
	line := tok.Position.Line
	if p.accept(lexer.TokRBrace) {
		return &ast.DictLit{ExprBase: ast.AtExpr(line)}, nil
	}
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if p.accept(lexer.TokColon) {
		value, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if p.at(lexer.TokFor) {
			comp, err := p.parseCompClauses(line, ast.CompDict, first, value)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokRBrace); err != nil {
				return nil, err
			}
			return comp, nil
		}
		d := &ast.DictLit{ExprBase: ast.AtExpr(line), Keys: []ast.Expr{first}, Values: []ast.Expr{value}}
		for p.accept(lexer.TokComma) {
			if p.at(lexer.TokRBrace) {
				break
			}
			k, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokColon); err != nil {
				return nil, err
			}
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			d.Keys = append(d.Keys, k)
			d.Values = append(d.Values, v)
		}
		if _, err := p.expect(lexer.TokRBrace); err != nil {
			return nil, err
		}
		return d, nil
	}
	if p.at(lexer.TokFor) {
		comp, err := p.parseCompClauses(line, ast.CompSet, first, nil)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRBrace); err != nil {
			return nil, err
		}
		return comp, nil
	}
	s := &ast.SetLit{ExprBase: ast.AtExpr(line), Elems: []ast.Expr{first}}
	for p.accept(lexer.TokComma) {
		if p.at(lexer.TokRBrace) {
			break
		}
		next, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		s.Elems = append(s.Elems, next)
	}
	if _, err := p.expect(lexer.TokRBrace); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) parseCompClauses(line int, kind ast.CompKind, elem, value ast.Expr) (ast.Expr, error) {
	if _, err := p.expect(lexer.TokFor); err != nil {
		return nil, err
	}
	target, err := p.parseTargetList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokIn); err != nil {
		return nil, err
	}
	iter, err := p.parseOrTest()
	if err != nil {
		return nil, err
	}
	comp := &ast.Comprehension{
		ExprBase: ast.AtExpr(line),
		Kind:     kind,
		Elem:     elem,
		Value:    value,
		Target:   target,
		Iter:     iter,
	}
	for p.accept(lexer.TokIf) {
		cond, err := p.parseOrTest()
		if err != nil {
			return nil, err
		}
		comp.Conditions = append(comp.Conditions, cond)
	}
	if p.at(lexer.TokFor) {
		return nil, p.errf(p.cur(), "nested comprehension clauses are not supported")
	}
	return comp, nil
}

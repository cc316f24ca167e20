// Package parser turns a Covenant token stream into a canonical AST
// (spec.md §4.1). Every construct is an attributed block:
//
//	keyword attr=value attr="value" … end
//
// There are no operators, no precedence, and no expression nesting —
// the parser is a straightforward recursive-descent walk over nested
// blocks, the same shape as the teacher's own hand-rolled validators in
// internal/mangle, generalised here into a full tokenizing parser with
// span-accurate diagnostics (grounded on the retrieval pack's
// token+lexer pair and Consensys-go-corset's phase-returns-errors idiom).
package parser

import (
	"fmt"
	"regexp"

	"covenant/internal/ast"
	"covenant/internal/diag"
	"covenant/internal/lexer"
	"covenant/internal/source"
	"covenant/internal/token"
)

var idPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)+$`)

// Parser consumes a token slice produced by internal/lexer.
type Parser struct {
	file   *source.File
	toks   []token.Token
	pos    int
	diags  *diag.Bag
	seenID map[string]source.Span
}

// Parse lexes and parses file, returning the partial AST built so far
// (even on error, to allow later phases to at least enumerate what did
// parse) and the accumulated diagnostics.
func Parse(file *source.File, diags *diag.Bag) *ast.Program {
	toks := lexer.New(file, diags).Tokens()
	p := &Parser{file: file, toks: toks, diags: diags, seenID: map[string]source.Span{}}
	return p.parseProgram()
}

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool       { return p.cur().Kind == token.EOF }
func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

// span returns the covering span from start (an index into p.toks) to
// the current position, inclusive of the token just consumed.
func (p *Parser) spanFrom(startTok token.Token) source.Span {
	end := p.toks[p.pos].Span
	if p.pos > 0 {
		end = p.toks[p.pos-1].Span
	}
	return source.Join(startTok.Span, end)
}

func (p *Parser) errf(span source.Span, code diag.Code, format string, args ...interface{}) {
	p.diags.Errorf(diag.FamilyParse, code, span, format, args...)
}

// expectKeyword consumes an Ident token whose literal equals word,
// reporting E-PARSE-001 and returning false otherwise.
func (p *Parser) expectKeyword(word string) bool {
	t := p.cur()
	if t.Kind == token.Ident && t.Literal == word {
		p.advance()
		return true
	}
	p.errf(t.Span, "E-PARSE-001", "expected %q, found %q", word, t.Literal)
	return false
}

func (p *Parser) atKeyword(word string) bool {
	t := p.cur()
	return t.Kind == token.Ident && t.Literal == word
}

// resync skips tokens until it passes a balanced "end" matching the
// current block depth, per spec.md §4.1's recovery strategy.
func (p *Parser) resync() {
	depth := 1
	for !p.atEOF() {
		t := p.cur()
		if t.Kind == token.Ident {
			if blockOpeners[t.Literal] {
				depth++
			} else if t.Literal == "end" {
				depth--
				p.advance()
				if depth == 0 {
					return
				}
				continue
			}
		}
		p.advance()
	}
}

// blockOpeners lists keywords that open a nested block requiring a
// matching "end", used only to keep resync's depth counter honest.
var blockOpeners = map[string]bool{
	"fn": true, "struct": true, "enum": true, "module": true, "database": true,
	"extern": true, "test": true, "data": true,
	"effects": true, "requires": true, "types": true, "tools": true,
	"signature": true, "body": true, "tests": true, "metadata": true,
	"relations": true, "content": true, "schema": true,
	"compute": true, "call": true, "bind": true, "return": true,
	"if": true, "match": true, "for": true, "query": true, "insert": true,
	"update": true, "delete": true, "transaction": true, "traverse": true,
	"parallel": true, "race": true, "case": true, "else": true, "then": true,
	"branch": true, "requirement": true, "field": true, "variant": true,
	"param": true, "relation": true,
}

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.atEOF() {
		t := p.cur()
		if t.Kind != token.Ident {
			p.errf(t.Span, "E-PARSE-001", "expected snippet kind, found %q", t.Literal)
			p.advance()
			continue
		}
		kind, ok := snippetKinds[t.Literal]
		if !ok {
			p.errf(t.Span, "E-PARSE-001", "unknown snippet kind %q", t.Literal)
			p.advance()
			continue
		}
		snip := p.parseSnippet(kind)
		if snip != nil {
			prog.Snippets = append(prog.Snippets, snip)
		}
	}
	return prog
}

var snippetKinds = map[string]ast.SnippetKind{
	"fn": ast.KindFn, "struct": ast.KindStruct, "enum": ast.KindEnum,
	"module": ast.KindModule, "database": ast.KindDatabase, "extern": ast.KindExtern,
	"test": ast.KindTest, "data": ast.KindData,
}

// attrs reads a flat run of `name=value` pairs until the next token is a
// bare keyword (section/"end"/nested-block opener), returning them as a
// map; when a name repeats, the first value is kept.
func (p *Parser) parseAttrs() map[string]*ast.Literal {
	out := map[string]*ast.Literal{}
	for {
		t := p.cur()
		// An attribute is any Ident immediately followed by '='. Anything
		// else — "end", a nested block keyword, a section keyword — closes
		// the attribute run, even when the Ident text happens to also be a
		// reserved word (e.g. "var"/"field"/"from" are themselves attribute
		// names, not just keywords).
		if t.Kind != token.Ident || p.peekKind() != token.Equals {
			return out
		}
		name := t.Literal
		p.advance()
		p.advance() // '='
		lit := p.parseLiteralOrRef()
		if _, dup := out[name]; !dup {
			out[name] = lit
		}
	}
}

// peekKind returns the Kind of the token one past the current position,
// without consuming anything. The token stream is always EOF-terminated
// so this never indexes out of range.
func (p *Parser) peekKind() token.Kind {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1].Kind
	}
	return token.EOF
}

// parseLiteralOrRef parses one attribute value: a literal, or a bare
// identifier (treated as a string literal — e.g. `from=sum` in the
// spec's shorthand examples is equivalent to `from="sum"`).
func (p *Parser) parseLiteralOrRef() *ast.Literal {
	t := p.cur()
	switch t.Kind {
	case token.String, token.TripleString:
		p.advance()
		return &ast.Literal{Span: t.Span, Kind: ast.LitString, Str: t.Literal}
	case token.Int:
		p.advance()
		n, err := lexer.ParseInt(t.Literal)
		if err != nil {
			p.errf(t.Span, "E-PARSE-001", "invalid integer literal %q", t.Literal)
		}
		return &ast.Literal{Span: t.Span, Kind: ast.LitInt, Int: n}
	case token.Float:
		p.advance()
		f, err := lexer.ParseFloat(t.Literal)
		if err != nil {
			p.errf(t.Span, "E-PARSE-001", "invalid float literal %q", t.Literal)
		}
		return &ast.Literal{Span: t.Span, Kind: ast.LitFloat, Float: f}
	case token.True, token.False:
		p.advance()
		return &ast.Literal{Span: t.Span, Kind: ast.LitBool, Bool: t.Kind == token.True}
	case token.None:
		p.advance()
		return &ast.Literal{Span: t.Span, Kind: ast.LitNone}
	case token.LBracket:
		return p.parseListLiteral()
	case token.LBrace:
		return p.parseStructLiteral()
	case token.Ident:
		p.advance()
		return &ast.Literal{Span: t.Span, Kind: ast.LitString, Str: t.Literal}
	default:
		p.errf(t.Span, "E-PARSE-001", "expected a value, found %q", t.Kind)
		p.advance()
		return &ast.Literal{Span: t.Span, Kind: ast.LitNone}
	}
}

func (p *Parser) parseListLiteral() *ast.Literal {
	start := p.cur()
	p.advance() // [
	var items []*ast.Literal
	for p.cur().Kind != token.RBracket && !p.atEOF() {
		items = append(items, p.parseLiteralOrRef())
		if p.cur().Kind == token.Comma {
			p.advance()
		}
	}
	if p.cur().Kind == token.RBracket {
		p.advance()
	} else {
		p.errf(p.cur().Span, "E-PARSE-001", "expected ']' to close list literal")
	}
	return &ast.Literal{Span: p.spanFrom(start), Kind: ast.LitList, List: items}
}

func (p *Parser) parseStructLiteral() *ast.Literal {
	start := p.cur()
	p.advance() // {
	var fields []ast.StructField
	for p.cur().Kind != token.RBrace && !p.atEOF() {
		keyTok := p.cur()
		if keyTok.Kind != token.String {
			p.errf(keyTok.Span, "E-PARSE-001", "expected quoted field name in struct literal")
			p.advance()
			continue
		}
		p.advance()
		if p.cur().Kind != token.Colon {
			p.errf(p.cur().Span, "E-PARSE-001", "expected ':' after struct field name")
		} else {
			p.advance()
		}
		val := p.parseLiteralOrRef()
		fields = append(fields, ast.StructField{Name: keyTok.Literal, Value: val})
		if p.cur().Kind == token.Comma {
			p.advance()
		}
	}
	if p.cur().Kind == token.RBrace {
		p.advance()
	} else {
		p.errf(p.cur().Span, "E-PARSE-001", "expected '}' to close struct literal")
	}
	return &ast.Literal{Span: p.spanFrom(start), Kind: ast.LitStruct, Struct: fields}
}

func attrString(attrs map[string]*ast.Literal, name string) string {
	if l, ok := attrs[name]; ok && l.Kind == ast.LitString {
		return l.Str
	}
	return ""
}

func (p *Parser) parseSnippet(kind ast.SnippetKind) *ast.Snippet {
	startTok := p.cur()
	p.advance() // kind keyword
	attrs := p.parseAttrs()
	id := attrString(attrs, "id")
	snip := &ast.Snippet{Kind: kind, ID: id, Metadata: map[string]string{}}

	if id == "" {
		p.errf(startTok.Span, "E-PARSE-002", "%s snippet missing required id attribute", kind)
	} else if prev, dup := p.seenID[id]; dup {
		p.errf(startTok.Span, "E-PARSE-DUP", "duplicate snippet id %q (first declared at %s)", id, prev.Position())
	} else {
		p.seenID[id] = startTok.Span
	}

	maxOrder := -1
	for !p.atEOF() {
		if p.atKeyword("end") {
			p.advance()
			break
		}
		t := p.cur()
		if t.Kind != token.Ident {
			p.errf(t.Span, "E-PARSE-001", "expected a section or 'end', found %q", t.Literal)
			p.resync()
			break
		}
		secKind, known := sectionKinds[t.Literal]
		if !known {
			p.errf(t.Span, "E-PARSE-001", "unknown section %q", t.Literal)
			p.advance()
			p.resync()
			continue
		}
		if allowed := ast.AllowedSections[kind]; !allowed[secKind] {
			p.errf(t.Span, "E-PARSE-001", "section %q is not permitted in a %s snippet", secKind, kind)
		}
		idx := ast.OrderIndex(secKind)
		if idx < maxOrder {
			p.errf(t.Span, "E-PARSE-ORDER", "section %q appears out of canonical order", secKind)
		} else {
			maxOrder = idx
		}
		snip.SectionOrder = append(snip.SectionOrder, secKind)
		p.parseSection(snip, secKind)
	}
	snip.Span = p.spanFrom(startTok)
	return snip
}

var sectionKinds = map[string]ast.SectionKind{
	"effects": ast.SectionEffects, "requires": ast.SectionRequires,
	"types": ast.SectionTypes, "tools": ast.SectionTools,
	"signature": ast.SectionSignature, "body": ast.SectionBody,
	"tests": ast.SectionTests, "metadata": ast.SectionMetadata,
	"relations": ast.SectionRelations, "content": ast.SectionContent,
	"schema": ast.SectionSchema,
}

func (p *Parser) parseSection(snip *ast.Snippet, kind ast.SectionKind) {
	startTok := p.cur()
	p.advance() // section keyword
	switch kind {
	case ast.SectionEffects:
		for !p.atKeyword("end") && !p.atEOF() {
			t := p.cur()
			if t.Kind == token.Ident {
				snip.Effects = append(snip.Effects, t.Literal)
				p.advance()
			} else {
				p.errf(t.Span, "E-PARSE-001", "expected an effect name")
				p.advance()
			}
		}
		p.expectEnd(startTok)
	case ast.SectionTools:
		for !p.atKeyword("end") && !p.atEOF() {
			t := p.cur()
			if t.Kind == token.Ident {
				snip.Tools = append(snip.Tools, t.Literal)
				p.advance()
			} else {
				p.advance()
			}
		}
		p.expectEnd(startTok)
	case ast.SectionRequires:
		for p.atKeyword("requirement") && !p.atEOF() {
			p.advance()
			attrs := p.parseAttrs()
			req := ast.Requirement{
				ID: attrString(attrs, "id"), Text: attrString(attrs, "text"),
				Priority: attrString(attrs, "priority"), Status: attrString(attrs, "status"),
			}
			p.expectEnd(startTok)
			req.Span = snip.Span
			snip.Requires = append(snip.Requires, req)
		}
		p.expectEnd(startTok)
	case ast.SectionTypes:
		p.parseTypesSection(snip, startTok)
	case ast.SectionSignature:
		snip.Signature = p.parseSignatureSection(startTok)
	case ast.SectionBody:
		snip.Body = p.parseStepList(startTok)
	case ast.SectionTests:
		for p.atKeyword("test") && !p.atEOF() {
			p.advance()
			attrs := p.parseAttrs()
			tc := ast.TestCase{ID: attrString(attrs, "id"), Kind: attrString(attrs, "kind"), Covers: attrString(attrs, "covers")}
			for !p.atKeyword("end") && !p.atEOF() {
				if p.atKeyword("body") {
					p.advance()
					tc.Steps = p.parseStepList(p.cur())
					continue
				}
				p.advance()
			}
			p.expectEnd(startTok)
			snip.Tests = append(snip.Tests, tc)
		}
		p.expectEnd(startTok)
	case ast.SectionMetadata:
		attrs := p.parseAttrs()
		for k, v := range attrs {
			if v.Kind == ast.LitString {
				snip.Metadata[k] = v.Str
			}
		}
		p.expectEnd(startTok)
	case ast.SectionRelations:
		for p.atKeyword("relation") && !p.atEOF() {
			relTok := p.cur()
			p.advance()
			attrs := p.parseAttrs()
			snip.Relations = append(snip.Relations, ast.Relation{
				Span: p.spanFrom(relTok), Type: attrString(attrs, "type"), Target: attrString(attrs, "target"),
			})
			p.expectEnd(startTok)
		}
		p.expectEnd(startTok)
	case ast.SectionContent:
		t := p.cur()
		if t.Kind == token.String || t.Kind == token.TripleString {
			snip.Content = t.Literal
			p.advance()
		}
		p.expectEnd(startTok)
	case ast.SectionSchema:
		t := p.cur()
		if t.Kind == token.String || t.Kind == token.TripleString {
			snip.Schema = t.Literal
			p.advance()
		}
		p.expectEnd(startTok)
	default:
		p.resync()
	}
}

func (p *Parser) expectEnd(openTok token.Token) {
	if p.atKeyword("end") {
		p.advance()
		return
	}
	p.errf(p.cur().Span, "E-PARSE-001", "expected 'end' to close block opened at %s", openTok.Span.Position())
	p.resync()
}

func (p *Parser) parseTypesSection(snip *ast.Snippet, startTok token.Token) {
	for !p.atEOF() {
		switch {
		case p.atKeyword("field"):
			p.advance()
			attrs := p.parseAttrs()
			snip.Types = append(snip.Types, ast.Field{Name: attrString(attrs, "name"), Type: parseTypeExprAttr(attrs, "type")})
			p.expectEnd(startTok)
		case p.atKeyword("variant"):
			p.advance()
			attrs := p.parseAttrs()
			variant := ast.Variant{Name: attrString(attrs, "name")}
			for p.atKeyword("field") && !p.atEOF() {
				p.advance()
				fa := p.parseAttrs()
				variant.Fields = append(variant.Fields, ast.Field{Name: attrString(fa, "name"), Type: parseTypeExprAttr(fa, "type")})
				p.expectEnd(startTok)
			}
			p.expectEnd(startTok)
			snip.Variants = append(snip.Variants, variant)
		case p.atKeyword("end"):
			p.advance()
			return
		default:
			p.errf(p.cur().Span, "E-PARSE-001", "expected 'field', 'variant', or 'end' in types section")
			p.resync()
			return
		}
	}
}

// parseTypeExprAttr decodes a `type="…"` attribute string into a
// TypeExpr. The surface grammar for composite types (List<T>, Map<K,V>,
// T?, unions with "|", tuples) is textual inside the quoted string, so a
// small dedicated scanner runs over the decoded literal.
func parseTypeExprAttr(attrs map[string]*ast.Literal, name string) *ast.TypeExpr {
	raw := attrString(attrs, name)
	if raw == "" {
		return nil
	}
	return parseTypeString(raw)
}

func parseTypeString(s string) *ast.TypeExpr {
	ts := &typeStringScanner{s: s}
	return ts.parseUnion()
}

type typeStringScanner struct {
	s   string
	pos int
}

func (t *typeStringScanner) parseUnion() *ast.TypeExpr {
	first := t.parsePostfix()
	members := []*ast.TypeExpr{first}
	for t.peekSkip() == '|' {
		t.pos = t.skipSpaces(t.pos) + 1
		members = append(members, t.parsePostfix())
	}
	if len(members) == 1 {
		return first
	}
	return &ast.TypeExpr{Kind: ast.TypeUnion, Members: members}
}

func (t *typeStringScanner) parsePostfix() *ast.TypeExpr {
	base := t.parsePrimary()
	for t.peekSkip() == '?' {
		t.pos = t.skipSpaces(t.pos) + 1
		base = &ast.TypeExpr{Kind: ast.TypeOptional, Elem: base}
	}
	return base
}

func (t *typeStringScanner) parsePrimary() *ast.TypeExpr {
	t.pos = t.skipSpaces(t.pos)
	name := t.readIdent()
	switch name {
	case "List":
		t.expect('<')
		elem := t.parseUnion()
		t.expect('>')
		return &ast.TypeExpr{Kind: ast.TypeCollection, Elem: elem}
	case "Map":
		t.expect('<')
		key := t.parseUnion()
		t.expect(',')
		val := t.parseUnion()
		t.expect('>')
		return &ast.TypeExpr{Kind: ast.TypeMap, Key: key, Elem: val}
	default:
		return &ast.TypeExpr{Kind: ast.TypeName, Name: name}
	}
}

func (t *typeStringScanner) skipSpaces(pos int) int {
	for pos < len(t.s) && t.s[pos] == ' ' {
		pos++
	}
	return pos
}

func (t *typeStringScanner) peekSkip() byte {
	pos := t.skipSpaces(t.pos)
	if pos >= len(t.s) {
		return 0
	}
	return t.s[pos]
}

func (t *typeStringScanner) readIdent() string {
	start := t.pos
	for t.pos < len(t.s) && (isTypeIdentByte(t.s[t.pos])) {
		t.pos++
	}
	return t.s[start:t.pos]
}

func isTypeIdentByte(c byte) bool {
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (t *typeStringScanner) expect(c byte) {
	t.pos = t.skipSpaces(t.pos)
	if t.pos < len(t.s) && t.s[t.pos] == c {
		t.pos++
	}
}

func (p *Parser) parseSignatureSection(startTok token.Token) *ast.Signature {
	sig := &ast.Signature{}
	for !p.atEOF() {
		switch {
		case p.atKeyword("param"):
			p.advance()
			attrs := p.parseAttrs()
			sig.Params = append(sig.Params, ast.Param{Name: attrString(attrs, "name"), Type: parseTypeExprAttr(attrs, "type")})
			p.expectEnd(startTok)
		case p.atKeyword("returns"):
			p.advance()
			attrs := p.parseAttrs()
			sig.Result = parseTypeExprAttr(attrs, "type")
			p.expectEnd(startTok)
		case p.atKeyword("end"):
			p.advance()
			return sig
		default:
			p.errf(p.cur().Span, "E-PARSE-001", "expected 'param', 'returns', or 'end' in signature section")
			p.resync()
			return sig
		}
	}
	return sig
}

var stepKinds = map[string]ast.StepKind{
	"compute": ast.StepCompute, "call": ast.StepCall, "bind": ast.StepBind,
	"return": ast.StepReturn, "if": ast.StepIf, "match": ast.StepMatch,
	"for": ast.StepFor, "query": ast.StepQuery, "insert": ast.StepInsert,
	"update": ast.StepUpdate, "delete": ast.StepDelete,
	"transaction": ast.StepTransaction, "traverse": ast.StepTraverse,
	"parallel": ast.StepParallel, "race": ast.StepRace,
}

// parseStepList parses a flat sequence of steps until a matching "end"
// (used both for a snippet's top-level body and for nested branches).
func (p *Parser) parseStepList(openTok token.Token) []*ast.Step {
	var steps []*ast.Step
	for !p.atKeyword("end") && !p.atEOF() {
		if isBranchKeyword(p.cur().Literal) {
			// Caller (parseControlFlowStep) owns branch keywords; stop here.
			break
		}
		step := p.parseStep()
		if step != nil {
			steps = append(steps, step)
		}
	}
	if p.atKeyword("end") {
		p.advance()
	}
	return steps
}

func isBranchKeyword(lit string) bool {
	switch lit {
	case "then", "else", "case", "branch":
		return true
	default:
		return false
	}
}

func (p *Parser) parseStep() *ast.Step {
	startTok := p.cur()
	mut := false
	if p.atKeyword("mut") {
		mut = true
		p.advance()
	}
	t := p.cur()
	if t.Kind != token.Ident {
		p.errf(t.Span, "E-PARSE-001", "expected a step kind, found %q", t.Literal)
		p.advance()
		return nil
	}
	kind, known := stepKinds[t.Literal]
	if !known {
		p.errf(t.Span, "E-PARSE-UNKNOWN-STEP", "unknown step kind %q", t.Literal)
		p.advance()
		p.resync()
		return nil
	}
	p.advance()
	attrs, values := p.parseStepAttrsAndValues()
	step := &ast.Step{Kind: kind, Mut: mut, Attrs: toStringAttrs(attrs), Values: values}
	if as, ok := attrFirst(attrs, "as"); ok && as.Kind == ast.LitString {
		step.Output = as.Str
	} else {
		step.Output = "_"
	}

	switch kind {
	case ast.StepIf:
		for p.atKeyword("then") || p.atKeyword("else") {
			label := p.cur().Literal
			p.advance()
			step.Branches = append(step.Branches, ast.Branch{Label: label, Steps: p.parseStepList(p.cur())})
		}
		p.expectEnd(startTok)
	case ast.StepMatch:
		for p.atKeyword("case") {
			p.advance()
			caseAttrs := p.parseAttrs()
			label := attrString(caseAttrs, "variant")
			if label == "" {
				label = attrString(caseAttrs, "wildcard")
				if label == "" {
					label = "_"
				}
			}
			step.Branches = append(step.Branches, ast.Branch{Label: label, Steps: p.parseStepList(p.cur())})
		}
		p.expectEnd(startTok)
	case ast.StepFor:
		step.Branches = append(step.Branches, ast.Branch{Label: "body", Steps: p.parseStepList(p.cur())})
	case ast.StepParallel, ast.StepRace:
		for p.atKeyword("branch") {
			p.advance()
			battrs := p.parseAttrs()
			br := ast.Branch{
				Label:     attrString(battrs, "name"),
				Timeout:   attrString(battrs, "timeout"),
				OnTimeout: attrString(battrs, "on_timeout"),
				OnError:   attrString(battrs, "on_error"),
			}
			br.Steps = p.parseStepList(p.cur())
			step.Branches = append(step.Branches, br)
		}
		p.expectEnd(startTok)
	case ast.StepTransaction:
		step.Branches = append(step.Branches, ast.Branch{Label: "body", Steps: p.parseStepList(p.cur())})
	default:
		p.expectEnd(startTok)
	}
	step.Span = p.spanFrom(startTok)
	return step
}

// parseStepAttrsAndValues reads the flat attribute run of a step. Unlike
// parseAttrs, it preserves every occurrence of each attribute name
// (returned as a []*ast.Literal per name) since a single compute/call
// step legitimately repeats "var=" once per operand — e.g.
// `compute op="add" var=a var=b as="sum" end`. Recognised value-source
// attributes (var/from/lit/field+of) are additionally assembled, in
// source order, into Values.
func (p *Parser) parseStepAttrsAndValues() (map[string][]*ast.Literal, []ast.Value) {
	all := map[string][]*ast.Literal{}
	var values []ast.Value
	var pendingField *ast.Literal
	flushField := func() {
		if pendingField != nil {
			values = append(values, ast.Value{Span: pendingField.Span, IsField: true, Field: pendingField.Str})
			pendingField = nil
		}
	}
	for {
		t := p.cur()
		if t.Kind != token.Ident || p.peekKind() != token.Equals {
			break
		}
		name := t.Literal
		p.advance()
		p.advance() // '='
		lit := p.parseLiteralOrRef()
		all[name] = append(all[name], lit)

		switch name {
		case "var", "from":
			flushField()
			values = append(values, ast.Value{Span: lit.Span, IsVar: true, VarName: lit.Str})
		case "lit":
			flushField()
			values = append(values, ast.Value{Span: lit.Span, Lit: lit})
		case "field":
			flushField()
			pendingField = lit
		case "of":
			if pendingField != nil {
				values = append(values, ast.Value{Span: pendingField.Span, IsField: true, Field: pendingField.Str, FieldOf: lit.Str})
				pendingField = nil
			}
		}
	}
	flushField()
	return all, values
}

func attrFirst(attrs map[string][]*ast.Literal, name string) (*ast.Literal, bool) {
	vs, ok := attrs[name]
	if !ok || len(vs) == 0 {
		return nil, false
	}
	return vs[0], true
}

func toStringAttrs(attrs map[string][]*ast.Literal) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, vs := range attrs {
		if len(vs) == 0 {
			continue
		}
		v := vs[0]
		switch v.Kind {
		case ast.LitString:
			out[k] = v.Str
		case ast.LitInt:
			out[k] = fmt.Sprintf("%d", v.Int)
		case ast.LitFloat:
			out[k] = fmt.Sprintf("%g", v.Float)
		case ast.LitBool:
			out[k] = fmt.Sprintf("%v", v.Bool)
		}
	}
	return out
}

// ValidID reports whether id matches the dotted identifier grammar
// required of snippet ids (spec.md §4.2).
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

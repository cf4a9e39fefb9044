package eval

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/slicelab/jagged/slice"
)

// Parse turns a textual expression into an expression graph. The grammar
// covers operator calls by canonical or alias name with keyword arguments,
// infix + - * arithmetic, attribute access, named inputs, and literals:
//
//	agg_min(x, ndim=2)
//	math.add(docs.score, 1) * 2
//	select_keys(d, [present, None])
//
// Bare identifiers are free inputs bound at evaluation time.
func Parse(src string) (*Expr, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.next(); err != nil {
		return nil, err
	}
	e, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.tok.text, p.tok.pos)
	}
	return e, nil
}

// ----------------------------------------------------------------------------
// Lexer
// ----------------------------------------------------------------------------

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

func (l *lexer) lex() (token, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	ch := l.src[l.pos]

	switch {
	case ch == '_' || unicode.IsLetter(rune(ch)):
		for l.pos < len(l.src) && (l.src[l.pos] == '_' || isAlnum(l.src[l.pos])) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil

	case ch >= '0' && ch <= '9':
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.' ||
			l.src[l.pos] == 'e' || l.src[l.pos] == 'E' ||
			((l.src[l.pos] == '+' || l.src[l.pos] == '-') && (l.src[l.pos-1] == 'e' || l.src[l.pos-1] == 'E'))) {
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil

	case ch == '\'' || ch == '"':
		quote := ch
		l.pos++
		var b strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			c := l.src[l.pos]
			if c == '\\' && l.pos+1 < len(l.src) {
				l.pos++
				switch l.src[l.pos] {
				case 'n':
					c = '\n'
				case 't':
					c = '\t'
				default:
					c = l.src[l.pos]
				}
			}
			b.WriteByte(c)
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("unterminated string at offset %d", start)
		}
		l.pos++ // closing quote
		return token{kind: tokString, text: b.String(), pos: start}, nil

	case strings.IndexByte("+-*()[],=.", ch) >= 0:
		l.pos++
		return token{kind: tokPunct, text: string(ch), pos: start}, nil

	default:
		return token{}, fmt.Errorf("unexpected character %q at offset %d", ch, start)
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ----------------------------------------------------------------------------
// Parser
// ----------------------------------------------------------------------------

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) next() error {
	t, err := p.lex.lex()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) accept(punct string) (bool, error) {
	if p.tok.kind == tokPunct && p.tok.text == punct {
		return true, p.next()
	}
	return false, nil
}

func (p *parser) expect(punct string) error {
	ok, err := p.accept(punct)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("expected %q at offset %d, got %q", punct, p.tok.pos, p.tok.text)
	}
	return nil
}

// sum := product (('+'|'-') product)*
func (p *parser) parseSum() (*Expr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.tok.kind == tokPunct && p.tok.text == "+":
			if err := p.next(); err != nil {
				return nil, err
			}
			right, err := p.parseProduct()
			if err != nil {
				return nil, err
			}
			left = Call("math.add", left, right)
		case p.tok.kind == tokPunct && p.tok.text == "-":
			if err := p.next(); err != nil {
				return nil, err
			}
			right, err := p.parseProduct()
			if err != nil {
				return nil, err
			}
			left = Call("math.subtract", left, right)
		default:
			return left, nil
		}
	}
}

// product := unary ('*' unary)*
func (p *parser) parseProduct() (*Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokPunct && p.tok.text == "*" {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Call("math.multiply", left, right)
	}
	return left, nil
}

func (p *parser) parseUnary() (*Expr, error) {
	if p.tok.kind == tokPunct && p.tok.text == "-" {
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Call("math.subtract", Lit(0), operand), nil
	}
	return p.parsePostfixed()
}

// parsePostfixed parses an atom followed by .attr accesses.
func (p *parser) parsePostfixed() (*Expr, error) {
	e, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokPunct && p.tok.text == "." {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIdent {
			return nil, fmt.Errorf("expected attribute name at offset %d", p.tok.pos)
		}
		attr := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		e = Call("core.get_attr", e, Lit(attr))
	}
	return e, nil
}

func (p *parser) parseAtom() (*Expr, error) {
	switch p.tok.kind {
	case tokNumber:
		text := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		if strings.ContainsAny(text, ".eE") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", text)
			}
			return Lit(f), nil
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", text)
		}
		if i >= -1<<31 && i < 1<<31 {
			return Lit(int(i)), nil
		}
		return Lit(i), nil

	case tokString:
		text := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		return Lit(text), nil

	case tokIdent:
		return p.parseNameOrCall()

	case tokPunct:
		switch p.tok.text {
		case "(":
			if err := p.next(); err != nil {
				return nil, err
			}
			e, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			v, err := p.parseListLiteral()
			if err != nil {
				return nil, err
			}
			ds, err := slice.FromVals(v)
			if err != nil {
				return nil, err
			}
			return Literal(ds), nil
		}
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", p.tok.text, p.tok.pos)
}

// parseNameOrCall handles a dotted identifier chain: a chain followed by "("
// is an operator call, otherwise the head is a free input and the remaining
// segments are attribute accesses.
func (p *parser) parseNameOrCall() (*Expr, error) {
	segments := []string{p.tok.text}
	if err := p.next(); err != nil {
		return nil, err
	}
	for p.tok.kind == tokPunct && p.tok.text == "." {
		save := *p.lex
		saveTok := p.tok
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIdent {
			// Not part of the name; restore and leave the dot to the
			// postfix loop.
			*p.lex = save
			p.tok = saveTok
			break
		}
		segments = append(segments, p.tok.text)
		if err := p.next(); err != nil {
			return nil, err
		}
	}

	if p.tok.kind == tokPunct && p.tok.text == "(" {
		// Unknown names still parse as calls so evaluation can report the
		// unknown operator.
		return p.parseCallArgs(strings.Join(segments, "."))
	}

	if segments[0] == "None" {
		e := absentItem()
		return p.attrChain(e, segments[1:]), nil
	}
	e := Input(segments[0])
	return p.attrChain(e, segments[1:]), nil
}

func (p *parser) attrChain(e *Expr, attrs []string) *Expr {
	for _, attr := range attrs {
		e = Call("core.get_attr", e, Lit(attr))
	}
	return e
}

func (p *parser) parseCallArgs(name string) (*Expr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	call := Call(name)
	done, err := p.accept(")")
	if err != nil {
		return nil, err
	}
	for !done {
		// Keyword argument: ident '=' expr.
		if p.tok.kind == tokIdent {
			save := *p.lex
			saveTok := p.tok
			kwName := p.tok.text
			if err := p.next(); err != nil {
				return nil, err
			}
			if ok, err := p.accept("="); err != nil {
				return nil, err
			} else if ok {
				v, err := p.parseSum()
				if err != nil {
					return nil, err
				}
				call = call.Kw(kwName, v)
				done, err = p.closeArg()
				if err != nil {
					return nil, err
				}
				continue
			}
			*p.lex = save
			p.tok = saveTok
		}
		a, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, a)
		done, err = p.closeArg()
		if err != nil {
			return nil, err
		}
	}
	return call, nil
}

// closeArg consumes "," or ")" after an argument.
func (p *parser) closeArg() (done bool, err error) {
	if ok, err := p.accept(","); err != nil || ok {
		return false, err
	}
	if err := p.expect(")"); err != nil {
		return false, err
	}
	return true, nil
}

// parseListLiteral parses a nested bracket literal of plain values.
func (p *parser) parseListLiteral() (any, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}
	out := []any{}
	if ok, err := p.accept("]"); err != nil {
		return nil, err
	} else if ok {
		return out, nil
	}
	for {
		v, err := p.parseLiteralValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if ok, err := p.accept(","); err != nil {
			return nil, err
		} else if ok {
			continue
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (p *parser) parseLiteralValue() (any, error) {
	switch {
	case p.tok.kind == tokNumber:
		text := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		if strings.ContainsAny(text, ".eE") {
			return strconv.ParseFloat(text, 64)
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, err
		}
		if i >= -1<<31 && i < 1<<31 {
			return int(i), nil
		}
		return i, nil
	case p.tok.kind == tokString:
		text := p.tok.text
		return text, p.next()
	case p.tok.kind == tokIdent && p.tok.text == "None":
		return nil, p.next()
	case p.tok.kind == tokIdent && p.tok.text == "present":
		return slice.Present(), p.next()
	case p.tok.kind == tokPunct && p.tok.text == "[":
		return p.parseListLiteral()
	default:
		return nil, fmt.Errorf("lists may only contain literals, got %q at offset %d", p.tok.text, p.tok.pos)
	}
}

func absentItem() *Expr {
	ds, err := slice.Item(slice.Absent(), nil)
	if err != nil {
		panic(err)
	}
	return Literal(ds)
}

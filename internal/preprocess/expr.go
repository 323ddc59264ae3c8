package preprocess

import (
	"fmt"
	"strings"
	"unicode"
)

// Evaluate reports whether the @if expression holds in ctx.
//
// The grammar covers what build files use in practice:
//
//	expr    = or
//	or      = and { "||" and }
//	and     = unary { "&&" unary }
//	unary   = "!" unary | compare
//	compare = operand [ ("==" | "===" | "=" | "!=" | "!==") operand ]
//	operand = identifier | 'string' | "string" | "(" expr ")"
//
// Identifiers evaluate to their context value ("" when unset); a value is
// true when it is non-empty. A single "=" is accepted as equality.
func Evaluate(expr string, ctx Context) (bool, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return false, err
	}
	if len(tokens) == 0 {
		return false, fmt.Errorf("empty @if expression")
	}

	p := &parser{tokens: tokens, ctx: ctx}
	v, err := p.or()
	if err != nil {
		return false, err
	}
	if p.pos < len(p.tokens) {
		return false, fmt.Errorf("unexpected %q in @if expression", p.tokens[p.pos].text)
	}
	return truthy(v), nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '\'' || r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != r {
				end++
			}
			if end >= len(runes) {
				return nil, fmt.Errorf("unterminated string in @if expression")
			}
			tokens = append(tokens, token{kind: tokString, text: string(runes[i+1 : end])})
			i = end + 1

		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			end := i
			for end < len(runes) && (runes[end] == '_' || runes[end] == '.' || runes[end] == '-' ||
				unicode.IsLetter(runes[end]) || unicode.IsDigit(runes[end])) {
				end++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[i:end])})
			i = end

		default:
			op := matchOperator(string(runes[i:]))
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q in @if expression", r)
			}
			tokens = append(tokens, token{kind: tokOp, text: op})
			i += len([]rune(op))
		}
	}

	return tokens, nil
}

var operators = []string{"===", "!==", "==", "!=", "&&", "||", "=", "!", "(", ")"}

func matchOperator(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

type parser struct {
	tokens []token
	pos    int
	ctx    Context
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t, ok := p.peek()
	if !ok || t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) or() (string, error) {
	left, err := p.and()
	if err != nil {
		return "", err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.and()
		if err != nil {
			return "", err
		}
		left = boolValue(truthy(left) || truthy(right))
	}
}

func (p *parser) and() (string, error) {
	left, err := p.unary()
	if err != nil {
		return "", err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return "", err
		}
		left = boolValue(truthy(left) && truthy(right))
	}
}

func (p *parser) unary() (string, error) {
	if _, ok := p.acceptOp("!"); ok {
		v, err := p.unary()
		if err != nil {
			return "", err
		}
		return boolValue(!truthy(v)), nil
	}
	return p.compare()
}

func (p *parser) compare() (string, error) {
	left, err := p.operand()
	if err != nil {
		return "", err
	}
	op, ok := p.acceptOp("===", "!==", "==", "!=", "=")
	if !ok {
		return left, nil
	}
	right, err := p.operand()
	if err != nil {
		return "", err
	}
	switch op {
	case "!=", "!==":
		return boolValue(left != right), nil
	default:
		return boolValue(left == right), nil
	}
}

func (p *parser) operand() (string, error) {
	t, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("unexpected end of @if expression")
	}

	switch t.kind {
	case tokString:
		p.pos++
		return t.text, nil
	case tokIdent:
		p.pos++
		switch t.text {
		case "true":
			return "true", nil
		case "false":
			return "", nil
		}
		if unicode.IsDigit([]rune(t.text)[0]) {
			return t.text, nil
		}
		return p.ctx[t.text], nil
	}

	if _, ok := p.acceptOp("("); ok {
		v, err := p.or()
		if err != nil {
			return "", err
		}
		if _, ok := p.acceptOp(")"); !ok {
			return "", fmt.Errorf("missing ) in @if expression")
		}
		return v, nil
	}

	return "", fmt.Errorf("unexpected %q in @if expression", t.text)
}

func truthy(v string) bool {
	return v != ""
}

func boolValue(b bool) string {
	if b {
		return "true"
	}
	return ""
}

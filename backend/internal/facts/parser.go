package facts

import (
	"fmt"
	"strings"
	"unicode"
)

// term is one argument of a fact: either a scalar or a flat list of scalars
type term struct {
	value  string
	list   []string
	isList bool
}

// statement is a parsed fact line, e.g. note(mgf, 'files/mgf.pdf').
type statement struct {
	functor string
	args    []term
}

// lineKind classifies a raw source line
type lineKind int

const (
	lineIgnored lineKind = iota
	lineFact
	lineMalformed
)

// parseLine parses one line of the fact source. Lines that are blank,
// comments, directives, rules or facts of an unknown functor are ignored;
// known functors that fail to parse are malformed.
func parseLine(raw string, known map[string]bool) (statement, lineKind, error) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, ":-") {
		return statement{}, lineIgnored, nil
	}

	p := &lineParser{src: []rune(line)}
	functor := p.identifier()
	if functor == "" || !known[functor] {
		return statement{}, lineIgnored, nil
	}
	if !p.consume('(') {
		// A bare atom such as "note." or a rule head without arguments.
		return statement{}, lineIgnored, nil
	}

	args, err := p.arguments()
	if err != nil {
		return statement{}, lineMalformed, err
	}

	p.skipSpace()
	rest := strings.TrimSpace(string(p.src[p.pos:]))
	switch {
	case strings.HasPrefix(rest, ":-"):
		return statement{}, lineIgnored, nil
	case rest == "", rest == ".", strings.HasPrefix(rest, "%"):
	case strings.HasPrefix(rest, "."):
		tail := strings.TrimSpace(rest[1:])
		if tail != "" && !strings.HasPrefix(tail, "%") {
			return statement{}, lineMalformed, fmt.Errorf("unexpected text after statement: %q", tail)
		}
	default:
		return statement{}, lineMalformed, fmt.Errorf("unexpected text after statement: %q", rest)
	}

	return statement{functor: functor, args: args}, lineFact, nil
}

type lineParser struct {
	src []rune
	pos int
}

func (p *lineParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *lineParser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *lineParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *lineParser) consume(r rune) bool {
	p.skipSpace()
	if p.peek() == r {
		p.pos++
		return true
	}
	return false
}

func (p *lineParser) identifier() string {
	start := p.pos
	for !p.eof() {
		r := p.src[p.pos]
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		p.pos++
	}
	return string(p.src[start:p.pos])
}

// arguments parses a comma separated argument list up to and including ')'
func (p *lineParser) arguments() ([]term, error) {
	var args []term
	if p.consume(')') {
		return args, nil
	}
	for {
		arg, err := p.term()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.consume(',') {
			continue
		}
		if p.consume(')') {
			return args, nil
		}
		if p.eof() {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return nil, fmt.Errorf("unexpected %q at column %d", p.peek(), p.pos+1)
	}
}

func (p *lineParser) term() (term, error) {
	p.skipSpace()
	if p.peek() != '[' {
		v, err := p.scalar()
		return term{value: v}, err
	}
	p.pos++

	t := term{isList: true, list: []string{}}
	if p.consume(']') {
		return t, nil
	}
	for {
		p.skipSpace()
		if p.peek() == '[' {
			return term{}, fmt.Errorf("nested lists are not supported")
		}
		v, err := p.scalar()
		if err != nil {
			return term{}, err
		}
		t.list = append(t.list, v)
		if p.consume(',') {
			continue
		}
		if p.consume(']') {
			return t, nil
		}
		return term{}, fmt.Errorf("unterminated list")
	}
}

// scalar parses a quoted string or a bare token (atom or number)
func (p *lineParser) scalar() (string, error) {
	p.skipSpace()
	switch q := p.peek(); q {
	case '\'', '"':
		return p.quoted(q)
	case 0:
		return "", fmt.Errorf("unexpected end of line")
	}

	start := p.pos
	for !p.eof() {
		r := p.src[p.pos]
		if unicode.IsSpace(r) || strings.ContainsRune("(),[]'\"%", r) {
			break
		}
		p.pos++
	}
	if start == p.pos {
		return "", fmt.Errorf("expected a value at column %d", p.pos+1)
	}
	return string(p.src[start:p.pos]), nil
}

func (p *lineParser) quoted(q rune) (string, error) {
	p.pos++
	var b strings.Builder
	for !p.eof() {
		r := p.src[p.pos]
		p.pos++
		switch {
		case r == '\\' && !p.eof():
			next := p.src[p.pos]
			p.pos++
			switch next {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(next)
			}
		case r == q:
			// Prolog escapes a quote inside a quoted atom by doubling it.
			if p.peek() == q {
				p.pos++
				b.WriteRune(q)
				continue
			}
			return b.String(), nil
		default:
			b.WriteRune(r)
		}
	}
	return "", fmt.Errorf("unterminated quoted string")
}

// quoteAtom renders s so that parseLine reads it back unchanged
func quoteAtom(s string) string {
	if isBareAtom(s) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\t", `\t`)
	return "'" + r.Replace(s) + "'"
}

func isBareAtom(s string) bool {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for _, r := range s {
		if r != '_' && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

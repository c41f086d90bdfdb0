package mirfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/715d/ptafilter/pkg/mir"
)

// ParsePlace parses the textual form of a place: _1, *_1, (*_1).0, _1[_2],
// _1[3], _1[..] or (_1 as variant#2).
func ParsePlace(s string) (mir.Place, error) {
	p := &placeParser{s: strings.TrimSpace(s)}
	place, err := p.expr()
	if err != nil {
		return mir.Place{}, fmt.Errorf("place %q: %w", s, err)
	}
	if p.pos != len(p.s) {
		return mir.Place{}, fmt.Errorf("place %q: trailing %q", s, p.s[p.pos:])
	}
	return place, nil
}

type placeParser struct {
	s   string
	pos int
}

func (p *placeParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *placeParser) eat(prefix string) bool {
	if strings.HasPrefix(p.s[p.pos:], prefix) {
		p.pos += len(prefix)
		return true
	}
	return false
}

func (p *placeParser) number() (int, error) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at offset %d", start)
	}
	return strconv.Atoi(p.s[start:p.pos])
}

func (p *placeParser) local() (mir.Local, error) {
	if !p.eat("_") {
		return 0, fmt.Errorf("expected local at offset %d", p.pos)
	}
	n, err := p.number()
	if err != nil {
		return 0, err
	}
	return mir.Local(n), nil
}

func (p *placeParser) expr() (mir.Place, error) {
	if p.eat("*") {
		inner, err := p.expr()
		if err != nil {
			return mir.Place{}, err
		}
		return inner.Deref(), nil
	}
	return p.postfix()
}

func (p *placeParser) postfix() (mir.Place, error) {
	var place mir.Place
	switch p.peek() {
	case '(':
		p.pos++
		inner, err := p.expr()
		if err != nil {
			return mir.Place{}, err
		}
		if p.eat(" as variant#") {
			v, err := p.number()
			if err != nil {
				return mir.Place{}, err
			}
			inner = inner.Project(mir.ProjectionElem{Kind: mir.ProjDowncast, Field: v})
		}
		if !p.eat(")") {
			return mir.Place{}, fmt.Errorf("expected ) at offset %d", p.pos)
		}
		place = inner
	default:
		l, err := p.local()
		if err != nil {
			return mir.Place{}, err
		}
		place = mir.LocalPlace(l)
	}

	for {
		switch {
		case p.eat("."):
			n, err := p.number()
			if err != nil {
				return mir.Place{}, err
			}
			place = place.Field(n)
		case p.eat("[..]"):
			place = place.Project(mir.ProjectionElem{Kind: mir.ProjSubslice})
		case p.eat("["):
			if p.peek() == '_' {
				idx, err := p.local()
				if err != nil {
					return mir.Place{}, err
				}
				place = place.Index(idx)
			} else {
				n, err := p.number()
				if err != nil {
					return mir.Place{}, err
				}
				place = place.Project(mir.ProjectionElem{Kind: mir.ProjConstantIndex, Field: n})
			}
			if !p.eat("]") {
				return mir.Place{}, fmt.Errorf("expected ] at offset %d", p.pos)
			}
		default:
			return place, nil
		}
	}
}

// ParseOperand parses copy P, move P, const V, const V: T or fn ID<T, ...>.
func ParseOperand(s string) (mir.Operand, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "copy "):
		p, err := ParsePlace(s[len("copy "):])
		return mir.Copy(p), err
	case strings.HasPrefix(s, "move "):
		p, err := ParsePlace(s[len("move "):])
		return mir.Move(p), err
	case strings.HasPrefix(s, "fn "):
		return parseFn(strings.TrimSpace(s[len("fn "):]))
	case strings.HasPrefix(s, "const "):
		body := s[len("const "):]
		c := &mir.Constant{Value: body}
		if i := strings.LastIndex(body, ": "); i >= 0 {
			c.Value = body[:i]
			c.Ty = mir.ParseType(body[i+2:])
		}
		return mir.Const(c), nil
	}
	return mir.Operand{}, fmt.Errorf("operand %q: want copy, move, const or fn", s)
}

func parseFn(s string) (mir.Operand, error) {
	if s == "" {
		return mir.Operand{}, fmt.Errorf("fn operand: missing function id")
	}
	if !strings.HasSuffix(s, ">") {
		return mir.FnOperand(mir.FuncID(s)), nil
	}
	open := strings.Index(s, "<")
	if open <= 0 {
		return mir.Operand{}, fmt.Errorf("fn operand %q: unbalanced type arguments", s)
	}
	args, err := splitTypeArgs(s[open+1 : len(s)-1])
	if err != nil {
		return mir.Operand{}, fmt.Errorf("fn operand %q: %w", s, err)
	}
	return mir.FnOperand(mir.FuncID(s[:open]), args...), nil
}

// splitTypeArgs splits a comma separated list at nesting depth zero.
func splitTypeArgs(s string) ([]mir.Type, error) {
	var out []mir.Type
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced %q at offset %d", s[i], i)
			}
		case ',':
			if depth == 0 {
				out = append(out, mir.ParseType(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced type arguments")
	}
	if strings.TrimSpace(s[start:]) != "" {
		out = append(out, mir.ParseType(s[start:]))
	}
	return out, nil
}

// ParseSafety parses safe, unsafe or inherit. Empty means inherit.
func ParseSafety(s string) (mir.Safety, error) {
	switch s {
	case "", "inherit":
		return mir.SafetyInherit, nil
	case "safe":
		return mir.SafetySafe, nil
	case "unsafe":
		return mir.SafetyUnsafe, nil
	}
	return 0, fmt.Errorf("unknown safety %q", s)
}

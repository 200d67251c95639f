package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// parseLiteral parses a structured literal the way permissive generators tend
// to write one: single- or double-quoted strings, bare true/false/null and
// their Python-style spellings, trailing commas inside containers. Numbers
// come back as float64, objects as map[string]any, arrays as []any.
// Trailing non-whitespace after the value is an error; the caller's later
// strategies deal with surrounding prose.
func parseLiteral(text string) (any, error) {
	p := &literalParser{src: text}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("trailing content at offset %d", p.pos)
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *literalParser) value() (any, error) {
	c, ok := p.peek()
	if !ok {
		return nil, errors.New("unexpected end of input")
	}
	switch {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '\'' || c == '"':
		return p.stringLit()
	case c == '-' || c == '+' || (c >= '0' && c <= '9') || c == '.':
		return p.number()
	default:
		return p.keyword()
	}
}

func (p *literalParser) object() (map[string]any, error) {
	p.pos++ // '{'
	obj := make(map[string]any)
	for {
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, errors.New("unterminated object")
		}
		if c == '}' {
			p.pos++
			return obj, nil
		}
		if c != '\'' && c != '"' {
			return nil, fmt.Errorf("object key must be a string at offset %d", p.pos)
		}
		key, err := p.stringLit()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if c, ok = p.peek(); !ok || c != ':' {
			return nil, fmt.Errorf("expected ':' at offset %d", p.pos)
		}
		p.pos++
		p.skipSpace()
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		obj[key] = val
		p.skipSpace()
		c, ok = p.peek()
		if !ok {
			return nil, errors.New("unterminated object")
		}
		switch c {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos)
		}
	}
}

func (p *literalParser) array() ([]any, error) {
	p.pos++ // '['
	arr := []any{}
	for {
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, errors.New("unterminated array")
		}
		if c == ']' {
			p.pos++
			return arr, nil
		}
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
		p.skipSpace()
		c, ok = p.peek()
		if !ok {
			return nil, errors.New("unterminated array")
		}
		switch c {
		case ',':
			p.pos++
		case ']':
		default:
			return nil, fmt.Errorf("expected ',' or ']' at offset %d", p.pos)
		}
	}
}

func (p *literalParser) stringLit() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case quote:
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return "", errors.New("unterminated escape")
			}
			e := p.src[p.pos]
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'u':
				if p.pos+4 >= len(p.src) {
					return "", errors.New("truncated unicode escape")
				}
				n, err := strconv.ParseUint(p.src[p.pos+1:p.pos+5], 16, 32)
				if err != nil {
					return "", fmt.Errorf("bad unicode escape: %w", err)
				}
				sb.WriteRune(decodeUTF16(rune(n)))
				p.pos += 4
			default:
				// Unknown escape: keep the character, generators are sloppy.
				sb.WriteByte(e)
			}
			p.pos++
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", errors.New("unterminated string")
}

func decodeUTF16(r rune) rune {
	if utf16.IsSurrogate(r) {
		return '�'
	}
	return r
}

func (p *literalParser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", p.src[start:p.pos])
	}
	return f, nil
}

func (p *literalParser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	switch p.src[start:p.pos] {
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	case "null", "None", "nil":
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected token at offset %d", start)
}

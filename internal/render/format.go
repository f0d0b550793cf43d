package render

import (
	"fmt"
	"strings"

	"github.com/mrz1836/rackbrain/internal/errors"
)

// Format substitutes {name} placeholders in tmpl with values from ctx.
// "{{" and "}}" produce literal braces. A conversion or format spec after
// the name ("{name!r}", "{name:>8}") is accepted and ignored.
//
// An unknown name returns an error wrapping ErrTemplateKeyMissing; an
// unbalanced brace or an empty name returns an error wrapping
// ErrTemplateMalformed.
func Format(tmpl string, ctx map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: single '{' encountered", errors.ErrTemplateMalformed)
			}
			field := tmpl[i+1 : i+1+end]
			name := fieldName(field)
			if name == "" {
				return "", fmt.Errorf("%w: empty placeholder", errors.ErrTemplateMalformed)
			}
			v, ok := ctx[name]
			if !ok {
				return "", fmt.Errorf("%w: '%s'", errors.ErrTemplateKeyMissing, name)
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' encountered", errors.ErrTemplateMalformed)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func fieldName(field string) string {
	if i := strings.IndexAny(field, "!:"); i >= 0 {
		field = field[:i]
	}
	return field
}

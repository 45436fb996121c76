package sitepath

import (
	"strings"
)

// TemplateVars holds the values placeholders expand to.
type TemplateVars struct {
	Parent         string
	Basename       string
	Lang           string
	Ext            string // without leading dot
	Version        string
	DefaultVersion string
}

// Vars returns the template variables for p.
func (p *Path) Vars() TemplateVars {
	return TemplateVars{
		Parent:         p.parentPath,
		Basename:       p.basename,
		Lang:           p.lang,
		Ext:            p.ext,
		Version:        p.version,
		DefaultVersion: p.defaultVersion,
	}
}

// ResolveTemplate expands tmpl with the fields of p.
func ResolveTemplate(tmpl string, p *Path) (string, error) {
	return ResolveTemplateVars(tmpl, p.Vars())
}

// ResolveTemplateVars expands the placeholders <parent>, <basename>, <lang>,
// <ext> and <version>. A parenthesized group is emitted only when every
// placeholder inside it has a value; <version> counts as empty inside a group
// when it equals the default version. Outside groups <lang> must be set.
func ResolveTemplateVars(tmpl string, vars TemplateVars) (string, error) {
	e := expander{tmpl: tmpl, vars: vars}
	out, _, err := e.sequence(0)
	if err != nil {
		return "", err
	}
	if e.pos < len(tmpl) {
		return "", &TemplateError{Template: tmpl, Reason: "unbalanced ')'"}
	}
	return out, nil
}

type expander struct {
	tmpl string
	vars TemplateVars
	pos  int
}

// sequence expands until end of input or a closing parenthesis at depth > 0.
// complete reports whether every placeholder in the sequence had a value.
func (e *expander) sequence(depth int) (out string, complete bool, err error) {
	var b strings.Builder
	complete = true
	for e.pos < len(e.tmpl) {
		c := e.tmpl[e.pos]
		switch c {
		case '(':
			e.pos++
			inner, ok, err := e.sequence(depth + 1)
			if err != nil {
				return "", false, err
			}
			if e.pos >= len(e.tmpl) || e.tmpl[e.pos] != ')' {
				return "", false, &TemplateError{Template: e.tmpl, Reason: "unbalanced '('"}
			}
			e.pos++
			if ok {
				b.WriteString(inner)
			}
		case ')':
			if depth == 0 {
				return "", false, &TemplateError{Template: e.tmpl, Reason: "unbalanced ')'"}
			}
			return b.String(), complete, nil
		case '<':
			end := strings.IndexByte(e.tmpl[e.pos:], '>')
			if end < 0 {
				return "", false, &TemplateError{Template: e.tmpl, Reason: "unterminated placeholder"}
			}
			name := e.tmpl[e.pos+1 : e.pos+end]
			e.pos += end + 1
			value, ok, err := e.placeholder(name, depth > 0)
			if err != nil {
				return "", false, err
			}
			if !ok {
				complete = false
			}
			b.WriteString(value)
		default:
			b.WriteByte(c)
			e.pos++
		}
	}
	return b.String(), complete, nil
}

func (e *expander) placeholder(name string, inGroup bool) (string, bool, error) {
	v := e.vars
	switch name {
	case "parent":
		return v.Parent, v.Parent != "", nil
	case "basename":
		return v.Basename, v.Basename != "", nil
	case "ext":
		if v.Ext == "" {
			return "", false, nil
		}
		return "." + v.Ext, true, nil
	case "lang":
		if v.Lang == "" && !inGroup {
			return "", false, &TemplateError{Template: e.tmpl, Placeholder: name, Reason: "has no value"}
		}
		return v.Lang, v.Lang != "", nil
	case "version":
		if inGroup {
			hidden := v.Version == "" || v.Version == v.DefaultVersion
			return v.Version, !hidden, nil
		}
		if v.Version == "" {
			return "", false, &TemplateError{Template: e.tmpl, Placeholder: name, Reason: "has no value"}
		}
		return v.Version, true, nil
	default:
		return "", false, &TemplateError{Template: e.tmpl, Placeholder: name, Reason: "is unknown"}
	}
}

package sitepath

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// localName computes the CN. Callers hold p.mu or own p exclusively.
func (p *Path) localName() (string, error) {
	switch {
	case p.raw == "/" || p.basename == "/":
		return "/", nil
	case p.fragment:
		return p.basename, nil
	case p.IsDirectory():
		if p.ext != "" {
			return p.basename + "." + p.ext + "/", nil
		}
		return p.basename + "/", nil
	}

	tmpl := defaultCNTemplate
	if custom, ok := p.meta[MetaCN].(string); ok && custom != "" {
		tmpl = custom
	}
	return ResolveTemplateVars(tmpl, p.Vars())
}

// Derive returns the canonical identities of p. It is memoized until the next
// naming-related Set.
func (p *Path) Derive() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identity != nil {
		return *p.identity
	}

	cn, err := p.localName()
	if err != nil {
		// Parse and Set reject templates that fail, so this only guards
		// against an unexpected state.
		cn, _ = ResolveTemplateVars(defaultCNTemplate, TemplateVars{Basename: p.basename, Ext: p.ext})
	}
	lcn := localize(cn, p.lang)

	id := Identity{CN: cn, LCN: lcn, ACN: cn, ALCN: lcn}
	if p.parentPath != "" {
		parent, err := Parse(p.parentPath, nil, WithDefaultVersion(p.defaultVersion))
		if err == nil {
			pid := parent.Derive()
			id.ACN = pid.ACN + cn
			id.ALCN = pid.ALCN + lcn
		} else {
			id.ACN = p.parentPath + cn
			id.ALCN = p.parentPath + lcn
		}
	}
	p.identity = &id
	return id
}

func (p *Path) CN() string   { return p.Derive().CN }
func (p *Path) LCN() string  { return p.Derive().LCN }
func (p *Path) ACN() string  { return p.Derive().ACN }
func (p *Path) ALCN() string { return p.Derive().ALCN }

// localize inserts ".lang" before the first dot that is not a leading one.
func localize(cn, lang string) string {
	if lang == "" {
		return cn
	}
	if idx := strings.IndexByte(cn[min(1, len(cn)):], '.'); idx >= 0 {
		idx += min(1, len(cn))
		return cn[:idx] + "." + lang + cn[idx:]
	}
	return cn + "." + lang
}

// Title returns meta["title"] or a readable form of the basename.
func (p *Path) Title() string {
	if t := p.GetString(MetaTitle); t != "" {
		return t
	}
	return Humanize(p.basename)
}

// Humanize turns a basename into a title: "_" and "-" separate words, as do
// lower to upper case transitions, and every word is capitalized. Names that
// start with "." or "#" and the root are returned unchanged.
func Humanize(name string) string {
	if name == "" || name == "/" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "#") {
		return name
	}

	var words []string
	var cur []rune
	var prev rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '-':
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()

	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + w[size:]
	}
	return strings.Join(words, " ")
}

// CNErr returns the CN or the template error that prevented computing it.
// Derive falls back to the template-free name in that case.
func (p *Path) CNErr() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.localName()
}

// ALCNErr returns the ALCN or the template error behind a fallback name.
func (p *Path) ALCNErr() (string, error) {
	if _, err := p.CNErr(); err != nil {
		return "", err
	}
	return p.ALCN(), nil
}

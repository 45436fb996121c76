package sitepath

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

func (p *Path) analyse() error {
	raw := p.raw
	if !strings.HasPrefix(raw, "/") {
		return &FormatError{Raw: raw, Reason: "path must be absolute"}
	}

	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		return p.analyseFragment(idx)
	}

	if raw == "/" {
		p.parentPath = ""
		p.basename = "/"
		return nil
	}

	if strings.HasSuffix(raw, "/") {
		trimmed := strings.TrimSuffix(raw, "/")
		slash := strings.LastIndexByte(trimmed, '/')
		p.parentPath = trimmed[:slash+1]
		p.basename = trimmed[slash+1:]
		if p.basename == "" {
			return &FormatError{Raw: raw, Reason: "empty directory name"}
		}
		return nil
	}

	slash := strings.LastIndexByte(raw, '/')
	p.parentPath = raw[:slash+1]
	p.analyseFileName(raw[slash+1:])
	return nil
}

func (p *Path) analyseFragment(idx int) error {
	raw := p.raw
	if strings.Count(raw, "#") > 1 {
		return &FormatError{Raw: raw, Reason: "only one fragment delimiter allowed"}
	}
	owner, frag := raw[:idx], raw[idx:]
	if frag == "#" {
		return &FormatError{Raw: raw, Reason: "fragment has no name"}
	}
	if owner == "/" || strings.HasSuffix(owner, "/") {
		return &FormatError{Raw: raw, Reason: "fragment needs a file before the delimiter"}
	}
	p.fragment = true
	p.parentPath = owner
	p.basename = frag
	return nil
}

// analyseFileName splits "[sort.]basename[.lang][.ext...]".
func (p *Path) analyseFileName(name string) {
	segs := strings.Split(name, ".")
	if segs[0] == "" && len(segs) > 1 {
		// Hidden files keep their leading dot on the basename.
		segs = append([]string{"." + segs[1]}, segs[2:]...)
	}

	rest := segs
	if len(segs) > 1 && isInteger(segs[0]) {
		_, langNext := LanguageCode(segs[1])
		switch {
		case len(segs) == 2:
			// "5.png": the number is the basename.
		case len(segs) == 3 && langNext:
			// "5.de.png": the number is the basename, followed by a language.
		default:
			n, _ := strconv.Atoi(segs[0])
			p.parsed.sortIndex, p.parsed.hasSort = n, true
			rest = segs[1:]
		}
	}

	p.basename = rest[0]
	tail := rest[1:]
	if len(tail) >= 2 {
		// Scan from the back so the extension keeps as many segments as
		// possible while one segment still remains for it.
		for i := len(tail) - 2; i >= 0; i-- {
			if code, ok := LanguageCode(tail[i]); ok {
				p.parsed.lang = code
				tail = append(append([]string{}, tail[:i]...), tail[i+1:]...)
				break
			}
		}
	}
	p.ext = strings.Join(tail, ".")
}

// LanguageCode reports whether seg names a language and returns its two
// letter ISO 639-1 form. Three letter codes are accepted only when a two
// letter equivalent exists, so extensions such as "tar" or "png" are not
// mistaken for languages.
func LanguageCode(seg string) (string, bool) {
	if len(seg) < 2 || len(seg) > 3 {
		return "", false
	}
	for _, r := range seg {
		if r < 'a' || r > 'z' {
			return "", false
		}
	}
	base, err := language.ParseBase(seg)
	if err != nil {
		return "", false
	}
	code := base.String()
	if len(code) != 2 {
		return "", false
	}
	return code, true
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

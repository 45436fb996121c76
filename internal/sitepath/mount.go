package sitepath

import (
	stdpath "path"
	"strings"
)

// Mount re-roots p under prefix after removing strip from the front of its
// raw location. An empty strip means "/". Meta, version settings and content
// are carried over.
func (p *Path) Mount(prefix, strip string) (*Path, error) {
	if strip == "" {
		strip = "/"
	}
	if err := checkMountPoint(p.raw, prefix); err != nil {
		return nil, err
	}
	if err := checkMountPoint(p.raw, strip); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(p.raw, strip) {
		return nil, &MountError{Raw: p.raw, Prefix: strip, Reason: "path does not start with the strip prefix"}
	}

	raw := prefix + strings.TrimPrefix(p.raw, strip)
	mounted, err := Parse(raw, p.Meta(), WithDefaultVersion(p.defaultVersion), WithOpener(p.opener))
	if err != nil {
		return nil, err
	}
	if p.extSet {
		mounted = mounted.SetExtension(p.ext)
	}
	return mounted, nil
}

// ValidateMountPoint checks that prefix can serve as a mount or strip prefix:
// it must start and end with "/" and must not contain "#".
func ValidateMountPoint(prefix string) error {
	return checkMountPoint(prefix, prefix)
}

func checkMountPoint(raw, prefix string) error {
	switch {
	case !strings.HasPrefix(prefix, "/"):
		return &MountError{Raw: raw, Prefix: prefix, Reason: "prefix must start with /"}
	case !strings.HasSuffix(prefix, "/"):
		return &MountError{Raw: raw, Prefix: prefix, Reason: "prefix must end with /"}
	case strings.Contains(prefix, "#"):
		return &MountError{Raw: raw, Prefix: prefix, Reason: "prefix must not contain #"}
	}
	return nil
}

// Append resolves rel against base the way a relative link is resolved: an
// absolute rel replaces base, otherwise rel is joined to the directory of
// base. "." and ".." segments are collapsed and never climb above the root.
func Append(base, rel string) string {
	joined := rel
	if !strings.HasPrefix(rel, "/") {
		dir := base
		if !strings.HasSuffix(dir, "/") {
			dir = dir[:strings.LastIndexByte(dir, '/')+1]
		}
		joined = dir + rel
	}

	trailing := strings.HasSuffix(joined, "/") || strings.HasSuffix(joined, "/.") || strings.HasSuffix(joined, "/..")
	stack := make([]string, 0, 8)
	for _, seg := range strings.Split(joined, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	if len(stack) == 0 {
		return "/"
	}
	out := "/" + strings.Join(stack, "/")
	if trailing {
		out += "/"
	}
	return out
}

// Match reports whether the location p matches the glob pattern.
//
// Matching is case-insensitive. "*" and "?" never cross "/" or "#", "**"
// spans any number of directories, and a pattern without a leading "/" is
// anchored at the root. Directory locations match with or without their
// trailing separator; file locations never match a pattern ending in "/".
func Match(p, pattern string) bool {
	if p == "" || pattern == "" {
		return false
	}
	p = strings.ToLower(p)
	pattern = strings.ToLower(pattern)
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}

	if strings.HasSuffix(p, "/") {
		if p != "/" {
			p = strings.TrimSuffix(p, "/")
		}
		if pattern != "/" {
			pattern = strings.TrimSuffix(pattern, "/")
		}
	} else if strings.HasSuffix(pattern, "/") {
		return false
	}

	return matchSegments(strings.Split(pattern[1:], "/"), strings.Split(p[1:], "/"))
}

func matchSegments(pats, segs []string) bool {
	if len(pats) == 0 {
		return len(segs) == 0
	}
	if pats[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pats[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 || !matchSegment(pats[0], segs[0]) {
		return false
	}
	return matchSegments(pats[1:], segs[1:])
}

// matchSegment matches one path segment; a fragment is matched separately so
// wildcards cannot reach into it.
func matchSegment(pat, seg string) bool {
	pBase, pFrag, pHas := strings.Cut(pat, "#")
	sBase, sFrag, sHas := strings.Cut(seg, "#")
	if pHas != sHas {
		return false
	}
	if ok, err := stdpath.Match(pBase, sBase); err != nil || !ok {
		return false
	}
	if !pHas {
		return true
	}
	ok, err := stdpath.Match(pFrag, sFrag)
	return err == nil && ok
}

package tree

import "strings"

// Level returns the depth of n counted in directories from the root, which
// has level 1. A file shares the level of its directory. Virtual directories
// are skipped unless countVirtual is set.
func Level(n *Node, countVirtual bool) int {
	if n == nil {
		return 0
	}
	level := 0
	for cur := n; cur != nil; cur = cur.parent {
		switch {
		case cur.parent == nil:
			level++
		case !cur.IsDirectory():
		case countVirtual || !cur.virtual:
			level++
		}
	}
	return level
}

// InSubtree reports whether b is on a's ancestor chain, a included.
func InSubtree(a, b *Node) bool {
	if a == nil || b == nil {
		return false
	}
	for cur := a; cur != nil; cur = cur.parent {
		if cur == b {
			return true
		}
	}
	return false
}

// Route returns the shortest relative reference from the output location
// of from to the output location of to. Identical nodes and nodes sharing
// an output location yield ".". A target without a common root, such as an
// external URL, is returned unchanged. Nil nodes yield "".
func (t *Tree) Route(from, to *Node) string {
	if from == nil || to == nil {
		return ""
	}
	target := to.DestPath()
	if IsExternalURL(target) || !strings.HasPrefix(target, "/") {
		return target
	}
	if from == to {
		return "."
	}
	source := from.DestPath()
	if IsExternalURL(source) || !strings.HasPrefix(source, "/") {
		return target
	}

	targetPath, fragment, hasFragment := strings.Cut(target, "#")
	sourcePath, _, _ := strings.Cut(source, "#")
	if targetPath == sourcePath {
		if hasFragment {
			return "#" + fragment
		}
		return "."
	}

	rel := relative(sourcePath, targetPath)
	if hasFragment {
		rel += "#" + fragment
	}
	return rel
}

// relative computes the reference from the directory of source to target.
// Both are absolute output locations; directories end in "/".
func relative(source, target string) string {
	fromDir := segments(source[:strings.LastIndexByte(source, '/')+1])
	targetIsDir := strings.HasSuffix(target, "/")
	to := segments(target)

	common := 0
	limit := len(to)
	if !targetIsDir {
		// The last segment of a file target is its name, never a common directory.
		limit--
	}
	for common < len(fromDir) && common < limit && fromDir[common] == to[common] {
		common++
	}

	parts := make([]string, 0, len(fromDir)-common+len(to)-common)
	for range len(fromDir) - common {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)
	if len(parts) == 0 {
		return "."
	}
	out := strings.Join(parts, "/")
	if targetIsDir && len(to) > common {
		out += "/"
	}
	return out
}

func segments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

package contentproc

import (
	"bytes"
	"context"
	"errors"
	stdpath "path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/sitegen/internal/itemtracker"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/tree"
)

// ReferenceTracker is the tracker name recorded for every resolved link.
const ReferenceTracker = itemtracker.NodeReference

var utf8BOM = []byte("\ufeff")

// linkAttrs lists the attributes holding references, per element.
var linkAttrs = map[atom.Atom]string{
	atom.A:      "href",
	atom.Link:   "href",
	atom.Area:   "href",
	atom.Img:    "src",
	atom.Script: "src",
	atom.Source: "src",
	atom.Video:  "src",
	atom.Audio:  "src",
	atom.Iframe: "src",
}

// ExtensionMapper maps a source extension to the extension a processor
// produces. *Registry implements it.
type ExtensionMapper interface {
	MapExtension(ext string) (name, mapped string, ok bool)
}

// NewLinks returns the link relocation processor. It resolves every local
// href and src against the tree, rewrites it as the route from the node
// being written, and records a reference dependency on the target.
// References may name a source file ("intro.md"); when mapper knows its
// extension the output name ("intro.html") is tried as well. Unresolvable
// links are left as they are and logged.
func NewLinks(mapper ExtensionMapper) Processor {
	l := linkRelocator{mapper: mapper}
	return ProcessorFunc(l.relocateLinks)
}

type linkRelocator struct {
	mapper ExtensionMapper
}

func (l linkRelocator) relocateLinks(_ context.Context, rc *Context) (*Context, error) {
	if rc.Tree == nil || rc.Node == nil {
		return rc, nil
	}

	content := bytes.TrimPrefix(rc.Content, utf8BOM)
	var roots []*html.Node
	if isFullDocument(content) {
		doc, err := html.Parse(bytes.NewReader(content))
		if err != nil {
			return nil, err
		}
		roots = []*html.Node{doc}
	} else {
		body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		nodes, err := html.ParseFragment(bytes.NewReader(content), body)
		if err != nil {
			return nil, err
		}
		roots = nodes
	}

	var walkErr error
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if key, ok := linkAttrs[n.DataAtom]; ok {
				for i := range n.Attr {
					if n.Attr[i].Key != key || n.Attr[i].Namespace != "" {
						continue
					}
					rewritten, err := l.relocate(rc, n.Attr[i].Val)
					if err != nil && walkErr == nil {
						walkErr = err
					}
					n.Attr[i].Val = rewritten
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	if walkErr != nil {
		return nil, walkErr
	}

	var buf bytes.Buffer
	for _, root := range roots {
		if err := html.Render(&buf, root); err != nil {
			return nil, err
		}
	}
	rc.Content = buf.Bytes()
	return rc, nil
}

// relocate rewrites one reference. Only the error of recording the
// dependency is returned; lookups that fail keep the original value.
func (l linkRelocator) relocate(rc *Context, ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "#") || tree.IsExternalURL(ref) || strings.HasPrefix(ref, "//") {
		return ref, nil
	}

	target, query, fragment := splitReference(ref)
	if target == "" {
		return ref, nil
	}
	node := l.lookup(rc, target)
	if node == nil {
		rc.log().Warn("Unresolved link",
			logfields.Node(rc.nodeName()),
			logfields.Path(ref))
		return ref, nil
	}

	if rc.Tracker != nil {
		err := rc.Tracker.Add(rc.Node, ReferenceTracker, node)
		var unknown *itemtracker.UnknownTrackerError
		switch {
		case errors.As(err, &unknown):
			// Reference tracking is disabled; the link is still rewritten.
		case err != nil:
			return ref, err
		}
	}

	route := rc.Tree.Route(rc.DestNode(), node)
	if node.IsExternal() {
		return route, nil
	}
	return route + query + fragment, nil
}

func (l linkRelocator) lookup(rc *Context, target string) *tree.Node {
	if node := rc.Tree.LookupByLocal(rc.Node, target); node != nil {
		return node
	}
	if l.mapper == nil {
		return nil
	}
	ext := stdpath.Ext(target)
	if ext == "" {
		return nil
	}
	if _, mapped, ok := l.mapper.MapExtension(ext[1:]); ok {
		return rc.Tree.LookupByLocal(rc.Node, strings.TrimSuffix(target, ext)+"."+mapped)
	}
	return nil
}

// splitReference separates the path of a reference from its query and
// fragment, which are carried over unchanged.
func splitReference(ref string) (path, query, fragment string) {
	path = ref
	if i := strings.IndexByte(path, '#'); i >= 0 {
		path, fragment = path[:i], path[i:]
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i:]
	}
	return path, query, fragment
}

// isFullDocument reports whether content is a complete page rather than a
// body fragment. The first token that is neither whitespace nor a comment
// decides.
func isFullDocument(content []byte) bool {
	z := html.NewTokenizer(bytes.NewReader(content))
	for {
		switch z.Next() {
		case html.CommentToken:
			continue
		case html.TextToken:
			if len(bytes.TrimSpace(z.Text())) == 0 {
				continue
			}
			return false
		case html.DoctypeToken:
			return true
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Html, atom.Head, atom.Body:
				return true
			}
			return false
		default:
			return false
		}
	}
}

package generator

import (
	"context"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
	"git.home.luguber.info/inful/sitegen/internal/tree"
)

// stageDestinations assigns every node its output location and rejects
// nodes whose location another node already claimed. Nodes are visited
// parent first, in sibling order, so the first claim is deterministic.
func (g *Generator) stageDestinations(_ context.Context, st *runState) error {
	claimed := map[string]string{}
	count := 0
	for _, n := range st.tree.Nodes() {
		if n.IsRoot() {
			continue
		}
		count++
		dest, err := g.destination(n)
		if err != nil {
			g.failEarly(st, n, err)
			continue
		}
		n.SetDest(dest)
		if !producesOutput(n) {
			continue
		}
		if other, ok := claimed[dest]; ok {
			g.failEarly(st, n, &DestinationCollisionError{Dest: dest, ALCN: n.ALCN(), Other: other})
			continue
		}
		claimed[dest] = n.ALCN()
	}
	st.report.Nodes = count
	return nil
}

// destination computes the output location of n. An absolute URL in the
// dest_path meta is used unchanged. Directories and fragments live below the
// destination of their parent; files expand the dest_path template, or the
// configured default, with their parent's destination as <parent>.
func (g *Generator) destination(n *tree.Node) (string, error) {
	tmpl := n.GetString(MetaDestPath)
	if tree.IsExternalURL(tmpl) {
		return tmpl, nil
	}

	parentDest := "/"
	if p := n.Parent(); p != nil && !p.IsRoot() {
		parentDest = p.DestPath()
	}
	if n.IsDirectory() || n.IsFragment() {
		return parentDest + n.CN(), nil
	}

	if tmpl == "" {
		tmpl = g.cfg.Generation.DestTemplate
	}
	vars := n.Path().Vars()
	if strings.HasSuffix(parentDest, "/") {
		vars.Parent = parentDest
	}
	dest, err := sitepath.ResolveTemplateVars(tmpl, vars)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(dest, "/") {
		dest = sitepath.Append(parentDest, dest)
	}
	return dest, nil
}

// producesOutput reports whether n is written to the output filesystem.
func producesOutput(n *tree.Node) bool {
	return !n.IsRoot() && !n.Virtual() && !n.IsDirectory() && !n.IsFragment() &&
		!n.IsExternal() && n.Producer() != nil
}

// failEarly records a failure found before rendering. Events and tracker
// invalidation follow in the render stage.
func (g *Generator) failEarly(st *runState, n *tree.Node, err error) {
	if st.markFailed(n.ALCN(), err) {
		st.report.failed(n.ALCN(), err)
		g.logger.Warn("Node failed", logfields.Node(n.ALCN()), logfields.Error(err))
	}
}

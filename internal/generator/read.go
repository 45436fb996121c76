package generator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/contentproc"
	"git.home.luguber.info/inful/sitegen/internal/frontmatter"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
	"git.home.luguber.info/inful/sitegen/internal/tree"
)

// Meta keys interpreted by the generator.
const (
	MetaDraft    = "draft"
	MetaPipeline = "pipeline"
	MetaDestPath = "dest_path"
)

// stageRead lists the source locations and builds the node tree. Backing
// files are read first so their meta applies to every matching location;
// entries naming no existing location become virtual nodes.
func (g *Generator) stageRead(ctx context.Context, st *runState) error {
	raws, err := g.source.Paths(ctx)
	if err != nil {
		return err
	}

	var entries []backingEntry
	var paths []string
	for _, raw := range raws {
		if strings.HasSuffix(raw, BackingSuffix) {
			es, err := g.readBacking(raw)
			if err != nil {
				st.report.invalid(raw, err)
				g.logger.Warn("Skipping backing file", logfields.Path(raw), logfields.Error(err))
				continue
			}
			entries = append(entries, es...)
			continue
		}
		paths = append(paths, raw)
	}

	matched := make([]bool, len(entries))
	for _, raw := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.readPath(st, raw, entries, matched)
	}
	g.insertVirtual(st, entries, matched)
	return nil
}

func (g *Generator) readBacking(raw string) ([]backingEntry, error) {
	data, err := g.readAll(raw)
	if err != nil {
		return nil, err
	}
	return parseBacking(raw, data)
}

func (g *Generator) readAll(raw string) ([]byte, error) {
	rc, err := g.source.Open(raw)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// readMetaBlock returns the meta block of raw, or nil when the content does
// not start with one. Only the first bytes are read for the check.
func (g *Generator) readMetaBlock(raw string) (*frontmatter.Block, error) {
	rc, err := g.source.Open(raw)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	br := bufio.NewReader(rc)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if !bytes.HasPrefix(head, []byte("---\n")) && !bytes.HasPrefix(head, []byte("---\r")) {
		return nil, nil
	}
	data, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	block, err := frontmatter.Parse(data)
	if err != nil {
		return nil, err
	}
	if !block.Present {
		return nil, nil
	}
	return block, nil
}

func (g *Generator) readPath(st *runState, raw string, entries []backingEntry, matched []bool) {
	dir := strings.HasSuffix(raw, "/")
	var meta map[string]any
	opener := func() (io.ReadCloser, error) { return g.source.Open(raw) }

	if !dir {
		block, err := g.readMetaBlock(raw)
		if err != nil {
			st.report.invalid(raw, err)
			g.logger.Warn("Skipping source with unreadable meta block", logfields.Path(raw), logfields.Error(err))
			return
		}
		if block != nil {
			meta = block.Meta
			body := block.Body
			opener = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		}
	}

	meta, hits := applyBacking(raw, meta, entries)
	for _, i := range hits {
		matched[i] = true
	}

	p, err := sitepath.Parse(raw, meta, append(pathOptions(g.cfg), sitepath.WithOpener(opener))...)
	if err != nil {
		st.report.invalid(raw, err)
		g.logger.Warn("Skipping invalid source location", logfields.Path(raw), logfields.Error(err))
		return
	}

	if dir {
		if _, err := st.tree.Insert(p, nil); err != nil {
			st.report.invalid(raw, err)
		}
		return
	}

	if lang := g.cfg.Generation.DefaultLanguage; lang != "" && p.Lang() == "" {
		if err := p.Set(sitepath.MetaLang, lang); err != nil {
			st.retain(p)
			st.report.invalid(raw, err)
			return
		}
	}

	if draft, _ := p.Get(MetaDraft); draft == true && !g.cfg.Generation.IncludeDrafts {
		if pipeline, err := g.pipelineFor(st.procs, p); err == nil {
			p = remapExtension(st.procs, pipeline, p)
		}
		st.retain(p)
		st.report.mu.Lock()
		st.report.Drafts++
		st.report.mu.Unlock()
		g.logger.Debug("Skipping draft", logfields.Path(raw))
		return
	}

	pipeline, err := g.pipelineFor(st.procs, p)
	if err != nil {
		st.retain(p)
		st.report.invalid(raw, err)
		g.logger.Warn("Skipping source with invalid pipeline", logfields.Path(raw), logfields.Error(err))
		return
	}
	p = remapExtension(st.procs, pipeline, p)

	n, err := st.tree.Insert(p, tree.PathContent(p))
	if err != nil {
		st.report.invalid(raw, err)
		g.logger.Warn("Skipping source", logfields.Path(raw), logfields.Error(err))
		return
	}
	n.SetInfo(tree.InfoPipeline, pipeline)
	n.SetInfo(tree.InfoSource, raw)
	if mt, err := g.source.ModTime(raw); err == nil && !mt.IsZero() {
		n.SetInfo(tree.InfoModTime, mt)
	}
}

// insertVirtual handles exact backing entries that named no source
// location: an entry naming the ALCN of an existing node adds its meta to
// that node, any other entry creates a virtual node.
func (g *Generator) insertVirtual(st *runState, entries []backingEntry, matched []bool) {
	for i, e := range entries {
		if matched[i] || e.glob {
			continue
		}
		if n := st.tree.Node(e.Pattern); n != nil {
			for k, v := range e.Meta {
				n.Set(k, v)
			}
			continue
		}
		p, err := sitepath.Parse(e.Pattern, e.Meta, pathOptions(g.cfg)...)
		if err != nil {
			st.report.invalid(e.Pattern, fmt.Errorf("%s: %w", e.Origin, err))
			continue
		}
		if _, err := st.tree.Insert(p, nil); err != nil {
			st.report.invalid(e.Pattern, err)
			continue
		}
		g.logger.Debug("Created virtual node", logfields.Node(p.ALCN()), slog.String("origin", e.Origin))
	}
}

// pipelineFor picks the processors for p: the pipeline meta key, else the
// first configured rule matching the location, else the processor mapping
// the extension followed by link relocation. HTML is only relocated and
// everything else is copied.
func (g *Generator) pipelineFor(procs *contentproc.Registry, p *sitepath.Path) ([]string, error) {
	if v, ok := p.Get(MetaPipeline); ok {
		return procs.Normalize(v)
	}
	for _, rule := range g.cfg.Generation.Pipelines {
		if sitepath.Match(p.Raw(), rule.Pattern) {
			return procs.Normalize(rule.Pipeline)
		}
	}
	if name, _, ok := procs.MapExtension(p.Ext()); ok {
		if procs.IsBinary(name) {
			return []string{name}, nil
		}
		return []string{name, contentproc.Links}, nil
	}
	switch strings.ToLower(p.Ext()) {
	case "html", "htm":
		return []string{contentproc.Links}, nil
	}
	return []string{contentproc.Copy}, nil
}

// remapExtension applies the extension maps of the pipeline's processors in
// order.
func remapExtension(procs *contentproc.Registry, pipeline []string, p *sitepath.Path) *sitepath.Path {
	ext := p.Ext()
	for _, name := range pipeline {
		if mapped, ok := procs.ExtensionMap(name)[ext]; ok {
			ext = mapped
		}
	}
	if ext == p.Ext() {
		return p
	}
	return p.SetExtension(ext)
}

func pipelineOf(n *tree.Node) []string {
	v, _ := n.Info(tree.InfoPipeline)
	pipeline, _ := v.([]string)
	return pipeline
}

package contentproc

import (
	"bytes"
	"context"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// MarkdownOptions configures the markdown processor.
type MarkdownOptions struct {
	// GFM enables tables, strikethrough, autolinks and task lists.
	GFM bool
	// HeadingIDs generates id attributes for headings.
	HeadingIDs bool
	// Unsafe passes raw HTML through.
	Unsafe bool
}

// NewMarkdown returns a processor converting markdown to HTML with goldmark.
func NewMarkdown(opts MarkdownOptions) Processor {
	var gmOpts []goldmark.Option
	if opts.GFM {
		gmOpts = append(gmOpts, goldmark.WithExtensions(extension.GFM))
	}
	if opts.HeadingIDs {
		gmOpts = append(gmOpts, goldmark.WithParserOptions(parser.WithAutoHeadingID()))
	}
	if opts.Unsafe {
		gmOpts = append(gmOpts, goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
	}
	md := goldmark.New(gmOpts...)

	return ProcessorFunc(func(_ context.Context, rc *Context) (*Context, error) {
		var buf bytes.Buffer
		if err := md.Convert(rc.Content, &buf); err != nil {
			return nil, err
		}
		rc.Content = buf.Bytes()
		return rc, nil
	})
}

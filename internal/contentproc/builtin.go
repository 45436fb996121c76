package contentproc

// Names of the built-in processors.
const (
	Markdown = "markdown"
	Links    = "links"
	Copy     = "copy"
)

// RegisterBuiltins registers markdown, links and copy.
func RegisterBuiltins(r *Registry, md MarkdownOptions) error {
	if err := r.Register(Markdown, NewMarkdown(md), KindText, map[string]string{"md": "html", "markdown": "html"}); err != nil {
		return err
	}
	if err := r.Register(Links, NewLinks(r), KindText, nil); err != nil {
		return err
	}
	return r.Register(Copy, NewCopy(), KindBinary, nil)
}

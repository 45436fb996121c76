// Package frontmatter handles the YAML meta block a text source may start with.
//
//	---
//	title: Intro
//	sort: 2
//	---
//	# body
//
// The keys of the block become the meta information of the node built from
// the source; the body is what content processors see.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a meta
// block delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("meta block start delimiter found but closing delimiter is missing")

// Block is a parsed source document.
type Block struct {
	// Present is false when the document has no meta block.
	Present bool
	// Raw is the YAML between the delimiters.
	Raw  []byte
	Meta map[string]any
	Body []byte
}

// Split separates the `---` delimited block from the body. Both LF and CRLF
// documents are understood. Without a block, had is false and body is the
// full input.
func Split(content []byte) (raw []byte, body []byte, had bool, err error) {
	nl := newlineOf(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}

	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closing)
	if idx < 0 {
		// A closing delimiter at end of input without a trailing newline.
		if bytes.HasSuffix(content, []byte(nl+"---")) && len(content) > start+len(nl)+3 {
			end := len(content) - 3
			return content[start:end], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	end := start + idx + len(nl)
	return content[start:end], content[start+idx+len(closing):], true, nil
}

// Parse splits content and decodes the meta block.
func Parse(content []byte) (*Block, error) {
	raw, body, had, err := Split(content)
	if err != nil {
		return nil, err
	}
	meta, err := ParseYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("parse meta block: %w", err)
	}
	return &Block{Present: had, Raw: raw, Meta: meta, Body: body}, nil
}

// ParseYAML parses raw YAML (without --- delimiters) into a map. The top
// level must be a mapping.
func ParseYAML(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func newlineOf(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

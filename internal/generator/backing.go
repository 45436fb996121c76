package generator

import (
	"maps"
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/sitepath"
)

// BackingSuffix marks source files holding meta information for other
// locations instead of content.
const BackingSuffix = ".backing.yaml"

// backingEntry is one key of a backing file. Pattern is absolute; relative
// keys are resolved against the directory of the backing file.
type backingEntry struct {
	Pattern string
	Meta    map[string]any
	Origin  string
	glob    bool
}

func (e backingEntry) matches(raw string) bool {
	if !e.glob {
		return strings.EqualFold(e.Pattern, raw)
	}
	return sitepath.Match(raw, e.Pattern)
}

// parseBacking decodes a backing file: a YAML mapping from location or
// pattern to meta information. Entries keep the order of the file.
func parseBacking(origin string, data []byte) ([]backingEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &backingFormatError{Origin: origin, Reason: "top level must be a mapping"}
	}

	dir := origin[:strings.LastIndexByte(origin, '/')+1]
	entries := make([]backingEntry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var meta map[string]any
		if err := root.Content[i+1].Decode(&meta); err != nil {
			return nil, &backingFormatError{Origin: origin, Reason: "entry " + key + " must be a mapping"}
		}
		pattern := key
		if !strings.HasPrefix(pattern, "/") {
			pattern = sitepath.Append(dir, pattern)
			if strings.HasSuffix(key, "/") && !strings.HasSuffix(pattern, "/") {
				pattern += "/"
			}
		}
		entries = append(entries, backingEntry{
			Pattern: pattern,
			Meta:    meta,
			Origin:  origin,
			glob:    strings.ContainsAny(key, "*?["),
		})
	}
	return entries, nil
}

// applyBacking overlays the meta of every entry matching raw onto meta and
// reports the indexes of the matching entries.
func applyBacking(raw string, meta map[string]any, entries []backingEntry) (map[string]any, []int) {
	var hits []int
	out := meta
	for i, e := range entries {
		if !e.matches(raw) {
			continue
		}
		if len(hits) == 0 {
			out = maps.Clone(meta)
			if out == nil {
				out = map[string]any{}
			}
		}
		hits = append(hits, i)
		maps.Copy(out, e.Meta)
	}
	return out, hits
}

type backingFormatError struct {
	Origin string
	Reason string
}

func (e *backingFormatError) Error() string { return "backing file " + e.Origin + ": " + e.Reason }

func (e *backingFormatError) Category() ferrors.ErrorCategory { return ferrors.CategoryValidation }

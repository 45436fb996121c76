package frontmatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeYAMLSortsKeys(t *testing.T) {
	out, err := SerializeYAML(map[string]any{
		"title": "Intro",
		"alpha": map[string]any{"z": 1, "a": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alpha:\n  a: x\n  z: 1\ntitle: Intro\n", string(out))

	out, err = SerializeYAML(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFingerprint(t *testing.T) {
	base, err := Fingerprint(map[string]any{"title": "A"}, []byte("body"))
	require.NoError(t, err)
	assert.NotEmpty(t, base)

	same, err := Fingerprint(map[string]any{"title": "A", "modified": "today"}, []byte("body"), "modified")
	require.NoError(t, err)
	assert.Equal(t, base, same, "ignored keys do not contribute")

	otherBody, err := Fingerprint(map[string]any{"title": "A"}, []byte("changed"))
	require.NoError(t, err)
	assert.NotEqual(t, base, otherBody)

	otherMeta, err := Fingerprint(map[string]any{"title": "B"}, []byte("body"))
	require.NoError(t, err)
	assert.NotEqual(t, base, otherMeta)
}

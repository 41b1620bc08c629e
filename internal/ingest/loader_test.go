package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSONL(t *testing.T) {
	input := `
{"id": "p1", "title": "Tides", "body": "Ocean tides follow the moon", "taxonomy_path": "science.earth", "url_or_ref": "doc://p1"}

{"id": "p2", "body": "Currents redistribute heat"}
`
	result, err := LoadJSONL(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, result.Passages, 2)
	assert.Empty(t, result.Rejected)

	p1 := result.Passages[0]
	assert.Equal(t, "p1", p1.ID)
	assert.Equal(t, "science.earth", p1.TaxonomyPath)
	assert.Equal(t, 5, p1.TokenCount)

	// Unclassified passages are fine.
	assert.Empty(t, result.Passages[1].TaxonomyPath)
}

func TestLoadJSONL_RejectsInvalidLines(t *testing.T) {
	input := strings.Join([]string{
		`{"id": "ok", "body": "valid"}`,
		`{not json`,
		`{"id": "", "body": "no id"}`,
		`{"id": "p2", "body": ""}`,
		`{"id": "p3", "body": "bad path", "taxonomy_path": "a..b"}`,
	}, "\n")

	result, err := LoadJSONL(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, result.Passages, 1)
	require.Len(t, result.Rejected, 4)
	assert.Equal(t, 2, result.Rejected[0].Line)
	assert.Contains(t, result.Rejected[0].Reason, "invalid JSON")
	assert.Contains(t, result.Rejected[1].Reason, "missing id")
	assert.Contains(t, result.Rejected[2].Reason, "missing body")
	assert.Contains(t, result.Rejected[3].Reason, "taxonomy_path")
}

func TestLoadJSONL_DuplicateIDsLastWins(t *testing.T) {
	input := strings.Join([]string{
		`{"id": "p1", "body": "first version"}`,
		`{"id": "p2", "body": "other"}`,
		`{"id": "p1", "body": "second version"}`,
	}, "\n")

	result, err := LoadJSONL(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, result.Passages, 2)
	assert.Equal(t, "second version", result.Passages[0].Body)
	assert.Empty(t, result.Rejected)
}

func TestLoadJSONL_KeepsExplicitTokenCount(t *testing.T) {
	input := `{"id": "p1", "body": "one two three", "token_count": 42}`

	result, err := LoadJSONL(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Passages, 1)
	assert.Equal(t, 42, result.Passages[0].TokenCount)
}

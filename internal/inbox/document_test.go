package inbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

func TestParseDocumentJSON(t *testing.T) {
	parsed, err := ParseDocument("ideas.json", []byte(`{"month":"Idea A\nIdea B","product":["P1","P2"]}`))
	require.NoError(t, err)
	assert.Equal(t, "Idea A\nIdea B", parsed[ideasync.CategoryMonth])
	assert.Equal(t, "P1\nP2", parsed[ideasync.CategoryProduct])
	_, ok := parsed[ideasync.CategoryResults]
	assert.False(t, ok)
}

func TestParseDocumentYAML(t *testing.T) {
	doc := []byte("results:\n  - Shipped v1\n  - Signed first client\nmonth: |\n  Plan Q3\n")
	parsed, err := ParseDocument("ideas.yaml", doc)
	require.NoError(t, err)
	assert.Equal(t, "Shipped v1\nSigned first client", parsed[ideasync.CategoryResults])
	assert.Equal(t, "Plan Q3\n", parsed[ideasync.CategoryMonth])
}

func TestParseDocumentRejectsInvalidShapes(t *testing.T) {
	cases := map[string]string{
		"unknown key":   `{"weekly":"x"}`,
		"number entry":  `{"month":42}`,
		"nested list":   `{"month":[["x"]]}`,
		"empty object":  `{}`,
		"not an object": `["month"]`,
		"broken json":   `{"month":`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDocument("doc.json", []byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ideasync.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestImportAppendsToBuffers(t *testing.T) {
	dir, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, dir.Set(ideasync.CategoryMonth, "existing"))

	_, err = dir.Import("batch.yml", []byte("month: [new one]\nproduct: \"  \"\n"))
	require.NoError(t, err)

	month, _ := dir.Text(ideasync.CategoryMonth)
	product, _ := dir.Text(ideasync.CategoryProduct)
	assert.Equal(t, "existing\nnew one", month)
	assert.Empty(t, product)
}

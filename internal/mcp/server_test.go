package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/embed"
	apperrors "github.com/loreleaf/loreleaf/internal/errors"
	"github.com/loreleaf/loreleaf/internal/search"
	"github.com/loreleaf/loreleaf/internal/store"
)

func newTestMCPServer(t *testing.T) (*Server, store.PassageStore) {
	t.Helper()
	ctx := context.Background()

	lexical, err := store.NewSQLiteLexicalIndex("", store.DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	passages, err := store.NewSQLitePassageStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = passages.Close() })

	corpus := []*store.Passage{
		{ID: "p1", Title: "Glaciers", Body: "Glaciers carve valleys as they advance and retreat", TaxonomyPath: "science.earth", URLOrRef: "doc://p1"},
		{ID: "p2", Title: "Volcanoes", Body: "Volcanoes form where magma reaches the surface", TaxonomyPath: "science.earth", URLOrRef: "doc://p2"},
	}
	require.NoError(t, passages.Save(ctx, corpus))
	require.NoError(t, lexical.Index(ctx, corpus))

	cfg := config.NewConfig()
	cfg.Rerank.Enabled = false
	engine, err := search.NewEngine(search.Deps{
		Lexical:  lexical,
		Passages: passages,
		Embedder: embed.NewStaticEmbedder(),
		Config:   cfg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	srv, err := NewServer(engine, passages, nil)
	require.NoError(t, err)
	return srv, passages
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	assert.Error(t, err)
}

func TestSearchHandler(t *testing.T) {
	srv, _ := newTestMCPServer(t)

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "glaciers"})
	require.NoError(t, err)

	require.NotEmpty(t, out.Hits)
	assert.Equal(t, "p1", out.Hits[0].PassageID)
	assert.Equal(t, "Glaciers", out.Hits[0].Title)
	assert.Equal(t, []string{"science", "earth"}, out.Hits[0].TaxonomyPath)
	assert.NotEmpty(t, out.Mode)
}

func TestSearchHandler_EmptyQuery(t *testing.T) {
	srv, _ := newTestMCPServer(t)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "  "})
	require.Error(t, err)

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrCodeInvalidParams, perr.Code)
}

func TestSearchHandler_Scope(t *testing.T) {
	srv, _ := newTestMCPServer(t)

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{
		Query:         "glaciers volcanoes",
		TaxonomyScope: []string{"science.earth"},
	})
	require.NoError(t, err)
	for _, h := range out.Hits {
		assert.Equal(t, "science", h.TaxonomyPath[0])
	}
}

func TestStatusHandler(t *testing.T) {
	srv, _ := newTestMCPServer(t)

	_, out, err := srv.statusHandler(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Ready)
	assert.Equal(t, 2, out.PassageCount)
	assert.Equal(t, 2, out.TaxonomyPaths["science.earth"])
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, 0},
		{"validation", apperrors.New(apperrors.ErrCodeQueryEmpty, "query is empty", nil), ErrCodeInvalidParams},
		{"all paths failed", apperrors.AllPathsFailed(errors.New("down")), ErrCodeRetrievalDown},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"other", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := MapError(tt.err)
			if tt.err == nil {
				assert.Nil(t, perr)
				return
			}
			require.NotNil(t, perr)
			assert.Equal(t, tt.code, perr.Code)
			assert.NotEmpty(t, perr.Error())
		})
	}
}

func TestServe_UnknownTransport(t *testing.T) {
	srv, _ := newTestMCPServer(t)
	err := srv.Serve(context.Background(), "sse")
	assert.Error(t, err)
}

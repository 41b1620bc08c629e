package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loreleaf/loreleaf/internal/config"
)

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		query string
		want  QueryKind
	}{
		{"how does photosynthesis work", KindQuestion},
		{"what is a cell membrane?", KindQuestion},
		{"explain quantitative easing", KindQuestion},
		{"krebs cycle", KindKeyword},
		{"mitochondria", KindKeyword},
		{`"exact phrase match"`, KindKeyword},
		{"science.biology.cells", KindKeyword},
		{"effects of interest rates on housing markets", KindGeneral},
		{"", KindGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyQuery(tt.query))
		})
	}
}

func TestAlphaFor(t *testing.T) {
	cfg := config.FusionConfig{
		Mode:          "auto",
		Alpha:         0.5,
		AlphaKeyword:  0.6,
		AlphaQuestion: 0.3,
	}

	// Auto mode picks the preset for the query kind.
	assert.Equal(t, 0.6, alphaFor(cfg, "krebs cycle", nil))
	assert.Equal(t, 0.3, alphaFor(cfg, "how does fusion work", nil))
	assert.Equal(t, 0.5, alphaFor(cfg, "effects of interest rates on housing", nil))

	// Fixed mode always uses the configured alpha.
	cfg.Mode = "fixed"
	assert.Equal(t, 0.5, alphaFor(cfg, "krebs cycle", nil))

	// An explicit override wins over everything and is clamped.
	override := 0.9
	assert.Equal(t, 0.9, alphaFor(cfg, "krebs cycle", &override))
	override = 1.7
	assert.Equal(t, 1.0, alphaFor(cfg, "krebs cycle", &override))
}

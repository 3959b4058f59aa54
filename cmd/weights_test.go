package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps/internal/config"
	"github.com/sells-group/comps/internal/similarity"
)

func TestFormatWeights(t *testing.T) {
	w := similarity.DefaultWeights()

	var buf bytes.Buffer
	formatWeights(&buf, w)

	out := buf.String()
	assert.Contains(t, out, "DIMENSION")
	assert.Contains(t, out, "revenue")
	assert.Contains(t, out, "≥0.75→1.00")
	assert.Contains(t, out, "Total: 100")
	assert.Contains(t, out, "Hash: "+w.Hash())
}

func TestLoadWeights_DefaultWhenUnset(t *testing.T) {
	w, err := loadWeights(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, similarity.DefaultWeights().Hash(), w.Hash())
}

func TestLoadWeights_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  sector:\n    max_points: 6\n    confidence: 0.5\n"), 0o644))

	c := &config.Config{}
	c.Similarity.WeightsFile = path
	w, err := loadWeights(c)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, w.Sector.Confidence, 0.001)
	assert.NotEqual(t, similarity.DefaultWeights().Hash(), w.Hash())
}

func TestLoadWeights_MissingFile(t *testing.T) {
	c := &config.Config{}
	c.Similarity.WeightsFile = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := loadWeights(c)
	assert.Error(t, err)
}

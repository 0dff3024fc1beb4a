package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
products:
  - price_id: price_single
    name: Single Credit
    credits: 1
  - price_id: price_five
    name: 5-Credit Bundle
    credits: 5
`))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	credits, ok := c.CreditsForPrice("price_five")
	assert.True(t, ok)
	assert.Equal(t, int64(5), credits)

	_, ok = c.CreditsForPrice("price_unknown")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing price id", "products:\n  - credits: 1\n"},
		{"zero credits", "products:\n  - price_id: p\n    credits: 0\n"},
		{"duplicate", "products:\n  - price_id: p\n    credits: 1\n  - price_id: p\n    credits: 2\n"},
		{"bad yaml", "products: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.yaml")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_RepositoryCatalog(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs", "products.yaml"))
	require.NoError(t, err)

	credits, ok := c.CreditsForPrice("price_1Rk4JDQH2CPu3kDwnWUmRgHb")
	assert.True(t, ok)
	assert.Equal(t, int64(3), credits)
}

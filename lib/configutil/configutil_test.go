package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl string `json:"base_url"`
	FeedUrl string `json:"feed_url"`
	Verbose bool   `json:"verbose"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "xsheet.json5")

	err := os.WriteFile(name, []byte(`{
		// comments are allowed
		base_url: "https://x-sheet.com",
		feed_url: "https://x.com/home",
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "xsheet.local.json5"), []byte(`{base_url: "http://localhost:8443"}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8443", cfg.BaseUrl)
	require.Equal(t, "https://x.com/home", cfg.FeedUrl)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "xsheet.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigWithDefaults(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "xsheet.json5")
	err := os.WriteFile(name, []byte(`{feed_url: "https://x.com/i/bookmarks"}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfigWithDefaults(name, testConfig{
		BaseUrl: "https://x-sheet.com",
		FeedUrl: "https://x.com/home",
	})
	require.NoError(t, err)
	require.Equal(t, "https://x-sheet.com", cfg.BaseUrl)
	require.Equal(t, "https://x.com/i/bookmarks", cfg.FeedUrl)

	cfg, err = ReadConfigWithDefaults(filepath.Join(dir, "missing.json5"), testConfig{BaseUrl: "a"})
	require.NoError(t, err)
	require.Equal(t, "a", cfg.BaseUrl)
}

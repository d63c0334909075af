package nmconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/novelmind/novelmind/internal/nmconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMergesOnlyRuntimeDomain(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "runtime_config.json", `{
		"game": {"title": "NovelMind Demo", "startScene": "intro"},
		"window": {"width": 1280, "height": 720},
		"logging": {"level": "info"}
	}`)
	user := writeFile(t, dir, "runtime_user.json", `{
		"game": {"title": "should be ignored", "startScene": "hacked"},
		"window": {"width": 1920, "height": 1080},
		"localization": {"currentLocale": "fr"},
		"logging": {"level": "debug"}
	}`)

	cfg, err := nmconfig.Load(base, user)
	require.NoError(t, err)

	assert.Equal(t, "NovelMind Demo", cfg.Game.Title)
	assert.Equal(t, "intro", cfg.Game.StartScene)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, 1920, cfg.Window.Width)
	assert.Equal(t, "fr", cfg.Localization.CurrentLocale)
}

func TestLoadWithoutUserFileUsesBaseOnly(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "runtime_config.json", `{"game": {"title": "solo"}}`)

	cfg, err := nmconfig.Load(base, filepath.Join(dir, "runtime_user.json"))
	require.NoError(t, err)
	assert.Equal(t, "solo", cfg.Game.Title)
	assert.Equal(t, "en", cfg.Localization.CurrentLocale)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NOVELMIND_PACK_AES_KEY_HEX", "deadbeef")
	t.Setenv("NOVELMIND_PACK_PUBLIC_KEY", "/etc/novelmind/pub.pem")

	eo, err := nmconfig.LoadEnvOverrides()
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", eo.PackAESKeyHex)
	assert.Equal(t, "/etc/novelmind/pub.pem", eo.PackPublicKey)
}

func TestLoadProjectFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "novelmind.project.yaml", `
name: demo
scriptDirs: ["scripts"]
assetDirs: ["assets"]
outputPack: "build/demo.nmpack"
deterministicBuild: true
fixedRandomSeed: 42
compressionLevel: balanced
encrypt: true
sign: false
`)
	pf, err := nmconfig.LoadProjectFile(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", pf.Name)
	assert.True(t, pf.DeterministicBuild)
	assert.Equal(t, int64(42), pf.FixedRandomSeed)
	assert.Equal(t, "balanced", pf.CompressionLevel)
}

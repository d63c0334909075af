package nmlauncher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/novelmind/novelmind/internal/nmlauncher"
	"github.com/novelmind/novelmind/internal/nmpack"
	"github.com/novelmind/novelmind/internal/nmvm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGame(t *testing.T) string {
	t.Helper()
	base := t.TempDir()

	scriptDir := filepath.Join(base, "src", "scripts")
	assetDir := filepath.Join(base, "src", "assets")
	require.NoError(t, os.MkdirAll(scriptDir, 0o755))
	require.NoError(t, os.MkdirAll(assetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptDir, "main.nms"), []byte(`
scene intro {
	say "welcome to novelmind"
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "bg.png"), []byte("fake-png"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(base, "packs"), 0o755))
	packPath := filepath.Join(base, "packs", "base.nmpack")
	b := nmpack.NewBuilder(nmpack.Options{
		ScriptDirs:         []string{scriptDir},
		AssetDirs:          []string{assetDir},
		OutputPath:         packPath,
		Compression:        nmpack.CompressionBalanced,
		DeterministicBuild: true,
	})
	_, err := b.Build(nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(base, "packs", "packs_index.json"), []byte(`
{"packs": [{"path": "base.nmpack", "type": "base", "priority": 0}]}
`), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(base, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "config", "runtime_config.json"), []byte(fmt.Sprintf(`
{"game": {"title": "Demo", "startScene": "intro"},
 "packs": {"directory": "%s"},
 "localization": {"currentLocale": "en", "fallbackLocale": "en"}}
`, filepath.ToSlash(filepath.Join(base, "packs")))), 0o644))

	return base
}

func TestLauncherInitializeWiresRuntime(t *testing.T) {
	base := writeGame(t)

	l, err := nmlauncher.Initialize(base, nmlauncher.Options{}, nmvm.NopCallbacks{}, nil, nil)
	require.NoError(t, err)
	defer l.Shutdown()

	assert.Equal(t, "Demo", l.Config.Game.Title)
	assert.Equal(t, 1, l.VFS.LayerCount())
	require.NotNil(t, l.Runtime)

	for _, dir := range []string{"config", "saves", "logs"} {
		info, err := os.Stat(filepath.Join(base, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLauncherCLIOverridesWinOverConfig(t *testing.T) {
	base := writeGame(t)

	l, err := nmlauncher.Initialize(base, nmlauncher.Options{
		Lang:     "fr",
		Scene:    "intro",
		Debug:    true,
		Windowed: true,
	}, nmvm.NopCallbacks{}, nil, nil)
	require.NoError(t, err)
	defer l.Shutdown()

	assert.Equal(t, "fr", l.Config.Localization.CurrentLocale)
	assert.True(t, l.Config.Debug.Enabled)
	assert.True(t, l.Config.Window.Windowed)
}

func TestLauncherMissingPacksIndexFails(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "config", "runtime_config.json"), []byte(`{"packs": {"directory": "`+filepath.ToSlash(filepath.Join(base, "packs"))+`"}}`), 0o644))

	_, err := nmlauncher.Initialize(base, nmlauncher.Options{}, nmvm.NopCallbacks{}, nil, nil)
	require.Error(t, err)
	var launchErr *nmlauncher.Error
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, nmlauncher.InitPacks, launchErr.Code)
}

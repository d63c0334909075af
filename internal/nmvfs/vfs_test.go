package nmvfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/novelmind/novelmind/internal/nmpack"
	"github.com/novelmind/novelmind/internal/nmvfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func buildPack(t *testing.T, scriptText, assetName, assetBody, outPath string) *nmpack.BuildResult {
	t.Helper()
	root := t.TempDir()
	scriptDir := filepath.Join(root, "scripts")
	assetDir := filepath.Join(root, "assets")
	require.NoError(t, os.MkdirAll(scriptDir, 0o755))
	require.NoError(t, os.MkdirAll(assetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptDir, "main.nms"), []byte(scriptText), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, assetName), []byte(assetBody), 0o644))

	b := nmpack.NewBuilder(nmpack.Options{
		ScriptDirs:         []string{scriptDir},
		AssetDirs:          []string{assetDir},
		OutputPath:         outPath,
		Compression:        nmpack.CompressionBalanced,
		DeterministicBuild: true,
	})
	result, err := b.Build(nil)
	require.NoError(t, err)
	return result
}

func TestVFSLoadPackAndReadAll(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "base.nmpack")
	buildPack(t, "scene main {\n\tsay \"hi\"\n}\n", "bg.png", "fake-png-bytes", outPath)

	v, err := nmvfs.New(nmvfs.Options{CacheSize: 16})
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, v.LoadPack(outPath, nmvfs.TypeBase, 0))
	assert.Equal(t, 1, v.LayerCount())
	assert.True(t, v.Exists("assets/bg.png"))
	assert.True(t, v.Exists("scripts/compiled_scripts.bin"))
	assert.False(t, v.Exists("nope.png"))

	data, err := v.ReadAll("assets/bg.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake-png-bytes", string(data))

	// Second read should hit the LRU cache and still return identical bytes.
	data2, err := v.ReadAll("assets/bg.png", nil)
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}

func TestVFSOpenStream(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "base.nmpack")
	buildPack(t, "scene main {\n\tsay \"hi\"\n}\n", "bg.png", "stream-me", outPath)

	v, err := nmvfs.New(nmvfs.Options{})
	require.NoError(t, err)
	defer v.Close()
	require.NoError(t, v.LoadPack(outPath, nmvfs.TypeBase, 0))

	rc, err := v.OpenStream("assets/bg.png", nil)
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	assert.Equal(t, "stream-me", string(buf[:n]))
}

func TestVFSHigherPriorityLayerShadowsLowerOne(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "base.nmpack")
	buildPack(t, "scene main {\n\tsay \"base\"\n}\n", "bg.png", "base-bytes", basePath)

	modPath := filepath.Join(t.TempDir(), "mod.nmpack")
	buildPack(t, "scene main {\n\tsay \"mod\"\n}\n", "bg.png", "mod-bytes", modPath)

	v, err := nmvfs.New(nmvfs.Options{})
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, v.LoadPack(basePath, nmvfs.TypeBase, 0))
	require.NoError(t, v.LoadPack(modPath, nmvfs.TypeMod, 0))

	data, err := v.ReadAll("assets/bg.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "mod-bytes", string(data))
}

func TestVFSExplicitPriorityBeatsType(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "base.nmpack")
	buildPack(t, "scene main {\n\tsay \"base\"\n}\n", "bg.png", "base-bytes", basePath)

	modPath := filepath.Join(t.TempDir(), "mod.nmpack")
	buildPack(t, "scene main {\n\tsay \"mod\"\n}\n", "bg.png", "mod-bytes", modPath)

	v, err := nmvfs.New(nmvfs.Options{})
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, v.LoadPack(modPath, nmvfs.TypeMod, 0))
	require.NoError(t, v.LoadPack(basePath, nmvfs.TypeBase, 10))

	data, err := v.ReadAll("assets/bg.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "base-bytes", string(data))
}

func TestVFSReadAllMissingPathErrors(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "base.nmpack")
	buildPack(t, "scene main {\n\tsay \"hi\"\n}\n", "bg.png", "bytes", outPath)

	v, err := nmvfs.New(nmvfs.Options{})
	require.NoError(t, err)
	defer v.Close()
	require.NoError(t, v.LoadPack(outPath, nmvfs.TypeBase, 0))

	_, err = v.ReadAll("missing.png", nil)
	assert.Error(t, err)
}

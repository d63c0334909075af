package nmpack_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/novelmind/novelmind/internal/nmpack"
	"github.com/novelmind/novelmind/internal/nmsecure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeProjectTree(t *testing.T) (scriptDir, assetDir string) {
	t.Helper()
	root := t.TempDir()
	scriptDir = filepath.Join(root, "scripts")
	assetDir = filepath.Join(root, "assets")
	require.NoError(t, os.MkdirAll(scriptDir, 0o755))
	require.NoError(t, os.MkdirAll(assetDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(scriptDir, "main.nms"), []byte(`
scene main {
	say "hello world"
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scriptDir, "intro.nms"), []byte(`
scene intro {
	say "welcome"
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "bg.png"), []byte("fake-png-bytes"), 0o644))
	return scriptDir, assetDir
}

func TestBuildProducesReadablePack(t *testing.T) {
	scriptDir, assetDir := writeProjectTree(t)
	outPath := filepath.Join(t.TempDir(), "out", "demo.nmpack")

	b := nmpack.NewBuilder(nmpack.Options{
		ScriptDirs:         []string{scriptDir},
		AssetDirs:          []string{assetDir},
		OutputPath:         outPath,
		Compression:        nmpack.CompressionBalanced,
		DeterministicBuild: true,
	})

	progress := make(chan nmpack.BuildProgress, 64)
	var steps []nmpack.BuildStep
	done := make(chan struct{})
	go func() {
		for p := range progress {
			steps = append(steps, p.Step)
		}
		close(done)
	}()

	result, err := b.Build(progress)
	close(progress)
	<-done
	require.NoError(t, err)
	assert.Equal(t, 2, result.ResourceCount) // compiled_scripts.bin + bg.png
	assert.Contains(t, steps, nmpack.StepPreflight)
	assert.Contains(t, steps, nmpack.StepDone)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	header, err := nmpack.DecodeHeader(data)
	require.NoError(t, err)
	assert.Equal(t, nmpack.FormatVersion, header.Version)
	assert.Equal(t, uint32(2), header.ResourceCount)

	indexBytes := data[header.IndexOffset:]
	entries, err := nmpack.DecodeIndex(indexBytes, header.ResourceCount)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "scripts/compiled_scripts.bin")
}

func TestBuildIsByteIdenticalWithFixedSeedAndTimestamp(t *testing.T) {
	scriptDir, assetDir := writeProjectTree(t)

	buildOnce := func() [32]byte {
		outPath := filepath.Join(t.TempDir(), "demo.nmpack")
		aesKey := nmsecure.New(bytes32(0x42), zap.NewNop())
		defer aesKey.Drop()

		b := nmpack.NewBuilder(nmpack.Options{
			ScriptDirs:         []string{scriptDir},
			AssetDirs:          []string{assetDir},
			OutputPath:         outPath,
			Compression:        nmpack.CompressionBalanced,
			DeterministicBuild: true,
			FixedTimestamp:     1000,
			FixedRandomSeed:    42,
			Encrypt:            true,
			AESKey:             aesKey,
		})
		result, err := b.Build(nil)
		require.NoError(t, err)
		return result.SHA256
	}

	first := buildOnce()
	second := buildOnce()
	assert.Equal(t, first, second, "two deterministic builds with the same fixed seed/timestamp must be byte-identical (P7)")
}

func bytes32(fill byte) []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestBuildCarriesManifestToResult(t *testing.T) {
	scriptDir, assetDir := writeProjectTree(t)
	outPath := filepath.Join(t.TempDir(), "out", "demo.nmpack")

	b := nmpack.NewBuilder(nmpack.Options{
		ScriptDirs: []string{scriptDir},
		AssetDirs:  []string{assetDir},
		OutputPath: outPath,
		Manifest: nmpack.BuildConfig{
			Platform:  nmpack.PlatformLinux,
			BuildType: nmpack.BuildDistribution,
			CodeSigning: nmpack.CodeSigningConfig{
				SignExecutable: true,
				Certificate:    "cert.p12",
			},
		},
	})
	result, err := b.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, nmpack.PlatformLinux, result.Manifest.Platform)
	assert.Equal(t, nmpack.BuildDistribution, result.Manifest.BuildType)
	assert.True(t, result.Manifest.CodeSigning.SignExecutable)
	assert.Equal(t, "cert.p12", result.Manifest.CodeSigning.Certificate)
}

func TestResourceTypeFromExtensionClassifiesLocalizationByDirectory(t *testing.T) {
	assert.Equal(t, nmpack.KindLocalization, nmpack.ResourceTypeFromExtension("locale/en.json"))
	assert.Equal(t, nmpack.KindData, nmpack.ResourceTypeFromExtension("strings/en.json"))
	assert.Equal(t, nmpack.KindImage, nmpack.ResourceTypeFromExtension("assets/bg.png"))
}

func TestBuildFailsOnDuplicateScene(t *testing.T) {
	root := t.TempDir()
	scriptDir := filepath.Join(root, "scripts")
	require.NoError(t, os.MkdirAll(scriptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptDir, "a.nms"), []byte(`
scene main {
	say "a"
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scriptDir, "b.nms"), []byte(`
scene main {
	say "b"
}
`), 0o644))

	b := nmpack.NewBuilder(nmpack.Options{
		ScriptDirs: []string{scriptDir},
		OutputPath: filepath.Join(t.TempDir(), "out.nmpack"),
	})
	_, err := b.Build(nil)
	assert.Error(t, err)
}

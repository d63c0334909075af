package nmpack

import (
	"bytes"
	"compress/zlib"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"io"
	mrand "math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmparser"
	"github.com/novelmind/novelmind/internal/nmsecure"
	"github.com/novelmind/novelmind/internal/nmvalidator"
	"github.com/novelmind/novelmind/internal/nmvalue"
)

// BuildStep names one stage of the pipeline for progress reporting (§4.8).
type BuildStep int

const (
	StepPreflight BuildStep = iota
	StepScriptCompile
	StepAssetProcess
	StepPackAssemble
	StepDone
)

func (s BuildStep) String() string {
	switch s {
	case StepPreflight:
		return "preflight"
	case StepScriptCompile:
		return "script_compile"
	case StepAssetProcess:
		return "asset_process"
	case StepPackAssemble:
		return "pack_assemble"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// BuildProgress is one update published on the builder's progress channel.
type BuildProgress struct {
	Step      BuildStep
	Completed int
	Total     int
	Message   string
}

// BuildResult is what Build returns on success.
type BuildResult struct {
	OutputPath    string
	ResourceCount int
	SHA256        [32]byte
	Manifest      BuildConfig
}

// Options configures one Build invocation (§4.8, §4.9 "Key handling").
type Options struct {
	ScriptDirs       []string
	AssetDirs        []string
	OutputPath       string
	Compression      CompressionLevel
	Encrypt          bool
	AESKey           *nmsecure.Bytes // required when Encrypt is true, 32 bytes
	Sign             bool
	SigningKey       *rsa.PrivateKey // required when Sign is true
	DeterministicBuild bool
	// FixedTimestamp, when DeterministicBuild is set and this is non-zero,
	// becomes the output file's mtime (not part of the wire format itself,
	// which carries no timestamp field) so two builds leave byte-identical
	// *and* metadata-identical artifacts (§4.8 P7).
	FixedTimestamp   int64
	// FixedRandomSeed, when DeterministicBuild is set and this is non-zero,
	// replaces crypto/rand as the source of per-resource AES-GCM IVs with a
	// seeded math/rand stream, so an encrypted deterministic build is a pure
	// function of its inputs (§4.8 P7, "fixed RNG seed").
	FixedRandomSeed  int64
	Logger           *zap.Logger
	// Manifest carries the project's platform/build-type/code-signing tags
	// through to BuildResult; the builder records but never acts on them.
	Manifest         BuildConfig
}

// Builder runs the §4.8 pipeline: preflight, script compile, asset process,
// pack assembly. It is meant to be driven from a dedicated worker goroutine
// the host owns (§5 "Pack builder concurrency"); Build itself is synchronous
// and reports progress via progress, which the caller should buffer or drain
// concurrently.
type Builder struct {
	opts      Options
	cancelled atomic.Bool
	logger    *zap.Logger
}

// NewBuilder constructs a Builder for one Build call.
func NewBuilder(opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{opts: opts, logger: logger}
}

// Cancel requests cooperative cancellation; checked between pipeline stages
// and between files (§5 "Cancellation via an atomic flag").
func (b *Builder) Cancel() { b.cancelled.Store(true) }

type stagedResource struct {
	path string // VFS-relative path
	kind ResourceKind
	data []byte
}

// Build runs the full pipeline, reporting progress on progress (may be nil).
func (b *Builder) Build(progress chan<- BuildProgress) (*BuildResult, error) {
	report := func(p BuildProgress) {
		if progress != nil {
			progress <- p
		}
	}

	b.logger.Info("pack build starting", zap.String("output", b.opts.OutputPath))

	report(BuildProgress{Step: StepPreflight, Message: "validating project"})
	scriptFiles, err := b.preflight()
	if err != nil {
		return nil, fmt.Errorf("nmpack: preflight: %w", err)
	}
	if b.cancelled.Load() {
		return nil, ErrCancelled
	}

	report(BuildProgress{Step: StepScriptCompile, Total: len(scriptFiles)})
	scriptResources, err := b.compileScripts(scriptFiles, func(done int) {
		report(BuildProgress{Step: StepScriptCompile, Completed: done, Total: len(scriptFiles)})
	})
	if err != nil {
		return nil, fmt.Errorf("nmpack: script compile: %w", err)
	}
	if b.cancelled.Load() {
		return nil, ErrCancelled
	}

	assetFiles, err := b.discoverAssets()
	if err != nil {
		return nil, fmt.Errorf("nmpack: discovering assets: %w", err)
	}
	report(BuildProgress{Step: StepAssetProcess, Total: len(assetFiles)})
	assetResources, err := b.processAssets(assetFiles, func(done int) {
		report(BuildProgress{Step: StepAssetProcess, Completed: done, Total: len(assetFiles)})
	})
	if err != nil {
		return nil, fmt.Errorf("nmpack: asset process: %w", err)
	}
	if b.cancelled.Load() {
		return nil, ErrCancelled
	}

	all := append(scriptResources, assetResources...)
	if b.opts.DeterministicBuild {
		sort.Slice(all, func(i, j int) bool { return all[i].path < all[j].path })
	}

	report(BuildProgress{Step: StepPackAssemble, Total: len(all)})
	result, err := b.assemble(all, func(done int) {
		report(BuildProgress{Step: StepPackAssemble, Completed: done, Total: len(all)})
	})
	if err != nil {
		return nil, fmt.Errorf("nmpack: assemble: %w", err)
	}

	report(BuildProgress{Step: StepDone, Message: "build complete"})
	b.logger.Info("pack build finished", zap.Int("resources", result.ResourceCount))
	return result, nil
}

// ErrCancelled is returned by Build when Cancel was called mid-pipeline.
var ErrCancelled = fmt.Errorf("nmpack: build cancelled")

// preflight checks that every .nms file parses and passes the validator
// without errors; compilation happens later, in compileScripts (§4.8 "integrity check of the project: script parse, ...
// reachability"). Localization coverage is out of scope for this pass: the
// spec's runtime localization module is not specified beyond the config
// schema in §6, so there is nothing concrete here to check against.
func (b *Builder) preflight() ([]string, error) {
	var files []string
	for _, dir := range b.opts.ScriptDirs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".nms") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)

	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		prog, err := nmparser.ParseProgram(f, src)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f, err)
		}
		res := nmvalidator.Validate(prog, nmvalidator.DefaultOptions())
		if res.HasErrors() {
			return nil, fmt.Errorf("validating %s: %v", f, res.Errors())
		}
	}
	return files, nil
}

// compileScripts runs every .nms file through lexer/parser/compiler (the
// validator already ran in preflight) and concatenates the results into one scripts/compiled_scripts.bin
// resource (§4.8 stage 2). Scene names across files must be globally unique;
// a collision is a build error rather than a silent overwrite.
func (b *Builder) compileScripts(files []string, onProgress func(int)) ([]stagedResource, error) {
	merged := &nmcompiler.CompiledScript{
		SceneEntryPoints: make(map[string]uint32),
		CharacterDecls:   make(map[string]nmcompiler.CharacterDecl),
		SourceMap:        make(map[uint32]nmcompiler.SourceLoc),
	}
	strs := nmvalue.NewStringTable()

	for i, f := range files {
		if b.cancelled.Load() {
			return nil, ErrCancelled
		}
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		prog, err := nmparser.ParseProgram(f, src)
		if err != nil {
			return nil, err
		}
		cs, err := nmcompiler.Compile(f, prog)
		if err != nil {
			return nil, fmt.Errorf("compiling %s: %w", f, err)
		}

		base := uint32(len(merged.Instructions))
		for name, ip := range cs.SceneEntryPoints {
			if _, dup := merged.SceneEntryPoints[name]; dup {
				return nil, fmt.Errorf("scene %q declared in more than one file (last: %s)", name, f)
			}
			merged.SceneEntryPoints[name] = base + ip
		}
		for id, decl := range cs.CharacterDecls {
			merged.CharacterDecls[id] = decl
		}
		for ip, loc := range cs.SourceMap {
			merged.SourceMap[base+ip] = loc
		}
		for _, instr := range cs.Instructions {
			merged.Instructions = append(merged.Instructions, rebaseInstruction(instr, cs.StringTable, strs, base))
		}
		onProgress(i + 1)
	}

	merged.StringTable = strs
	data, err := nmcompiler.EncodeBytecode(merged, 0)
	if err != nil {
		return nil, err
	}
	return []stagedResource{{path: "scripts/compiled_scripts.bin", kind: KindScript, data: data}}, nil
}

// rebaseInstruction adapts one CompiledScript's instruction to its new
// position inside the merged instruction stream: string-table operands are
// re-interned into the shared table, and jump/scene-target operands (which
// are absolute instruction indices within that script's own stream) are
// shifted by base so they still point at the right place once concatenated.
func rebaseInstruction(instr nmvalue.Instruction, from, to *nmvalue.StringTable, base uint32) nmvalue.Instruction {
	switch instr.Op {
	case nmvalue.PUSH_STRING, nmvalue.LOAD_GLOBAL, nmvalue.STORE_GLOBAL,
		nmvalue.SET_FLAG, nmvalue.CHECK_FLAG, nmvalue.CALL:
		s, _ := from.Get(instr.Operand)
		return nmvalue.Instruction{Op: instr.Op, Operand: to.Add(s)}
	case nmvalue.JUMP, nmvalue.JUMP_IF, nmvalue.JUMP_IF_NOT, nmvalue.GOTO_SCENE:
		return nmvalue.Instruction{Op: instr.Op, Operand: base + instr.Operand}
	default:
		return instr
	}
}

// discoverAssets walks AssetDirs and returns every file's path, sorted;
// processAssets later normalizes each to a VFS-relative path rooted at its
// asset directory's base name (§4.8 stage 3).
func (b *Builder) discoverAssets() ([]string, error) {
	var files []string
	for _, dir := range b.opts.AssetDirs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// processAssets reads each file as bytes, inferring type by extension and
// normalizing its path; it parallelizes across files via
// golang.org/x/sync/errgroup and re-sorts by VFS path afterward so
// determinism survives the concurrent fan-out (§4.8, §5 "must re-sort
// outputs by VFS path before serialization").
func (b *Builder) processAssets(files []string, onProgress func(int)) ([]stagedResource, error) {
	results := make([]stagedResource, len(files))
	var done atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(8)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if b.cancelled.Load() {
				return ErrCancelled
			}
			data, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("reading asset %s: %w", f, err)
			}
			vfsPath := normalizeAssetPath(f, b.opts.AssetDirs)
			results[i] = stagedResource{path: vfsPath, kind: ResourceTypeFromExtension(vfsPath), data: data}
			onProgress(int(done.Add(1)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })
	return results, nil
}

func normalizeAssetPath(path string, roots []string) string {
	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(filepath.Join(filepath.Base(root), rel))
		}
	}
	return filepath.ToSlash(path)
}

// assemble implements stage 4-5 (§4.8): compress, encrypt, checksum, and
// write the header+index+data (+signature) to OutputPath.
func (b *Builder) assemble(resources []stagedResource, onProgress func(int)) (*BuildResult, error) {
	var aesKey []byte
	if b.opts.Encrypt {
		if b.opts.AESKey == nil {
			return nil, fmt.Errorf("nmpack: encryption enabled but no AES key provided")
		}
		b.opts.AESKey.Borrow(func(k []byte) { aesKey = append([]byte(nil), k...) })
		defer zeroBytes(aesKey)
		if len(aesKey) != 32 {
			return nil, fmt.Errorf("nmpack: AES key must be 32 bytes, got %d", len(aesKey))
		}
	}

	var dataBuf bytes.Buffer
	entries := make([]IndexEntry, 0, len(resources))
	ivSource := b.ivSource()

	for i, res := range resources {
		if b.cancelled.Load() {
			return nil, ErrCancelled
		}
		originalCRC := crc32.ChecksumIEEE(res.data)

		stored := res.data
		var flags ResFlag
		if b.opts.Compression != CompressionNone {
			var compBuf bytes.Buffer
			zw, err := zlib.NewWriterLevel(&compBuf, int(b.opts.Compression))
			if err != nil {
				return nil, err
			}
			if _, err := zw.Write(res.data); err != nil {
				return nil, err
			}
			if err := zw.Close(); err != nil {
				return nil, err
			}
			stored = compBuf.Bytes()
			flags |= FlagCompressed
		}

		var iv [12]byte
		if b.opts.Encrypt {
			block, err := aes.NewCipher(aesKey)
			if err != nil {
				return nil, err
			}
			gcm, err := cipher.NewGCM(block)
			if err != nil {
				return nil, err
			}
			if _, err := io.ReadFull(ivSource, iv[:]); err != nil {
				return nil, fmt.Errorf("generating IV: %w", err)
			}
			stored = gcm.Seal(nil, iv[:], stored, nil)
			flags |= FlagEncrypted
		}

		if res.kind != KindScript {
			flags |= FlagStreamable
		}

		sha := sha256.Sum256(stored)
		offset := uint64(dataBuf.Len())
		dataBuf.Write(stored)

		entries = append(entries, IndexEntry{
			Path:           res.path,
			Kind:           res.kind,
			Flags:          flags,
			Offset:         offset,
			CompressedSize: uint64(len(stored)),
			OriginalSize:   uint64(len(res.data)),
			CRC32:          originalCRC,
			SHA256:         sha,
			IV:             iv,
		})
		onProgress(i + 1)
	}

	indexBytes, err := EncodeIndex(entries)
	if err != nil {
		return nil, err
	}
	indexCRC := crc32.ChecksumIEEE(indexBytes)

	header := Header{
		Version:       FormatVersion,
		ResourceCount: uint32(len(entries)),
		DataOffset:    HeaderSize,
		IndexOffset:   HeaderSize + uint64(dataBuf.Len()),
		IndexCRC32:    indexCRC,
	}
	headerBytes, err := EncodeHeader(header)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Write(headerBytes)
	out.Write(dataBuf.Bytes())
	out.Write(indexBytes)

	if b.opts.Sign {
		if b.opts.SigningKey == nil {
			return nil, fmt.Errorf("nmpack: signing enabled but no signing key provided")
		}
		sig, err := signBytes(b.opts.SigningKey, out.Bytes())
		if err != nil {
			return nil, fmt.Errorf("signing pack: %w", err)
		}
		if err := writeU32(&out, uint32(len(sig))); err != nil {
			return nil, err
		}
		out.Write(sig)
	}

	if err := os.MkdirAll(filepath.Dir(b.opts.OutputPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(b.opts.OutputPath, out.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("nmpack: writing %s: %w", b.opts.OutputPath, err)
	}
	if b.opts.DeterministicBuild && b.opts.FixedTimestamp != 0 {
		t := time.Unix(b.opts.FixedTimestamp, 0)
		if err := os.Chtimes(b.opts.OutputPath, t, t); err != nil {
			return nil, fmt.Errorf("nmpack: setting fixed mtime on %s: %w", b.opts.OutputPath, err)
		}
	}

	return &BuildResult{
		OutputPath:    b.opts.OutputPath,
		ResourceCount: len(entries),
		SHA256:        sha256.Sum256(out.Bytes()),
		Manifest:      b.opts.Manifest,
	}, nil
}

// ivSource returns the stream assemble reads AES-GCM IVs from: crypto/rand
// normally, or a math/rand stream seeded from FixedRandomSeed when
// DeterministicBuild wants a reproducible build (§4.8 P7). The same stream
// is read sequentially across all resources in one Build call so no two
// resources in the same pack ever reuse an IV under the same key, even
// though the stream itself is reproducible run to run.
func (b *Builder) ivSource() io.Reader {
	if b.opts.DeterministicBuild && b.opts.FixedRandomSeed != 0 {
		return mrand.New(mrand.NewSource(b.opts.FixedRandomSeed))
	}
	return rand.Reader
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// signBytes signs data's SHA-256 digest with an RSA private key, PKCS#1 v1.5
// (§4.8 "an RSA signature of the full bytes ... is appended").
func signBytes(key *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

// LoadRSAPrivateKeyPEM parses a PKCS#1 or PKCS#8 RSA private key from PEM
// bytes, as read from the path a project's signing configuration names.
func LoadRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("nmpack: no PEM block found in signing key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("nmpack: parsing RSA private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("nmpack: PEM key is not an RSA private key")
	}
	return rsaKey, nil
}


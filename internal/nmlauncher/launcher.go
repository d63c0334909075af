// Package nmlauncher wires together config, VFS, and the script runtime at
// startup (§4.10 "Config & launcher"): parse runtime config, merge user
// overrides and CLI flags, open the VFS over every pack named in
// packs_index.json, read the compiled bytecode resource, and hand it to a
// freshly constructed script runtime.
package nmlauncher

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/novelmind/novelmind/internal/nmcompiler"
	"github.com/novelmind/novelmind/internal/nmconfig"
	"github.com/novelmind/novelmind/internal/nmruntime"
	"github.com/novelmind/novelmind/internal/nmvfs"
	"github.com/novelmind/novelmind/internal/nmvm"
)

// ErrorCode is one of the launcher's §7 init-failure kinds.
type ErrorCode string

const (
	InitLog    ErrorCode = "INIT_LOG"
	InitConfig ErrorCode = "INIT_CONFIG"
	InitDirs   ErrorCode = "INIT_DIRS"
	InitPacks  ErrorCode = "INIT_PACKS"
	InitInput  ErrorCode = "INIT_INPUT"
	InitSave   ErrorCode = "INIT_SAVE"
	InitLocale ErrorCode = "INIT_LOCALE"
	InitScript ErrorCode = "INIT_SCRIPT"
	Runtime    ErrorCode = "RUNTIME"
)

// Error is the launcher's user-facing error shape (§7: "carry {code,
// message, details, suggestion} for user-facing display").
type Error struct {
	Code       ErrorCode
	Message    string
	Details    string
	Suggestion string
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", e.Code, e.Message, e.Details, e.Suggestion)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

func fail(code ErrorCode, message string, err error, suggestion string) *Error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &Error{Code: code, Message: message, Details: details, Suggestion: suggestion}
}

// Options holds the CLI overrides §4.10's argument list can set on top of
// the merged runtime config.
type Options struct {
	ConfigPath string // --config
	Lang       string // --lang
	Scene      string // --scene
	Debug      bool   // --debug
	Verbose    bool   // --verbose
	Windowed   bool   // --windowed
}

// packsIndex mirrors packs_index.json.
type packsIndex struct {
	Packs []nmconfig.PackEntry `json:"packs"`
}

// Launcher is the fully wired set of services a host drives after startup:
// config, logger, VFS, and the script runtime ready to Load.
type Launcher struct {
	Config  *nmconfig.Config
	Logger  *zap.Logger
	VFS     *nmvfs.VFS
	Runtime *nmruntime.Runtime

	basePath string
	aesKey   []byte
	pubKey   *rsa.PublicKey
}

// Initialize runs the full startup sequence of §4.10 against basePath (the
// game's base directory, containing runtime_config.json, a packs/
// directory, and config/saves/logs). sink receives the runtime's host
// callbacks (presentation layer); pass nmvm.NopCallbacks{} for a headless
// run. aesKey may be nil when no pack in the index is encrypted; pubKey may
// be nil to skip pack signature verification.
func Initialize(basePath string, opts Options, sink nmvm.HostCallbacks, aesKey []byte, pubKey *rsa.PublicKey) (*Launcher, error) {
	l := &Launcher{basePath: basePath, aesKey: aesKey, pubKey: pubKey}

	if err := l.initDirs(); err != nil {
		return nil, err
	}
	if err := l.initLog(opts); err != nil {
		return nil, err
	}
	if err := l.initConfig(opts); err != nil {
		return nil, err
	}
	if err := l.initPacks(); err != nil {
		return nil, err
	}
	l.initInput()
	if err := l.initLocale(opts); err != nil {
		return nil, err
	}
	if err := l.initScript(sink); err != nil {
		return nil, err
	}

	return l, nil
}

// initDirs creates config/, saves/, logs/ under basePath (§6 "Persisted
// state layout").
func (l *Launcher) initDirs() error {
	for _, dir := range []string{"config", "saves", "logs"} {
		if err := os.MkdirAll(filepath.Join(l.basePath, dir), 0o755); err != nil {
			return fail(InitDirs, "creating persisted-state directories", err,
				"check that the game base path is writable")
		}
	}
	return nil
}

// initLog builds the zap logger, at debug level when --verbose is set.
func (l *Launcher) initLog(opts Options) error {
	cfg := zap.NewProductionConfig()
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{filepath.Join(l.basePath, "logs", "novelmind.log"), "stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return fail(InitLog, "initializing logger", err, "")
	}
	l.Logger = logger
	return nil
}

// initConfig loads runtime_config.json/runtime_user.json and applies CLI
// overrides on top of the merged result.
func (l *Launcher) initConfig(opts Options) error {
	basePath := opts.ConfigPath
	if basePath == "" {
		basePath = filepath.Join(l.basePath, "config", "runtime_config.json")
	}
	userPath := filepath.Join(l.basePath, "config", "runtime_user.json")

	cfg, err := nmconfig.Load(basePath, userPath)
	if err != nil {
		return fail(InitConfig, "loading runtime configuration", err,
			"verify runtime_config.json exists and is valid JSON")
	}

	if opts.Lang != "" {
		cfg.Localization.CurrentLocale = opts.Lang
	}
	if opts.Scene != "" {
		cfg.Game.StartScene = opts.Scene
	}
	if opts.Debug {
		cfg.Debug.Enabled = true
		cfg.Game.DebugMode = true
	}
	if opts.Windowed {
		cfg.Window.Windowed = true
		cfg.Window.Fullscreen = false
	}

	l.Config = cfg
	return nil
}

// initPacks reads packs_index.json and loads every listed pack into the VFS
// in the order it appears; per §7 a pack that fails to load is skipped with
// a warning rather than aborting startup, so one corrupt DLC pack cannot
// take down a run the base game would otherwise serve fine.
func (l *Launcher) initPacks() error {
	indexPath := filepath.Join(l.Config.Packs.Directory, "packs_index.json")
	if l.Config.Packs.Directory == "" {
		indexPath = filepath.Join(l.basePath, "packs", "packs_index.json")
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return fail(InitPacks, "reading packs_index.json", err,
			"verify the packs directory and packs_index.json exist")
	}
	var idx packsIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fail(InitPacks, "parsing packs_index.json", err, "")
	}

	vfs, err := nmvfs.New(nmvfs.Options{CacheSize: 256, Logger: l.Logger, PublicKey: l.pubKey})
	if err != nil {
		return fail(InitPacks, "creating VFS", err, "")
	}

	packsDir := filepath.Dir(indexPath)
	for _, p := range idx.Packs {
		path := p.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(packsDir, path)
		}
		if err := vfs.LoadPack(path, packTypeFromString(p.Type), p.Priority); err != nil {
			if l.Logger != nil {
				l.Logger.Warn("skipping pack that failed to load",
					zap.String("path", path), zap.Error(err))
			}
			continue
		}
	}

	if vfs.LayerCount() == 0 {
		return fail(InitPacks, "no packs loaded", fmt.Errorf("every entry in packs_index.json failed to load"),
			"check pack file integrity and encryption keys")
	}

	l.VFS = vfs
	return nil
}

func packTypeFromString(s string) nmvfs.PackType {
	switch s {
	case "patch":
		return nmvfs.TypePatch
	case "dlc":
		return nmvfs.TypeDLC
	case "language":
		return nmvfs.TypeLanguage
	case "mod":
		return nmvfs.TypeMod
	default:
		return nmvfs.TypeBase
	}
}

// initInput wires the merged config's input bindings; §4.10's CLI has no
// override for this section, so it is a pass-through validation step today,
// kept as its own init stage since §7 names INIT_INPUT as a distinct
// failure kind a future binding-conflict check would report under.
func (l *Launcher) initInput() {
	if l.Config.Input.Bindings == nil {
		l.Config.Input.Bindings = map[string]string{}
	}
}

// initLocale validates the selected locale is either the fallback or in the
// configured Available list.
func (l *Launcher) initLocale(opts Options) error {
	loc := l.Config.Localization
	if loc.CurrentLocale == loc.FallbackLocale {
		return nil
	}
	for _, avail := range loc.Available {
		if avail == loc.CurrentLocale {
			return nil
		}
	}
	if len(loc.Available) == 0 {
		return nil
	}
	return fail(InitLocale, "unsupported locale", fmt.Errorf("locale %q is not in the available list", loc.CurrentLocale),
		fmt.Sprintf("falling back to %q", loc.FallbackLocale))
}

// initScript reads the compiled bytecode resource from the VFS and
// constructs the script runtime, loaded and ready to GotoScene.
func (l *Launcher) initScript(sink nmvm.HostCallbacks) error {
	data, err := l.VFS.ReadAll("scripts/compiled_scripts.bin", l.aesKey)
	if err != nil {
		return fail(InitScript, "reading compiled script bytecode", err,
			"rebuild the pack with nmpack")
	}
	script, err := nmcompiler.DecodeBytecode(data)
	if err != nil {
		return fail(InitScript, "decoding compiled script bytecode", err, "")
	}

	rt := nmruntime.New(script, sink, nmvm.DefaultLimits())
	if err := rt.Load(); err != nil {
		return fail(InitScript, "loading script runtime", err, "")
	}

	startScene := l.Config.Game.StartScene
	if startScene != "" {
		if err := rt.GotoScene(startScene); err != nil {
			return fail(InitScript, "entering start scene", err,
				fmt.Sprintf("verify scene %q exists in the compiled script", startScene))
		}
	}

	l.Runtime = rt
	return nil
}

// Shutdown releases the VFS's mapped files and flushes the logger.
func (l *Launcher) Shutdown() {
	if l.VFS != nil {
		_ = l.VFS.Close()
	}
	if l.Logger != nil {
		_ = l.Logger.Sync()
	}
}

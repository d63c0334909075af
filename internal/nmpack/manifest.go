package nmpack

// BuildPlatform is the target platform tag the project manifest carries
// through a build, grounded on the original build system's BuildConfig
// (build_system.hpp); the builder records it but never invokes a
// platform-specific bundler (out of scope, §1).
type BuildPlatform uint8

const (
	PlatformWindows BuildPlatform = iota
	PlatformLinux
	PlatformMacOS
	PlatformWeb
	PlatformAndroid
	PlatformIOS
	PlatformAll
)

func (p BuildPlatform) String() string {
	switch p {
	case PlatformLinux:
		return "linux"
	case PlatformMacOS:
		return "macos"
	case PlatformWeb:
		return "web"
	case PlatformAndroid:
		return "android"
	case PlatformIOS:
		return "ios"
	case PlatformAll:
		return "all"
	default:
		return "windows"
	}
}

// ParseBuildPlatform maps a project file's named platform to a
// BuildPlatform; an empty or unrecognized name falls back to Windows,
// matching the original's default.
func ParseBuildPlatform(name string) BuildPlatform {
	switch name {
	case "linux":
		return PlatformLinux
	case "macos":
		return PlatformMacOS
	case "web":
		return PlatformWeb
	case "android":
		return PlatformAndroid
	case "ios":
		return PlatformIOS
	case "all":
		return PlatformAll
	default:
		return PlatformWindows
	}
}

// BuildType affects optimization/debug-info intent recorded in the
// manifest; the builder itself does not compile native code, so this tag
// is purely descriptive passthrough for downstream tooling.
type BuildType uint8

const (
	BuildDebug BuildType = iota
	BuildRelease
	BuildDistribution
)

func (t BuildType) String() string {
	switch t {
	case BuildDebug:
		return "debug"
	case BuildDistribution:
		return "distribution"
	default:
		return "release"
	}
}

// ParseBuildType maps a project file's named build type to a BuildType; an
// empty or unrecognized name falls back to Release.
func ParseBuildType(name string) BuildType {
	switch name {
	case "debug":
		return BuildDebug
	case "distribution":
		return BuildDistribution
	default:
		return BuildRelease
	}
}

// CodeSigningConfig carries executable code-signing parameters through the
// project manifest untouched (original's signExecutable/signingCertificate
// etc.); BuildSystem never shells out to a signing tool, so these fields
// only round-trip from novelmind.project.yaml to BuildResult.Manifest.
type CodeSigningConfig struct {
	SignExecutable bool
	Certificate    string
	Password       string
	Entitlements   string
	TeamID         string
	TimestampURL   string
}

// BuildConfig is the project-level manifest the pack builder records
// alongside its output: the platform/build-type/code-signing fields
// spec.md's distillation compressed out of the original BuildConfig.
type BuildConfig struct {
	Platform    BuildPlatform
	BuildType   BuildType
	CodeSigning CodeSigningConfig
}

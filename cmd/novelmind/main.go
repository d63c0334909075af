// Command novelmind is the game launcher (§4.10): it parses runtime
// config, merges user overrides, opens the VFS over the packs named in
// packs_index.json, and hands the compiled script to the runtime.
package main

import (
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/novelmind/novelmind/internal/nmlauncher"
	"github.com/novelmind/novelmind/internal/nmvm"
)

var (
	// placeholder values, replaced on build
	version   = "{v}"
	buildDate = "{d}"
)

const binName = "novelmind"

var longUsage = fmt.Sprintf(`usage: %s [<option>...] <game-path>
       %[1]s -h|--help
       %[1]s -v|--version

Launches a NovelMind game rooted at <game-path>.

Valid options are:
       --config <path>    override base config path
       --lang <locale>    override locale
       --scene <name>     override start scene
       --debug            enable debug mode
       --verbose          debug-level logging
       --windowed         force windowed
       -h --help          show this help and exit
       -v --version       print version and exit
`, binName)

// cmd holds the parsed CLI flags, tagged for github.com/mna/mainer's
// reflection-based Parser (teacher's pattern in internal/maincmd).
type cmd struct {
	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Config   string `flag:"config"`
	Lang     string `flag:"lang"`
	Scene    string `flag:"scene"`
	Debug    bool   `flag:"debug"`
	Verbose  bool   `flag:"verbose"`
	Windowed bool   `flag:"windowed"`

	args []string
}

func (c *cmd) SetArgs(args []string)          { c.args = args }
func (c *cmd) SetFlags(flags map[string]bool) {}

func (c *cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return fmt.Errorf("no game path specified")
	}
	return nil
}

func main() {
	os.Exit(run(os.Args, mainer.CurrentStdio()))
}

func run(args []string, stdio mainer.Stdio) int {
	c := &cmd{}
	p := mainer.Parser{EnvVars: false, EnvPrefix: binName + "_"}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, longUsage)
		return 1
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return 0
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, version, buildDate)
		return 0
	}

	opts := nmlauncher.Options{
		ConfigPath: c.Config,
		Lang:       c.Lang,
		Scene:      c.Scene,
		Debug:      c.Debug,
		Verbose:    c.Verbose,
		Windowed:   c.Windowed,
	}

	l, err := nmlauncher.Initialize(c.args[0], opts, nmvm.NopCallbacks{}, nil, nil)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return 1
	}
	defer l.Shutdown()

	l.Logger.Info("novelmind launched")
	return 0
}

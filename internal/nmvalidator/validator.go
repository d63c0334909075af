// Package nmvalidator implements the static checks the specification
// requires over an AST before it is handed to the compiler (§4.3): unused
// symbol detection, duplicate scene/character detection, goto-target
// validation with near-match suggestions, and unreachable-scene detection.
// Its single-pass walk-and-collect shape mirrors the teacher's
// lang/resolver package, simplified because NM Script has no lexical
// scoping to resolve — only a flat namespace of scene names, character ids
// and global variables/flags.
package nmvalidator

import (
	"fmt"
	"sort"

	"github.com/novelmind/novelmind/internal/nmast"
	"github.com/novelmind/novelmind/internal/nmtoken"
)

// Options configures which checks produce warnings vs are skipped
// (§4.3: "Reports unused characters/scenes as warnings (configurable)").
type Options struct {
	WarnUnusedCharacters bool
	WarnUnusedScenes     bool
	WarnUnreachableScenes bool
	EntryScene           string // defaults to "main"
}

func DefaultOptions() Options {
	return Options{WarnUnusedCharacters: true, WarnUnusedScenes: true, WarnUnreachableScenes: true, EntryScene: "main"}
}

// Diagnostic is a single validator finding; Warning diagnostics do not
// block compilation, non-Warning ones do (§7).
type Diagnostic struct {
	Pos     nmtoken.Position
	Kind    string
	Message string
	Warning bool
}

func (d Diagnostic) Error() string { return fmt.Sprintf("%s: %s: %s", d.Pos, d.Kind, d.Message) }

// Result is the outcome of validating a Program.
type Result struct {
	Diagnostics []Diagnostic
}

// Errors returns only the non-warning diagnostics.
func (r Result) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if !d.Warning {
			out = append(out, d)
		}
	}
	return out
}

func (r Result) HasErrors() bool { return len(r.Errors()) > 0 }

type validator struct {
	opts Options
	res  Result

	characters     map[string]nmtoken.Position
	scenes         map[string]nmtoken.Position
	sceneUsed      map[string]bool
	characterUsed  map[string]bool
	gotoTargets    []gotoRef
}

type gotoRef struct {
	Pos    nmtoken.Position
	Target string
}

// Validate walks prog once, collecting diagnostics per §4.3.
func Validate(prog *nmast.Program, opts Options) Result {
	if opts.EntryScene == "" {
		opts.EntryScene = "main"
	}
	v := &validator{
		opts:          opts,
		characters:    make(map[string]nmtoken.Position),
		scenes:        make(map[string]nmtoken.Position),
		sceneUsed:     make(map[string]bool),
		characterUsed: make(map[string]bool),
	}
	v.collectDecls(prog)
	v.checkBody(prog.GlobalStmts)
	for _, sc := range prog.Scenes {
		v.checkBody(sc.Body)
	}
	v.checkGotoTargets()
	if opts.WarnUnusedCharacters {
		v.checkUnusedCharacters()
	}
	if opts.WarnUnusedScenes || opts.WarnUnreachableScenes {
		v.checkSceneReachability(prog)
	}
	sort.SliceStable(v.res.Diagnostics, func(i, j int) bool {
		a, b := v.res.Diagnostics[i].Pos, v.res.Diagnostics[j].Pos
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return v.res
}

func (v *validator) addErr(pos nmtoken.Position, kind, format string, args ...any) {
	v.res.Diagnostics = append(v.res.Diagnostics, Diagnostic{Pos: pos, Kind: kind, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) addWarn(pos nmtoken.Position, kind, format string, args ...any) {
	v.res.Diagnostics = append(v.res.Diagnostics, Diagnostic{Pos: pos, Kind: kind, Message: fmt.Sprintf(format, args...), Warning: true})
}

func (v *validator) collectDecls(prog *nmast.Program) {
	for _, c := range prog.Characters {
		if first, ok := v.characters[c.ID]; ok {
			v.addWarn(c.Pos(), "DuplicateCharacter", "character %q redeclared (first declared at %s)", c.ID, first)
			continue
		}
		v.characters[c.ID] = c.Pos()
	}
	for _, sc := range prog.Scenes {
		if first, ok := v.scenes[sc.Name]; ok {
			v.addErr(sc.Pos(), "DuplicateScene", "scene %q redeclared (first declared at %s)", sc.Name, first)
			continue
		}
		v.scenes[sc.Name] = sc.Pos()
	}
}

// checkBody walks statements for character/goto usage, recursing into
// nested control-flow bodies (if/choice).
func (v *validator) checkBody(stmts []nmast.Stmt) {
	for _, s := range stmts {
		switch st := s.(type) {
		case *nmast.ShowStmt:
			if st.Target != nmast.ShowBackground {
				v.characterUsed[st.Identifier] = true
			}
		case *nmast.HideStmt:
			v.characterUsed[st.Identifier] = true
		case *nmast.SayStmt:
			if st.HasSpeaker {
				v.characterUsed[st.Speaker] = true
			}
		case *nmast.MoveStmt:
			v.characterUsed[st.CharacterID] = true
		case *nmast.GotoStmt:
			v.gotoTargets = append(v.gotoTargets, gotoRef{Pos: st.Pos(), Target: st.Target})
		case *nmast.IfStmt:
			v.checkBody(st.Then)
			v.checkBody(st.Else)
		case *nmast.BlockStmt:
			v.checkBody(st.Stmts)
		case *nmast.ChoiceStmt:
			for _, opt := range st.Options {
				if opt.HasGoto {
					v.gotoTargets = append(v.gotoTargets, gotoRef{Pos: st.Pos(), Target: opt.GotoTarget})
				} else {
					v.checkBody(opt.Body)
				}
			}
		}
	}
}

func (v *validator) checkGotoTargets() {
	names := v.sceneNames()
	for _, ref := range v.gotoTargets {
		if _, ok := v.scenes[ref.Target]; ok {
			v.sceneUsed[ref.Target] = true
			continue
		}
		suggestions := nearMatches(ref.Target, names, 2, 3)
		msg := fmt.Sprintf("unknown goto target %q", ref.Target)
		if len(suggestions) > 0 {
			msg += fmt.Sprintf(" (did you mean: %v?)", suggestions)
		}
		v.addErr(ref.Pos, "UnknownGotoTarget", "%s", msg)
	}
}

func (v *validator) checkUnusedCharacters() {
	ids := make([]string, 0, len(v.characters))
	for id := range v.characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !v.characterUsed[id] {
			v.addWarn(v.characters[id], "UnusedSymbol", "character %q is declared but never shown, hidden, moved or used as a speaker", id)
		}
	}
}

// checkSceneReachability marks reachable scenes from goto edges and reports
// unused (never targeted, configurable warning) and unreachable (no
// incoming goto and not the entry scene) scenes.
func (v *validator) checkSceneReachability(prog *nmast.Program) {
	names := v.sceneNames()
	for _, name := range names {
		if name == v.opts.EntryScene {
			continue
		}
		if v.opts.WarnUnusedScenes && !v.sceneUsed[name] {
			v.addWarn(v.scenes[name], "UnusedSymbol", "scene %q is never targeted by a goto", name)
		}
		if v.opts.WarnUnreachableScenes && !v.sceneUsed[name] {
			v.addWarn(v.scenes[name], "UnreachableScene", "scene %q has no incoming goto and is not the entry scene %q", name, v.opts.EntryScene)
		}
	}
}

func (v *validator) sceneNames() []string {
	names := make([]string, 0, len(v.scenes))
	for n := range v.scenes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NearMatches returns up to limit candidates within maxDist edit distance of
// target, sorted by distance then name (§4.3, §7: "up to 3 edit-distance-2
// suggestions"). Exported so the compiler can reuse it for InvalidGotoTarget
// diagnostics (§4.4).
func NearMatches(target string, candidates []string, maxDist, limit int) []string {
	return nearMatches(target, candidates, maxDist, limit)
}

func nearMatches(target string, candidates []string, maxDist, limit int) []string {
	type scored struct {
		name string
		dist int
	}
	var hits []scored
	for _, c := range candidates {
		d := editDistance(target, c)
		if d <= maxDist {
			hits = append(hits, scored{c, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].name < hits[j].name
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}

// editDistance is the classic Levenshtein distance via dynamic programming.
// No library in the retrieval pack provides this (a handful of lines, no
// suitable ecosystem dependency for it), so it stays a small stdlib helper.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

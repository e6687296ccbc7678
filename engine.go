// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-logr/logr"
)

// loadedFile is one taskfile's parsed, dead-code-eliminated op stream. Files
// are kept in load order: included files load before the file that includes
// them finishes loading, matching original_source's depth-first include
// walk (§4.B).
type loadedFile struct {
	Name string
	Ops  []OpItem
	Src  []string // physical source lines, for --show and error context
}

// recipeEntry locates one concrete recipe body within the loaded-file set.
type recipeEntry struct {
	File  *loadedFile
	Idx   int // index of the Recipe op within File.Ops
	Op    Recipe
	Desc  RecipeDesc
}

// Engine is the single run of one taskfile (plus its includes): loaded
// files, resolved variables, the shared condition stack, and the handful of
// engine-scoped knobs (active shell, cd history) that built-ins mutate.
type Engine struct {
	Vars *VarMgr
	opts *RunOpts
	log  logr.Logger

	shellTokens []string
	cwdHistory  []string

	condStack []*condFrame
	curFile   string
	curLine   int

	files         []*loadedFile
	includedPaths map[string]bool

	recipes  map[string]*recipeEntry
	order    []string // recipe names in first-seen order
	disabled []RecipeDesc

	recursionGuard map[string]bool
}

// NewEngine constructs an Engine ready to load taskfiles into.
func NewEngine(opts *RunOpts, log logr.Logger) *Engine {
	if opts == nil {
		opts = NewRunOpts()
	}
	cwd, _ := os.Getwd()
	return &Engine{
		Vars:           NewVarMgr(),
		opts:           opts,
		log:            log,
		shellTokens:    defaultShellTokens(),
		cwdHistory:     []string{cwd},
		includedPaths:  make(map[string]bool),
		recipes:        make(map[string]*recipeEntry),
		recursionGuard: make(map[string]bool),
	}
}

// LoadFile reads path, parses it, runs dead-code elimination, recursively
// loads any Include ops found in the header (an include inside a recipe body
// is not loaded here; the VM rejects it when that body runs), then indexes
// the file's recipes. Matches original_source's eager, depth-first load
// order: an included file joins the file list and its recipes register
// before the including file's own do.
func (e *Engine) LoadFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return newErr(KindFileOpen, fmt.Sprintf("cannot resolve path %q: %v", path, err))
	}
	if e.includedPaths[abs] {
		return newErr(KindIncludeRecursion, fmt.Sprintf("%q is already being loaded (include cycle)", path))
	}
	e.includedPaths[abs] = true

	lines, err := readLines(path)
	if err != nil {
		return newErr(KindFileRead, fmt.Sprintf("cannot read %q: %v", path, err))
	}

	ops, err := Parse(path, lines, e.opts)
	if err != nil {
		return err
	}
	retained, disabled, err := eliminateDeadCode(path, ops)
	if err != nil {
		return err
	}

	lf := &loadedFile{Name: path, Ops: retained, Src: lines}

	// Walk the header (everything before the first Recipe) for Include ops,
	// loading each included file before continuing — includes after the
	// first Recipe are not loaded.
	for _, it := range retained {
		if inc, ok := it.Op.(Include); ok {
			target := e.Vars.Interpolate(inc.Path, true)
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(path), target)
			}
			if err := e.LoadFile(target); err != nil {
				if inc.Flags&FlagPass != 0 {
					e.log.Error(err, "skipping included file", "path", target)
					continue
				}
				return err
			}
		}
		if _, ok := it.Op.(Recipe); ok {
			break
		}
	}

	e.files = append(e.files, lf)
	e.indexRecipes(lf)
	e.disabled = append(e.disabled, disabled...)
	return nil
}

func (e *Engine) indexRecipes(lf *loadedFile) {
	for i, it := range lf.Ops {
		rop, ok := it.Op.(Recipe)
		if !ok {
			continue
		}
		desc := RecipeDesc{
			Name: rop.Name, Args: rop.Args, Deps: rop.Deps,
			Line: it.Line, File: lf.Name, Enabled: true,
		}
		if prev := e.findDocAndFeatBefore(lf, i); prev != nil {
			desc.Desc, desc.Feat = prev[0], prev[1]
		}
		if _, exists := e.recipes[rop.Name]; !exists {
			e.order = append(e.order, rop.Name)
		}
		e.recipes[rop.Name] = &recipeEntry{File: lf, Idx: i, Op: rop, Desc: desc}
	}
}

// findDocAndFeatBefore scans immediately preceding DocComment/Feature ops
// retained right before a Recipe op (deadcode.go flushes them adjacently).
func (e *Engine) findDocAndFeatBefore(lf *loadedFile, recipeIdx int) []string {
	doc, feat := "", ""
	for i := recipeIdx - 1; i >= 0; i-- {
		switch t := lf.Ops[i].Op.(type) {
		case DocComment:
			doc = t.Text
		case Feature:
			if feat == "" {
				feat = t.Source
			}
			continue
		case Recipe:
			i = -1
		default:
			i = -1
		}
		if i < 0 {
			break
		}
	}
	return []string{doc, feat}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RunHeaders executes every loaded file's header (everything before its
// first Recipe) in load order — included files first, matching LoadFile's
// eager load order.
func (e *Engine) RunHeaders() error {
	for _, lf := range e.files {
		if err := e.execFrom(lf, 0, 0); err != nil {
			return err
		}
	}
	return nil
}

// Recipes returns every enabled recipe's descriptor, sorted by name, for
// -l/--list.
func (e *Engine) Recipes() []RecipeDesc {
	out := make([]RecipeDesc, 0, len(e.recipes))
	for _, re := range e.recipes {
		out = append(out, re.Desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DisabledRecipes returns every recipe a feature guard disabled, sorted by
// name, for -a/--all.
func (e *Engine) DisabledRecipes() []RecipeDesc {
	out := append([]RecipeDesc(nil), e.disabled...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UserFeatures returns every feature name referenced by any guard seen
// while loading, sorted, for --list-features.
func (e *Engine) UserFeatures() []string {
	out := e.opts.UserFeatures()
	sort.Strings(out)
	return out
}

// RecipeContent returns the verbatim source lines of one recipe, from its
// declaration line up to the line before the next retained recipe of the
// same file (or the end of the file), for --show.
func (e *Engine) RecipeContent(name string) (string, error) {
	re, ok := e.recipes[name]
	if !ok {
		return "", newErr(KindRecipeNotFound, fmt.Sprintf("no recipe named %q", name))
	}
	end := len(re.File.Ops)
	for i := re.Idx + 1; i < len(re.File.Ops); i++ {
		if _, ok := re.File.Ops[i].Op.(Recipe); ok {
			end = i
			break
		}
	}
	startLine := re.File.Ops[re.Idx].Line
	stopLine := len(re.File.Src)
	if end < len(re.File.Ops) {
		stopLine = re.File.Ops[end].Line - 1
	}
	var out string
	for l := startLine; l <= stopLine && l-1 < len(re.File.Src); l++ {
		out += re.File.Src[l-1] + "\n"
	}
	return out, nil
}

// defaultRecipeName is run when no recipe name is given on the command
// line (§4.H "run_recipe: if name is empty, target _default; missing
// _default is silently not an error").
const defaultRecipeName = "_default"

// Run resolves name (or _default when name is empty) and executes it:
// the initialization pass (every loaded file's header, deepest include
// first), the linearized dependency list built by DFS, then the recipe
// itself — each queued recipe bound to the same CLI free args (§4.H).
func (e *Engine) Run(name string, args []string) error {
	if err := e.RunHeaders(); err != nil {
		return err
	}

	if name == "" {
		if _, ok := e.recipes[defaultRecipeName]; !ok {
			return nil
		}
		name = defaultRecipeName
	}

	var order []string
	queued := make(map[string]bool)
	if err := e.pushRecipe(name, queued, nil, &order); err != nil {
		return err
	}

	for _, n := range order {
		re := e.recipes[n]
		if err := e.runRecipeBody(re, args); err != nil {
			return err
		}
	}
	return nil
}

// pushRecipe implements the DFS of §4.H step 4: dependencies are appended
// to order before their dependent; direct self-dependency, any ancestor
// match (a cycle across the current call chain), and recipes already
// queued are all rejected up front so nothing re-enters.
func (e *Engine) pushRecipe(name string, queued map[string]bool, ancestors []string, order *[]string) error {
	re, ok := e.recipes[name]
	if !ok {
		if desc := e.findDisabled(name); desc != nil {
			return newErr(KindRecipeNotFound, fmt.Sprintf("recipe %q is disabled: %s", name, desc.Feat))
		}
		return newErr(KindRecipeNotFound, fmt.Sprintf("no recipe named %q", name))
	}
	for _, a := range ancestors {
		if a == name {
			return newErr(KindRecipeRecursion, fmt.Sprintf("recipe dependency cycle: %v -> %s", append(append([]string(nil), ancestors...), name), name))
		}
	}
	if queued[name] {
		return newErr(KindRecipeRecursion, fmt.Sprintf("recipe %q is already queued", name))
	}
	queued[name] = true
	ancestors = append(ancestors, name)

	for _, dep := range re.Op.Deps {
		if dep == name {
			return newErr(KindRecipeRecursion, fmt.Sprintf("recipe %q depends on itself", name))
		}
		if err := e.pushRecipe(dep, queued, ancestors, order); err != nil {
			return err
		}
	}
	*order = append(*order, name)
	return nil
}

func (e *Engine) findDisabled(name string) *RecipeDesc {
	for i := range e.disabled {
		if e.disabled[i].Name == name {
			return &e.disabled[i]
		}
	}
	return nil
}

// runRecipeBody binds formal parameters into a fresh recipe-local variable
// scope, then executes the body until its next Recipe boundary or a Return.
func (e *Engine) runRecipeBody(re *recipeEntry, args []string) error {
	e.Vars.EnterRecipe()
	defer e.Vars.LeaveRecipe()

	if err := bindArgs(e.Vars, re.Op.Args, args); err != nil {
		return newErr(KindRecipeListArgError, err.Error())
	}

	savedStack := e.condStack
	e.condStack = nil
	defer func() { e.condStack = savedStack }()

	return e.execFrom(re.File, re.Idx+1, re.Op.Flags)
}

func bindArgs(vars *VarMgr, formals []RecipeArg, actuals []string) error {
	for i, f := range formals {
		if f.Variadic {
			vars.SetRecipeVar(f.Name, ListValue(append([]string(nil), actuals[i:]...)))
			return nil
		}
		if i >= len(actuals) {
			return fmt.Errorf("recipe expects argument %q, got %d argument(s)", f.Name, len(actuals))
		}
		vars.SetRecipeVar(f.Name, StrValue(actuals[i]))
	}
	if len(formals) == 0 || !formals[len(formals)-1].Variadic {
		if len(actuals) > len(formals) {
			return fmt.Errorf("recipe takes %d argument(s), got %d", len(formals), len(actuals))
		}
	}
	return nil
}

func (e *Engine) doPause() {
	fmt.Fprint(os.Stdout, "-- paused, press enter to continue --")
	r := bufio.NewReader(os.Stdin)
	_, _ = r.ReadString('\n')
}

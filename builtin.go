// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Masterminds/sprig/v3"
)

// BuiltinFunc is the signature every entry in the built-in function library
// implements: pure (or engine-mutating, for shell/env/cd-adjacent calls)
// functions over the Value model (§4.G).
type BuiltinFunc func(e *Engine, args []Value) (Value, error)

var builtins map[string]BuiltinFunc

// sprigFuncs supplies Masterminds/sprig's alphanumeric random string
// generator (the same library thestormforge-optimize-controller depends
// on), which rand_str uses for its default alphabet; bRandStr enforces
// haku's contract (default alphabet, length-10 alphabet minimum).
var sprigFuncs = sprig.GenericFuncMap()

func init() {
	builtins = map[string]BuiltinFunc{
		"os":          func(e *Engine, a []Value) (Value, error) { return StrValue(hostOS()), nil },
		"family":      func(e *Engine, a []Value) (Value, error) { return StrValue(hostFamily()), nil },
		"platform":    func(e *Engine, a []Value) (Value, error) { return StrValue(hostFamily()), nil },
		"bit":         func(e *Engine, a []Value) (Value, error) { return StrValue(hostBit()), nil },
		"arch":        func(e *Engine, a []Value) (Value, error) { return StrValue(hostArch()), nil },
		"endian":      func(e *Engine, a []Value) (Value, error) { return StrValue(hostEndian()), nil },

		"is_file": bPathTest(func(p string) bool { fi, err := os.Stat(p); return err == nil && !fi.IsDir() }),
		"is_dir":  bPathTest(func(p string) bool { fi, err := os.Stat(p); return err == nil && fi.IsDir() }),
		"exists":  bPathTest(func(p string) bool { _, err := os.Stat(p); return err == nil }),

		"stem":     bPathPart(func(p string) string { return strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)) }),
		"ext":      bPathPart(func(p string) string { return strings.TrimPrefix(filepath.Ext(p), ".") }),
		"dir":      bPathPart(filepath.Dir),
		"filename": bPathPart(filepath.Base),

		"add_ext":      bAddExt,
		"with_ext":     bWithExt,
		"with_filename": bWithFilename,
		"with_stem":    bWithStem,
		"join":         bJoin,

		"temp":      bSystemDir(os.TempDir, nil),
		"home":      bSystemDir(nil, os.UserHomeDir),
		"config":    bSystemDir(nil, os.UserConfigDir),
		"documents": bDocuments,

		"print":   bPrint(false),
		"println": bPrint(true),

		"time": bTime,

		"trim":       bTrim(strings.TrimSpace, strings.Trim),
		"trim_left":  bTrim(strings.TrimSpace, strings.TrimLeft),
		"trim_right": bTrim(strings.TrimSpace, strings.TrimRight),

		"starts_with": bStrRel(strings.HasPrefix),
		"ends_with":   bStrRel(strings.HasSuffix),
		"contains":    bStrRel(strings.Contains),

		"lowcase": bStrMap(strings.ToLower),
		"upcase":  bStrMap(strings.ToUpper),

		"replace": bReplace,
		"match":   bMatch,

		"pad_left":   bPad(padLeft),
		"pad_right":  bPad(padRight),
		"pad_center": bPad(padCenter),

		"fields":    bFields,
		"field_sep": bFieldSep,

		"rand_str": bRandStr,

		"inc": bArith(1),
		"dec": bArith(-1),

		"shell": bShell,

		"set_env":   bSetEnv,
		"del_env":   bDelEnv,
		"clear_env": bClearEnv,

		"invoke_dir": bInvokeDir,

		"glob": bGlob,
	}
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

// CallBuiltin dispatches a case-insensitive, dash/underscore-insensitive
// built-in function call. Errors are function errors (§7); location
// annotation is added by the caller (vm.go), which has the current line.
func CallBuiltin(e *Engine, name string, args []Value) (Value, error) {
	fn, ok := builtins[normalizeName(name)]
	if !ok {
		return Undefined(), newErr(KindFunctionError, fmt.Sprintf("unknown function %q", name))
	}
	return fn(e, args)
}

// ---- path tests / parts ----

func bPathTest(test func(string) bool) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		if len(args) == 0 {
			return IntValue(0), nil
		}
		for _, a := range args {
			if !test(a.ToFlatString()) {
				return IntValue(0), nil
			}
		}
		return IntValue(1), nil
	}
}

func bPathPart(fn func(string) string) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		if len(args) == 0 {
			return StrValue(""), nil
		}
		return StrValue(fn(args[0].ToFlatString())), nil
	}
}

func bAddExt(e *Engine, args []Value) (Value, error) {
	if len(args) < 2 {
		return Undefined(), newErr(KindFunctionError, "add_ext requires two arguments")
	}
	p, ext := args[0].ToFlatString(), args[1].ToFlatString()
	if ext == "" {
		return StrValue(p), nil
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return StrValue(p + ext), nil
}

func bWithExt(e *Engine, args []Value) (Value, error) {
	if len(args) < 2 {
		return Undefined(), newErr(KindFunctionError, "with_ext requires two arguments")
	}
	p, ext := args[0].ToFlatString(), args[1].ToFlatString()
	base := strings.TrimSuffix(p, filepath.Ext(p))
	if ext == "" {
		return StrValue(base), nil
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return StrValue(base + ext), nil
}

func bWithFilename(e *Engine, args []Value) (Value, error) {
	if len(args) < 2 {
		return Undefined(), newErr(KindFunctionError, "with_filename requires two arguments")
	}
	p, name := args[0].ToFlatString(), args[1].ToFlatString()
	return StrValue(filepath.Join(filepath.Dir(p), name)), nil
}

func bWithStem(e *Engine, args []Value) (Value, error) {
	if len(args) < 2 {
		return Undefined(), newErr(KindFunctionError, "with_stem requires two arguments")
	}
	p, stem := args[0].ToFlatString(), args[1].ToFlatString()
	ext := filepath.Ext(p)
	return StrValue(filepath.Join(filepath.Dir(p), stem+ext)), nil
}

func bJoin(e *Engine, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.ToFlatString()
	}
	return StrValue(filepath.Join(parts...)), nil
}

func bSystemDir(plain func() string, fallible func() (string, error)) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		if plain != nil {
			return StrValue(plain()), nil
		}
		d, err := fallible()
		if err != nil {
			return Undefined(), newErr(KindFunctionError, fmt.Sprintf("system directory unavailable: %v", err))
		}
		return StrValue(d), nil
	}
}

func bDocuments(e *Engine, args []Value) (Value, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Undefined(), newErr(KindFunctionError, fmt.Sprintf("documents directory unavailable: %v", err))
	}
	return StrValue(filepath.Join(home, "Documents")), nil
}

// ---- I/O ----

func bPrint(newline bool) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		var b strings.Builder
		for _, a := range args {
			b.WriteString(a.ToFlatString())
		}
		if newline {
			b.WriteByte('\n')
		}
		fmt.Fprint(os.Stdout, b.String())
		return IntValue(1), nil
	}
}

// ---- time ----

func bTime(e *Engine, args []Value) (Value, error) {
	format := "%Y%m%d-%H%M%S"
	if len(args) > 0 {
		format = args[0].ToFlatString()
	}
	now := time.Now()
	switch strings.ToLower(format) {
	case "2822", "rfc2822":
		return StrValue(now.Format(time.RFC1123Z)), nil
	case "3339", "rfc3339":
		return StrValue(now.Format(time.RFC3339)), nil
	}
	return StrValue(strftime(now, format)), nil
}

// strftime formats t by a small, commonly-used subset of strftime
// directives (%Y %m %d %H %M %S %%); any other directive is copied through
// unchanged. The ecosystem has no strftime-style library in this corpus, so
// this formatter is hand-rolled on the standard library.
func strftime(t time.Time, format string) string {
	var b strings.Builder
	i := 0
	for i < len(format) {
		if format[i] == '%' && i+1 < len(format) {
			switch format[i+1] {
			case 'Y':
				b.WriteString(fmt.Sprintf("%04d", t.Year()))
			case 'm':
				b.WriteString(fmt.Sprintf("%02d", int(t.Month())))
			case 'd':
				b.WriteString(fmt.Sprintf("%02d", t.Day()))
			case 'H':
				b.WriteString(fmt.Sprintf("%02d", t.Hour()))
			case 'M':
				b.WriteString(fmt.Sprintf("%02d", t.Minute()))
			case 'S':
				b.WriteString(fmt.Sprintf("%02d", t.Second()))
			case '%':
				b.WriteByte('%')
			default:
				b.WriteByte('%')
				b.WriteByte(format[i+1])
			}
			i += 2
			continue
		}
		b.WriteByte(format[i])
		i++
	}
	return b.String()
}

// ---- strings ----

func bTrim(trimSpace func(string) string, trimChar func(string, string) string) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		if len(args) == 0 {
			return StrValue(""), nil
		}
		s := args[0].ToFlatString()
		if len(args) == 1 {
			return StrValue(trimSpace(s)), nil
		}
		return StrValue(trimChar(s, args[1].ToFlatString())), nil
	}
}

func bStrRel(rel func(s, prefix string) bool) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		if len(args) <= 1 {
			return IntValue(1), nil
		}
		s := args[0].ToFlatString()
		for _, a := range args[1:] {
			if rel(s, a.ToFlatString()) {
				return IntValue(1), nil
			}
		}
		return IntValue(0), nil
	}
}

func bStrMap(fn func(string) string) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		if len(args) == 0 {
			return StrValue(""), nil
		}
		return StrValue(fn(args[0].ToFlatString())), nil
	}
}

func bReplace(e *Engine, args []Value) (Value, error) {
	if len(args) < 2 {
		return Undefined(), newErr(KindFunctionError, "replace requires at least two arguments")
	}
	s, what := args[0].ToFlatString(), args[1].ToFlatString()
	with := ""
	if len(args) >= 3 {
		with = args[2].ToFlatString()
	}
	return StrValue(strings.ReplaceAll(s, what, with)), nil
}

func bMatch(e *Engine, args []Value) (Value, error) {
	if len(args) < 2 {
		return Undefined(), newErr(KindFunctionError, "match requires at least two arguments")
	}
	s := args[0].ToFlatString()
	for _, a := range args[1:] {
		re, err := regexp.Compile(a.ToFlatString())
		if err != nil {
			return Undefined(), newErr(KindFunctionError, fmt.Sprintf("invalid regex %q: %v", a.ToFlatString(), err))
		}
		if re.MatchString(s) {
			return IntValue(1), nil
		}
	}
	return IntValue(0), nil
}

func runeWidth(s string) int { return utf8.RuneCountInString(s) }

// padCount returns the number of whole pattern tiles to add so that s padded
// with them never exceeds width. Per spec, no padding is added at all once
// s plus a single tile already meets or exceeds width.
func padCount(origWidth, pattWidth, width int) int {
	if origWidth+pattWidth >= width {
		return 0
	}
	return (width - origWidth) / pattWidth
}

func padLeft(s, pattern string, width int) string {
	cnt := padCount(runeWidth(s), runeWidth(pattern), width)
	return repeatTo(pattern, cnt) + s
}

func padRight(s, pattern string, width int) string {
	cnt := padCount(runeWidth(s), runeWidth(pattern), width)
	return s + repeatTo(pattern, cnt)
}

func padCenter(s, pattern string, width int) string {
	cnt := padCount(runeWidth(s), runeWidth(pattern), width)
	right := cnt / 2
	left := cnt - right // extra tile goes on the left
	return repeatTo(pattern, left) + s + repeatTo(pattern, right)
}

// repeatTo returns n whole copies of pattern; it never truncates a partial
// copy to hit an exact width.
func repeatTo(pattern string, n int) string {
	if pattern == "" || n <= 0 {
		return ""
	}
	return strings.Repeat(pattern, n)
}

func bPad(fn func(s, pattern string, width int) string) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		if len(args) < 3 {
			return Undefined(), newErr(KindFunctionError, "requires three arguments")
		}
		s := args[0].ToFlatString()
		pattern := args[1].ToFlatString()
		if pattern == "" {
			return Undefined(), newErr(KindFunctionError, "pad string cannot be empty")
		}
		width := int(args[2].ToInt())
		return StrValue(fn(s, pattern, width)), nil
	}
}

// ---- splitting ----

func bFields(e *Engine, args []Value) (Value, error) {
	if len(args) < 1 {
		return Undefined(), newErr(KindFunctionError, "fields requires at least one argument")
	}
	parts := strings.Fields(args[0].ToFlatString())
	return fieldsByIndex(parts, args[1:]), nil
}

func bFieldSep(e *Engine, args []Value) (Value, error) {
	if len(args) < 3 {
		return Undefined(), newErr(KindFunctionError, "field_sep requires at least three arguments")
	}
	sep := args[1].ToFlatString()
	if sep == "" {
		return Undefined(), newErr(KindFunctionError, "separator cannot be empty")
	}
	parts := strings.Split(args[0].ToFlatString(), sep)
	return fieldsByIndex(parts, args[2:]), nil
}

func fieldsByIndex(parts []string, idxArgs []Value) Value {
	get := func(v Value) string {
		i := int(v.ToInt())
		if i < 0 || i >= len(parts) {
			return ""
		}
		return parts[i]
	}
	if len(idxArgs) == 0 {
		return StrValue("")
	}
	if len(idxArgs) == 1 {
		return StrValue(get(idxArgs[0]))
	}
	out := make([]string, len(idxArgs))
	for i, a := range idxArgs {
		out[i] = get(a)
	}
	return ListValue(out)
}

// ---- random ----

const defaultRandAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func bRandStr(e *Engine, args []Value) (Value, error) {
	if len(args) < 1 {
		return Undefined(), newErr(KindFunctionError, "rand_str requires at least one argument")
	}
	length := int(args[0].ToInt())
	alphabet := defaultRandAlphabet
	if len(args) >= 2 {
		alphabet = args[1].ToFlatString()
	}
	if utf8.RuneCountInString(alphabet) < 10 {
		return Undefined(), newErr(KindFunctionError, fmt.Sprintf("alphabet %q must be at least 10 characters", alphabet))
	}
	if length <= 0 {
		return StrValue(""), nil
	}
	// sprig's randAlphaNum helper has a fixed alphabet, so it is used
	// (lowercased) only when the default alphabet is requested; a
	// caller-supplied alphabet is drawn from directly with math/rand.
	if alphabet == defaultRandAlphabet {
		if fn, ok := sprigFuncs["randAlphaNum"].(func(int) string); ok {
			return StrValue(strings.ToLower(fn(length))), nil
		}
	}
	runes := []rune(alphabet)
	out := make([]rune, length)
	for i := range out {
		out[i] = runes[rand.Intn(len(runes))]
	}
	return StrValue(string(out)), nil
}

// ---- arithmetic ----

func bArith(unaryDelta int64) BuiltinFunc {
	return func(e *Engine, args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return IntValue(unaryDelta), nil
		case 1:
			return IntValue(args[0].ToInt() + unaryDelta), nil
		default:
			var sum int64
			for _, a := range args {
				sum += a.ToInt()
			}
			return IntValue(sum), nil
		}
	}
}

// ---- shell override / environment / cwd ----

func bShell(e *Engine, args []Value) (Value, error) {
	if len(args) == 0 {
		return Undefined(), newErr(KindFunctionError, "shell requires at least one argument")
	}
	argv := make([]string, len(args))
	for i, a := range args {
		argv[i] = a.ToFlatString()
	}
	e.shellTokens = argv
	return IntValue(1), nil
}

func bSetEnv(e *Engine, args []Value) (Value, error) {
	if len(args) < 2 {
		return Undefined(), newErr(KindFunctionError, "set_env requires two arguments")
	}
	e.Vars.SetEnv(args[0].ToFlatString(), args[1].ToFlatString())
	return IntValue(1), nil
}

func bDelEnv(e *Engine, args []Value) (Value, error) {
	if len(args) < 1 {
		return Undefined(), newErr(KindFunctionError, "del_env requires one argument")
	}
	e.Vars.DelEnv(args[0].ToFlatString())
	return IntValue(1), nil
}

func bClearEnv(e *Engine, args []Value) (Value, error) {
	e.Vars.ClearEnv()
	return IntValue(1), nil
}

func bInvokeDir(e *Engine, args []Value) (Value, error) {
	if len(e.cwdHistory) == 0 {
		return StrValue(""), nil
	}
	return StrValue(e.cwdHistory[0]), nil
}

// ---- globbing ----

const (
	globAny   = 0
	globFiles = 1
	globDirs  = 2
)

func bGlob(e *Engine, args []Value) (Value, error) {
	if len(args) == 0 {
		return ListValue(nil), nil
	}
	pattern := args[0].ToFlatString()
	kind := globAny
	if len(args) >= 2 {
		kind = int(args[1].ToInt())
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return Undefined(), newErr(KindFunctionError, fmt.Sprintf("glob: %v", err))
	}
	if kind == globAny {
		return ListValue(matches), nil
	}
	var out []string
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		if kind == globFiles && !fi.IsDir() {
			out = append(out, m)
		} else if kind == globDirs && fi.IsDir() {
			out = append(out, m)
		}
	}
	return ListValue(out), nil
}

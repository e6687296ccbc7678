// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads an entire script's physical lines (already split by the
// caller, see engine.go's readLines), joins trailing-backslash
// continuations into logical lines, and emits exactly one Op per logical
// line (comments/blank lines may emit Comment/DocComment or nothing).
// Each returned OpItem's Line is the 1-based line number of the first
// physical line of its logical line, matching the teacher's line-oriented
// parser shape in spirit (buffered lines, peek/next, keyword dispatch).
func Parse(filename string, physicalLines []string, opts *RunOpts) ([]OpItem, error) {
	p := &parser{filename: filename, opts: opts}
	p.join(physicalLines)

	var out []OpItem
	for p.pos < len(p.logical) {
		lno := p.lineNos[p.pos]
		text := p.logical[p.pos]
		p.pos++
		op, err := p.parseLine(lno, text)
		if err != nil {
			return nil, err
		}
		if op == nil {
			continue
		}
		out = append(out, OpItem{Op: op, Line: lno})
	}
	return out, nil
}

type parser struct {
	filename string
	opts     *RunOpts

	logical []string
	lineNos []int
	pos     int
}

// join performs the trailing-`\` physical-line-continuation join described
// in spec §6: a trailing backslash joins with the next physical line; the
// resulting logical line is trimmed before parsing.
func (p *parser) join(lines []string) {
	var cur strings.Builder
	curStart := 0
	have := false
	flush := func() {
		if have {
			p.logical = append(p.logical, strings.TrimSpace(cur.String()))
			p.lineNos = append(p.lineNos, curStart+1)
			cur.Reset()
			have = false
		}
	}
	for i, raw := range lines {
		if !have {
			curStart = i
			have = true
		} else {
			cur.WriteByte(' ')
		}
		if strings.HasSuffix(raw, "\\") && !strings.HasSuffix(raw, "\\\\") {
			cur.WriteString(strings.TrimSuffix(raw, "\\"))
			continue
		}
		cur.WriteString(raw)
		flush()
	}
	flush()
}

func (p *parser) errf(line int, text string, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return newErrAt(KindParseError, p.filename, line, text, msg)
}

// parseLine classifies one logical line into exactly one Op, following the
// priority order in spec §4.A.
func (p *parser) parseLine(lno int, text string) (Op, error) {
	if text == "" {
		return nil, nil
	}

	if strings.HasPrefix(text, "##") {
		return DocComment{Text: strings.TrimSpace(text[2:])}, nil
	}
	if strings.HasPrefix(text, "#!") {
		return Comment{Text: text[2:]}, nil
	}
	if strings.HasPrefix(text, "#[") {
		return p.parseFeatureGuard(lno, text)
	}
	if strings.HasPrefix(text, "#") || strings.HasPrefix(text, "//") {
		return Comment{Text: strings.TrimLeft(text, "#/")}, nil
	}

	flags, rest := extractFlags(text)
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, p.errf(lno, text, "empty statement after flag prefix")
	}

	if _, arg, ok := takeKeyword(rest, "include"); ok {
		return Include{Flags: flags, Path: strings.TrimSpace(arg)}, nil
	}
	if _, arg, ok := takeKeyword(rest, "error"); ok {
		return ErrorOp{Message: strings.TrimSpace(arg)}, nil
	}
	if _, arg, ok := takeKeyword(rest, "cd"); ok {
		return Cd{Flags: flags, Path: strings.TrimSpace(arg)}, nil
	}

	if op, ok, err := p.parseControl(lno, rest); ok || err != nil {
		return op, err
	}

	if op, ok, err := p.parseAssignment(lno, rest); ok || err != nil {
		return op, err
	}

	if op, ok, err := p.parseBareCall(lno, rest); ok || err != nil {
		return op, err
	}

	if op, ok, err := p.parseRecipeHeader(lno, rest, flags); ok || err != nil {
		return op, err
	}

	return Shell{Flags: flags, Command: rest}, nil
}

// extractFlags consumes a leading run of '@'/'-' characters (spec §3):
// '@' sets QUIET, '-' sets PASS; multiple prefixes combine bitwise.
func extractFlags(s string) (int, string) {
	flags := 0
	i := 0
	for i < len(s) {
		switch s[i] {
		case '@':
			flags |= FlagQuiet
		case '-':
			flags |= FlagPass
		default:
			return flags, s[i:]
		}
		i++
	}
	return flags, s[i:]
}

func takeKeyword(s, kw string) (string, string, bool) {
	if s == kw {
		return kw, "", true
	}
	if strings.HasPrefix(s, kw+" ") || strings.HasPrefix(s, kw+"\t") {
		return kw, strings.TrimSpace(s[len(kw):]), true
	}
	return "", "", false
}

// ---- Feature guards ----

func (p *parser) parseFeatureGuard(lno int, text string) (Op, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "#["), "]")
	inner = strings.TrimSpace(inner)

	var guard Guard
	for _, part := range splitTopLevel(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pred, err := parsePredicate(part)
		if err != nil {
			return nil, p.errf(lno, text, "%v", err)
		}
		guard = append(guard, pred)
	}
	passed, err := EvalGuard(guard, p.opts)
	if err != nil {
		return nil, p.errf(lno, text, "%v", err)
	}
	return Feature{Passed: passed, Source: text}, nil
}

// parsePredicate parses a single guard predicate of the form
// "[!]kind(val1|val2|...)", e.g. "feature(unused)" or "os(linux|darwin)".
func parsePredicate(s string) (Predicate, error) {
	negate := false
	if strings.HasPrefix(s, "!") {
		negate = true
		s = strings.TrimPrefix(s, "!")
	}
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Predicate{}, fmt.Errorf("invalid feature predicate %q", s)
	}
	kind := strings.ToLower(strings.TrimSpace(s[:open]))
	valPart := strings.TrimSpace(s[open+1 : len(s)-1])
	valPart = strings.Trim(valPart, `"`)
	if kind == "" || valPart == "" {
		return Predicate{}, fmt.Errorf("invalid feature predicate %q", s)
	}
	values := strings.Split(valPart, "|")
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}
	return Predicate{Negate: negate, Kind: kind, Values: values}, nil
}

// ---- Control flow ----

func (p *parser) parseControl(lno int, s string) (Op, bool, error) {
	// end/break/continue/return/pause/else take no condition, but else may
	// still carry a trailing block-opener decoration (e.g. "else:").
	switch bare := stripBlockOpener(s); bare {
	case "end":
		return StmtClose{}, true, nil
	case "break":
		return Break{}, true, nil
	case "continue":
		return Continue{}, true, nil
	case "return":
		return Return{}, true, nil
	case "pause":
		return Pause{}, true, nil
	case "else":
		return Else{}, true, nil
	}
	if kw, arg, ok := takeKeyword(s, "if"); ok {
		_ = kw
		cond, err := p.parseCondText(lno, s, arg)
		if err != nil {
			return nil, true, err
		}
		return If{Cond: cond}, true, nil
	}
	if _, arg, ok := takeKeyword(s, "elseif"); ok {
		cond, err := p.parseCondText(lno, s, arg)
		if err != nil {
			return nil, true, err
		}
		return ElseIf{Cond: cond}, true, nil
	}
	if _, arg, ok := takeKeyword(s, "elif"); ok {
		cond, err := p.parseCondText(lno, s, arg)
		if err != nil {
			return nil, true, err
		}
		return ElseIf{Cond: cond}, true, nil
	}
	if _, arg, ok := takeKeyword(s, "while"); ok {
		cond, err := p.parseCondText(lno, s, arg)
		if err != nil {
			return nil, true, err
		}
		return While{Cond: cond}, true, nil
	}
	if _, arg, ok := takeKeyword(s, "for"); ok {
		op, err := p.parseFor(lno, arg)
		return op, true, err
	}
	return nil, false, nil
}

func (p *parser) parseCondText(lno int, whole, arg string) ([]Op, error) {
	arg = stripBlockOpener(arg)
	terms, _, err := parseExpr(arg)
	if err != nil {
		return nil, p.errf(lno, whole, "%v", err)
	}
	return terms, nil
}

func stripBlockOpener(s string) string {
	s = strings.TrimSpace(s)
	for _, suf := range []string{":", " then", " do"} {
		if strings.HasSuffix(s, suf) {
			return strings.TrimSpace(strings.TrimSuffix(s, suf))
		}
	}
	return s
}

func (p *parser) parseFor(lno int, arg string) (Op, error) {
	arg = stripBlockOpener(arg)
	idx := strings.Index(arg, " in ")
	if idx < 0 {
		return nil, p.errf(lno, arg, "for: expected 'VAR in SEQ'")
	}
	varName := strings.TrimSpace(arg[:idx])
	if !isValidIdent(varName) {
		return nil, p.errf(lno, arg, "for: invalid loop variable name %q", varName)
	}
	rest := strings.TrimSpace(arg[idx+4:])
	seq, err := p.parseSeq(lno, rest)
	if err != nil {
		return nil, err
	}
	return For{Var: varName, Src: seq}, nil
}

func (p *parser) parseSeq(lno int, s string) (Seq, error) {
	switch {
	case strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") && len(s) >= 2:
		return Seq{Kind: SeqKindExec, Template: s[1 : len(s)-1]}, nil
	case strings.HasPrefix(s, "$"):
		name := strings.TrimPrefix(s, "$")
		name = strings.TrimPrefix(name, "{")
		name = strings.TrimSuffix(name, "}")
		return Seq{Kind: SeqKindVar, VarName: name}, nil
	case (strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && len(s) >= 2) ||
		(strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2):
		return Seq{Kind: SeqKindStr, Template: s[1 : len(s)-1]}, nil
	}
	if strings.Contains(s, "..") {
		return p.parseIntSeq(lno, s)
	}
	idents := strings.Fields(s)
	if len(idents) == 0 {
		return Seq{}, p.errf(lno, s, "for: empty iteration source")
	}
	return Seq{Kind: SeqKindIdents, Idents: idents}, nil
}

func (p *parser) parseIntSeq(lno int, s string) (Seq, error) {
	parts := strings.Split(s, "..")
	if len(parts) != 2 && len(parts) != 3 {
		return Seq{}, p.errf(lno, s, "seq: invalid integer range %q", s)
	}
	start, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Seq{}, p.errf(lno, s, "seq: invalid integer %q", parts[0])
	}
	end, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Seq{}, p.errf(lno, s, "seq: invalid integer %q", parts[1])
	}
	step := int64(1)
	explicitStep := false
	if len(parts) == 3 {
		step, err = strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return Seq{}, p.errf(lno, s, "seq: invalid integer %q", parts[2])
		}
		explicitStep = true
	}
	if explicitStep && step != 0 {
		if step > 0 && start > end {
			return Seq{}, p.errf(lno, s, "seq: sign mismatch between range direction and step")
		}
		if step < 0 && start < end {
			return Seq{}, p.errf(lno, s, "seq: sign mismatch between range direction and step")
		}
	}
	// step == 0 is accepted here and raised as a runtime forever-for error
	// the first time the loop is entered (see SPEC_FULL.md's resolution of
	// the ops.rs-vs-spec.md discrepancy).
	return Seq{Kind: SeqKindInt, Start: start, End: end, Step: step}, nil
}

// ---- Assignment ----

func (p *parser) parseAssignment(lno int, s string) (Op, bool, error) {
	i := 0
	for i < len(s) && isIdentCont(rune(s[i])) {
		i++
	}
	if i == 0 || !isIdentStart(rune(s[0])) {
		return nil, false, nil
	}
	name := s[:i]
	rest := strings.TrimSpace(s[i:])
	checked := false
	if strings.HasPrefix(rest, "?=") {
		checked = true
		rest = strings.TrimSpace(rest[2:])
	} else if strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "==") {
		rest = strings.TrimSpace(rest[1:])
	} else {
		return nil, false, nil
	}

	alts := splitTopLevel(rest, "?")
	if len(alts) > 1 {
		var ops []Op
		for _, a := range alts {
			v, err := parseValue(strings.TrimSpace(a))
			if err != nil {
				return nil, true, p.errf(lno, s, "%v", err)
			}
			ops = append(ops, v)
		}
		return EitherAssign{Checked: checked, Name: name, Alts: ops}, true, nil
	}

	terms, _, err := parseExpr(rest)
	if err != nil {
		return nil, true, p.errf(lno, s, "%v", err)
	}
	if checked {
		return DefAssign{Name: name, Expr: terms}, true, nil
	}
	return Assign{Name: name, Expr: terms}, true, nil
}

// ---- Bare function-call statement ----

func (p *parser) parseBareCall(lno int, s string) (Op, bool, error) {
	if !strings.HasSuffix(s, ")") {
		return nil, false, nil
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return nil, false, nil
	}
	name := s[:open]
	if !isValidIdent(name) {
		return nil, false, nil
	}
	inner := s[open+1 : len(s)-1]
	args, err := parseArgList(inner)
	if err != nil {
		return nil, true, p.errf(lno, s, "%v", err)
	}
	return FuncCall{Name: name, Args: args}, true, nil
}

func parseArgList(s string) ([]Op, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []Op
	for _, part := range splitTopLevel(s, ",") {
		v, err := parseValue(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ---- Recipe header ----

func (p *parser) parseRecipeHeader(lno int, s string, flags int) (Op, bool, error) {
	colon := indexTopLevel(s, ":")
	if colon < 0 {
		return nil, false, nil
	}
	head := strings.TrimSpace(s[:colon])
	depsPart := strings.TrimSpace(s[colon+1:])
	fields := strings.Fields(head)
	if len(fields) == 0 || !isValidIdent(fields[0]) {
		return nil, false, nil
	}
	name := fields[0]
	argFields := fields[1:]
	args := make([]RecipeArg, 0, len(argFields))
	for i, f := range argFields {
		variadic := strings.HasPrefix(f, "+")
		nm := strings.TrimPrefix(f, "+")
		if variadic && i != len(argFields)-1 {
			return nil, true, p.errf(lno, s, "recipe %q: only the final argument may be variadic (+%s)", name, nm)
		}
		args = append(args, RecipeArg{Name: nm, Variadic: variadic})
	}
	var deps []string
	if depsPart != "" {
		deps = strings.FieldsFunc(depsPart, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	}
	return Recipe{Name: name, Flags: flags, Args: args, Deps: deps}, true, nil
}

// ---- Value / expression grammar ----

// parseExpr parses spec §4.A's expression grammar: a disjunction ("||") of
// conjunctions ("&&") of either a single value or a binary comparison. It
// returns one Op per OR-term (wrapping AND-groups in AndExpr), and reports
// simple=true when the whole expression was exactly one bare value with no
// logical operators or comparisons at all (so Assign can store the natural
// Value instead of coercing to a boolean Int).
func parseExpr(s string) (terms []Op, simple bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false, fmt.Errorf("empty expression")
	}
	disjuncts := splitTopLevel(s, "||")
	for _, d := range disjuncts {
		factors := splitTopLevel(strings.TrimSpace(d), "&&")
		var fops []Op
		for _, f := range factors {
			fop, err := parseFactor(strings.TrimSpace(f))
			if err != nil {
				return nil, false, err
			}
			fops = append(fops, fop)
		}
		if len(fops) == 1 {
			terms = append(terms, fops[0])
		} else {
			terms = append(terms, AndExpr{Terms: fops})
		}
	}
	if len(terms) == 1 {
		if _, ok := terms[0].(IntLit); ok {
			simple = true
		} else if _, ok := terms[0].(StrLit); ok {
			simple = true
		} else if _, ok := terms[0].(VarRef); ok {
			simple = true
		} else if _, ok := terms[0].(ExecExpr); ok {
			simple = true
		} else if _, ok := terms[0].(FuncCall); ok {
			simple = true
		}
	}
	return terms, simple, nil
}

var cmpOps = []string{"==", "!=", "<=", ">=", "<", ">"}

func parseFactor(s string) (Op, error) {
	for _, op := range cmpOps {
		if idx := indexTopLevel(s, op); idx >= 0 {
			left := strings.TrimSpace(s[:idx])
			right := strings.TrimSpace(s[idx+len(op):])
			lv, err := parseValue(left)
			if err != nil {
				return nil, err
			}
			rv, err := parseValue(right)
			if err != nil {
				return nil, err
			}
			return Compare{Op: op, Left: lv, Right: rv}, nil
		}
	}
	return parseValue(s)
}

func parseValue(s string) (Op, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("expected a value, got empty string")
	}
	if strings.HasPrefix(s, "!") {
		inner, err := parseValue(s[1:])
		if err != nil {
			return nil, err
		}
		return Not{Term: inner}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntLit{Value: n}, nil
	}
	if strings.HasPrefix(s, "r#") && strings.HasSuffix(s, "#") && len(s) >= 3 {
		return StrLit{Template: s[2 : len(s)-1]}, nil
	}
	if (strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && len(s) >= 2) ||
		(strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2) {
		return StrLit{Template: s[1 : len(s)-1]}, nil
	}
	if strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") && len(s) >= 2 {
		return ExecExpr{Template: s[1 : len(s)-1]}, nil
	}
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return VarRef{Name: s[2 : len(s)-1]}, nil
	}
	if strings.HasPrefix(s, "$") {
		return VarRef{Name: s[1:]}, nil
	}
	if strings.HasSuffix(s, ")") {
		if open := strings.IndexByte(s, '('); open > 0 {
			name := s[:open]
			if isValidIdent(name) {
				args, err := parseArgList(s[open+1 : len(s)-1])
				if err != nil {
					return nil, err
				}
				return FuncCall{Name: name, Args: args}, nil
			}
		}
	}
	if isValidIdent(s) {
		// Bare identifiers in value position are treated as string literals
		// (e.g. the right-hand side of `name = word`).
		return StrLit{Template: s}, nil
	}
	return nil, fmt.Errorf("unparseable value %q", s)
}

// ---- Lexical helpers ----

func isIdentStart(r rune) bool { return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isIdentCont(r rune) bool  { return isIdentStart(r) || (r >= '0' && r <= '9') }

func isValidIdent(s string) bool {
	if s == "" {
		return false
	}
	if !isIdentStart(rune(s[0])) {
		return false
	}
	for _, r := range s[1:] {
		if !isIdentCont(r) {
			return false
		}
	}
	return true
}

// splitTopLevel splits s on sep, ignoring occurrences inside single/double/
// backtick quotes or parens, returning at least one element.
func splitTopLevel(s, sep string) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	i := 0
	for i < len(s) {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			i++
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && c == sep[0] && strings.HasPrefix(s[i:], sep) {
				out = append(out, s[start:i])
				i += len(sep)
				start = i
				continue
			}
		}
		i++
	}
	out = append(out, s[start:])
	return out
}

// indexTopLevel finds the first index of sep at paren/quote depth 0.
func indexTopLevel(s, sep string) int {
	depth := 0
	var quote byte
	i := 0
	for i < len(s) {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			i++
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && c == sep[0] && strings.HasPrefix(s[i:], sep) {
				return i
			}
		}
		i++
	}
	return -1
}

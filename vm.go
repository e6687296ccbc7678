// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"fmt"
	"strings"
)

// condKind tags the four frame shapes the condition stack can hold (§3, §9:
// prefer a growable sequence of frame values, not a graph of parent
// pointers).
type condKind int

const (
	cfIf condKind = iota
	cfWhile
	cfForInt
	cfForList
)

type condFrame struct {
	Kind      condKind
	OpenerIdx int

	// cfIf
	IfMatched bool

	// cfWhile
	WhileCond []Op

	// cfForInt / cfForList
	ForVar       string
	ForCur       int64
	ForEnd       int64
	ForStep      int64
	ForRemaining []string
}

func (e *Engine) topCond() *condFrame {
	if len(e.condStack) == 0 {
		return nil
	}
	return e.condStack[len(e.condStack)-1]
}

func (e *Engine) popCond() {
	if len(e.condStack) > 0 {
		e.condStack = e.condStack[:len(e.condStack)-1]
	}
}

// findBlockEnd returns the index of the StmtClose matching the opener
// (If/While/For) at idx, honoring nesting.
func findBlockEnd(ops []OpItem, idx int) int {
	nesting := 1
	for i := idx + 1; i < len(ops); i++ {
		switch ops[i].Op.(type) {
		case If, While, For:
			nesting++
		case StmtClose:
			nesting--
			if nesting == 0 {
				return i
			}
		}
	}
	return -1
}

// findElseOrClose returns the index of the nearest Else/ElseIf/StmtClose at
// the same nesting level as the If opener at idx.
func findElseOrClose(ops []OpItem, idx int) int {
	nesting := 0
	for i := idx + 1; i < len(ops); i++ {
		switch ops[i].Op.(type) {
		case If, While, For:
			nesting++
		case StmtClose:
			if nesting == 0 {
				return i
			}
			nesting--
		case Else, ElseIf:
			if nesting == 0 {
				return i
			}
		}
	}
	return -1
}

// ---- Expression evaluation ----

func evalValue(e *Engine, op Op) (Value, error) {
	switch t := op.(type) {
	case IntLit:
		return IntValue(t.Value), nil
	case StrLit:
		return StrValue(e.Vars.Interpolate(t.Template, false)), nil
	case VarRef:
		return e.Vars.Get(t.Name), nil
	case ExecExpr:
		return e.runExecExpr(t.Template)
	case FuncCall:
		return e.evalFuncCall(t)
	case Not:
		b, err := evalBoolFactor(e, t.Term)
		if err != nil {
			return Undefined(), err
		}
		return BoolValue(!b), nil
	case Compare:
		b, err := evalCompare(e, t)
		if err != nil {
			return Undefined(), err
		}
		return BoolValue(b), nil
	case AndExpr:
		b, err := evalBoolFactor(e, t)
		if err != nil {
			return Undefined(), err
		}
		return BoolValue(b), nil
	}
	return Undefined(), fmt.Errorf("internal-error: unhandled value op %T", op)
}

func evalCompare(e *Engine, c Compare) (bool, error) {
	l, err := evalValue(e, c.Left)
	if err != nil {
		return false, err
	}
	r, err := evalValue(e, c.Right)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case "==":
		return l.Equal(r), nil
	case "!=":
		return l.NotEqual(r), nil
	case "<":
		return l.Less(r), nil
	case "<=":
		return l.LessEq(r), nil
	case ">":
		return l.Greater(r), nil
	case ">=":
		return l.GreaterEq(r), nil
	}
	return false, fmt.Errorf("internal-error: unknown comparison operator %q", c.Op)
}

// evalBoolFactor evaluates one AND-factor (an OR-term or a conjunct within
// one): Compare/Not/AndExpr recurse structurally; any other op's truthiness
// drives the result.
func evalBoolFactor(e *Engine, op Op) (bool, error) {
	switch t := op.(type) {
	case Compare:
		return evalCompare(e, t)
	case Not:
		b, err := evalBoolFactor(e, t.Term)
		return !b, err
	case AndExpr:
		for _, term := range t.Terms {
			ok, err := evalBoolFactor(e, term)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	default:
		v, err := evalValue(e, op)
		if err != nil {
			return false, err
		}
		return v.Truthy(), nil
	}
}

// evalCond implements the OR-of-AND-groups condition grammar (§4.A): the
// whole condition is true iff any OR-term is true (short-circuit).
func evalCond(e *Engine, terms []Op) (bool, error) {
	for _, t := range terms {
		ok, err := evalBoolFactor(e, t)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// evalAssignExpr implements Assign/DefAssign's RHS rule (§4.H): a bare
// single value is stored as-is; a multi-term logical expression collapses
// to Int(1)/Int(0) on overall truthiness.
func evalAssignExpr(e *Engine, terms []Op) (Value, error) {
	if len(terms) == 1 {
		switch terms[0].(type) {
		case IntLit, StrLit, VarRef, ExecExpr, FuncCall:
			return evalValue(e, terms[0])
		}
	}
	ok, err := evalCond(e, terms)
	if err != nil {
		return Undefined(), err
	}
	return BoolValue(ok), nil
}

func (e *Engine) evalFuncCall(fc FuncCall) (Value, error) {
	args := make([]Value, len(fc.Args))
	for i, a := range fc.Args {
		v, err := evalValue(e, a)
		if err != nil {
			return Undefined(), err
		}
		args[i] = v
	}
	v, err := CallBuiltin(e, fc.Name, args)
	if err != nil {
		if he, ok := err.(*HakuError); ok && !he.HasLine {
			return Undefined(), newErrAt(he.Kind, e.curFile, e.curLine, "", he.Message)
		}
		return Undefined(), err
	}
	return v, nil
}

// ---- For-loop entry ----

func (e *Engine) enterFor(op For, idx int) (bool, *condFrame, error) {
	switch op.Src.Kind {
	case SeqKindInt:
		if op.Src.Step == 0 {
			return false, nil, newErrAt(KindForeverFor, e.curFile, e.curLine, "", "for loop step is zero")
		}
		start, end, step := op.Src.Start, op.Src.End, op.Src.Step
		empty := (step > 0 && start >= end) || (step < 0 && start <= end)
		if empty {
			return false, nil, nil
		}
		e.Vars.Set(op.Var, IntValue(start))
		return true, &condFrame{Kind: cfForInt, OpenerIdx: idx, ForVar: op.Var, ForCur: start, ForEnd: end, ForStep: step}, nil

	case SeqKindStr:
		text := e.Vars.Interpolate(op.Src.Template, true)
		return e.enterForList(op.Var, splitSeqText(text), idx)

	case SeqKindIdents:
		return e.enterForList(op.Var, op.Src.Idents, idx)

	case SeqKindExec:
		val, err := e.runExecExpr(op.Src.Template)
		if err != nil {
			return false, nil, err
		}
		if val.ExecCode != 0 {
			return e.enterForList(op.Var, nil, idx)
		}
		return e.enterForList(op.Var, splitSeqText(val.ExecOut), idx)

	case SeqKindVar:
		v := e.Vars.Get(op.Src.VarName)
		if v.Kind == KindList {
			return e.enterForList(op.Var, v.L, idx)
		}
		return e.enterForList(op.Var, splitSeqText(v.ToString()), idx)
	}
	return false, nil, fmt.Errorf("internal-error: unknown seq kind %d", op.Src.Kind)
}

func splitSeqText(text string) []string {
	if strings.Contains(text, "\n") {
		return strings.Split(text, "\n")
	}
	return strings.Fields(text)
}

func (e *Engine) enterForList(varName string, items []string, idx int) (bool, *condFrame, error) {
	if len(items) == 0 {
		return false, nil, nil
	}
	e.Vars.Set(varName, StrValue(items[0]))
	return true, &condFrame{Kind: cfForList, OpenerIdx: idx, ForVar: varName, ForRemaining: items[1:]}, nil
}

// ---- Statement execution ----

// execFrom walks the retained op stream of one file starting at index
// start, sequentially, until a Recipe op (body boundary), a Return, or the
// end of the stream. recipeFlags is the enclosing recipe's flag bits,
// XORed into every Shell op's own flags (§3).
func (e *Engine) execFrom(file *loadedFile, start int, recipeFlags int) error {
	ops := file.Ops
	idx := start
	for idx < len(ops) {
		item := ops[idx]
		e.curFile = file.Name
		e.curLine = item.Line

		switch op := item.Op.(type) {
		case Recipe:
			return nil

		case Comment, DocComment, Feature:
			idx++

		case Assign:
			v, err := evalAssignExpr(e, op.Expr)
			if err != nil {
				return err
			}
			e.Vars.Set(op.Name, v)
			idx++

		case DefAssign:
			if !e.Vars.Get(op.Name).Truthy() {
				v, err := evalAssignExpr(e, op.Expr)
				if err != nil {
					return err
				}
				e.Vars.Set(op.Name, v)
			}
			idx++

		case EitherAssign:
			if !(op.Checked && e.Vars.Get(op.Name).Truthy()) {
				for _, alt := range op.Alts {
					v, err := evalValue(e, alt)
					if err != nil {
						return err
					}
					if v.Truthy() {
						e.Vars.Set(op.Name, v)
						break
					}
				}
			}
			idx++

		case FuncCall:
			if _, err := e.evalFuncCall(op); err != nil {
				return err
			}
			idx++

		case Shell:
			if err := e.execShellOp(op, recipeFlags); err != nil {
				return err
			}
			idx++

		case Cd:
			if err := e.execCdOp(op, recipeFlags); err != nil {
				return err
			}
			idx++

		case Include:
			// A header run starts at index 0 and its includes were already
			// loaded by LoadFile; only an include inside a recipe body is an error.
			if start != 0 {
				return newErrAt(KindIncludeInRecipe, file.Name, item.Line, "", "include is not allowed inside a recipe body")
			}
			idx++

		case ErrorOp:
			msg := e.Vars.Interpolate(op.Message, false)
			return newErrAt(KindUserError, file.Name, item.Line, "", msg)

		case If:
			ok, err := evalCond(e, op.Cond)
			if err != nil {
				return err
			}
			if ok {
				e.condStack = append(e.condStack, &condFrame{Kind: cfIf, OpenerIdx: idx, IfMatched: true})
				idx++
				continue
			}
			target := findElseOrClose(ops, idx)
			if target < 0 {
				return newErrAt(KindNoMatchingEnd, file.Name, item.Line, "", "if without matching end")
			}
			if _, isClose := ops[target].Op.(StmtClose); isClose {
				idx = target + 1
			} else {
				e.condStack = append(e.condStack, &condFrame{Kind: cfIf, OpenerIdx: idx, IfMatched: false})
				idx = target
			}

		case ElseIf:
			top := e.topCond()
			if top == nil || top.Kind != cfIf {
				return newErrAt(KindStrayElseIf, file.Name, item.Line, "", "elseif without matching if")
			}
			if top.IfMatched {
				end := findBlockEnd(ops, top.OpenerIdx)
				e.popCond()
				idx = end + 1
				continue
			}
			ok, err := evalCond(e, op.Cond)
			if err != nil {
				return err
			}
			if ok {
				top.IfMatched = true
				idx++
				continue
			}
			target := findElseOrClose(ops, idx)
			if target < 0 {
				return newErrAt(KindNoMatchingEnd, file.Name, item.Line, "", "elseif without matching end")
			}
			if _, isClose := ops[target].Op.(StmtClose); isClose {
				e.popCond()
				idx = target + 1
			} else {
				idx = target
			}

		case Else:
			top := e.topCond()
			if top == nil || top.Kind != cfIf {
				return newErrAt(KindStrayElse, file.Name, item.Line, "", "else without matching if")
			}
			if top.IfMatched {
				end := findBlockEnd(ops, top.OpenerIdx)
				e.popCond()
				idx = end + 1
			} else {
				top.IfMatched = true
				idx++
			}

		case While:
			ok, err := evalCond(e, op.Cond)
			if err != nil {
				return err
			}
			if ok {
				e.condStack = append(e.condStack, &condFrame{Kind: cfWhile, OpenerIdx: idx, WhileCond: op.Cond})
				idx++
			} else {
				end := findBlockEnd(ops, idx)
				if end < 0 {
					return newErrAt(KindNoMatchingForWhile, file.Name, item.Line, "", "while without matching end")
				}
				idx = end + 1
			}

		case For:
			ok, frame, err := e.enterFor(op, idx)
			if err != nil {
				return err
			}
			if ok {
				e.condStack = append(e.condStack, frame)
				idx++
			} else {
				end := findBlockEnd(ops, idx)
				if end < 0 {
					return newErrAt(KindNoMatchingForWhile, file.Name, item.Line, "", "for without matching end")
				}
				idx = end + 1
			}

		case StmtClose:
			top := e.topCond()
			if top == nil {
				return newErrAt(KindStrayEnd, file.Name, item.Line, "", "stray end")
			}
			switch top.Kind {
			case cfIf:
				e.popCond()
				idx++
			case cfWhile:
				ok, err := evalCond(e, top.WhileCond)
				if err != nil {
					return err
				}
				if ok {
					idx = top.OpenerIdx + 1
				} else {
					e.popCond()
					idx++
				}
			case cfForInt:
				top.ForCur += top.ForStep
				done := (top.ForStep > 0 && top.ForCur >= top.ForEnd) || (top.ForStep < 0 && top.ForCur <= top.ForEnd)
				if done {
					e.popCond()
					idx++
				} else {
					e.Vars.Set(top.ForVar, IntValue(top.ForCur))
					idx = top.OpenerIdx + 1
				}
			case cfForList:
				if len(top.ForRemaining) == 0 {
					e.popCond()
					idx++
				} else {
					e.Vars.Set(top.ForVar, StrValue(top.ForRemaining[0]))
					top.ForRemaining = top.ForRemaining[1:]
					idx = top.OpenerIdx + 1
				}
			}

		case Break:
			idx = e.unwindToLoop(ops, true)
			if idx < 0 {
				return newErrAt(KindNoMatchingForWhile, file.Name, item.Line, "", "break outside a loop")
			}

		case Continue:
			idx = e.unwindToLoop(ops, false)
			if idx < 0 {
				return newErrAt(KindNoMatchingForWhile, file.Name, item.Line, "", "continue outside a loop")
			}

		case Return:
			return nil

		case Pause:
			e.doPause()
			idx++

		default:
			idx++
		}
	}
	return nil
}

// unwindToLoop discards If frames until the nearest loop frame. When
// leaving (Break), the loop frame itself is popped and control jumps past
// its StmtClose. When continuing, the loop frame is left on the stack and
// control jumps to the StmtClose so its iteration-step logic runs.
func (e *Engine) unwindToLoop(ops []OpItem, leave bool) int {
	for len(e.condStack) > 0 {
		top := e.topCond()
		if top.Kind == cfWhile || top.Kind == cfForInt || top.Kind == cfForList {
			end := findBlockEnd(ops, top.OpenerIdx)
			if end < 0 {
				return -1
			}
			if leave {
				e.popCond()
				return end + 1
			}
			return end
		}
		e.popCond()
	}
	return -1
}

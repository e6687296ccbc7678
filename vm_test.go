// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestEngine builds an Engine with ops loaded directly (bypassing
// LoadFile/os file access) so VM behavior can be exercised hermetically.
func newTestEngine(t *testing.T, lines []string) (*Engine, *loadedFile) {
	t.Helper()
	opts := NewRunOpts()
	ops, err := Parse("t.hk", lines, opts)
	require.NoError(t, err)
	retained, disabled, err := eliminateDeadCode("t.hk", ops)
	require.NoError(t, err)

	e := NewEngine(opts, discardLogger())
	lf := &loadedFile{Name: "t.hk", Ops: retained, Src: lines}
	e.files = append(e.files, lf)
	e.indexRecipes(lf)
	e.disabled = append(e.disabled, disabled...)
	return e, lf
}

func TestVMIfElseIfElse(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"x = 2",
		"if $x == 1:",
		"r = 1",
		"elseif $x == 2:",
		"r = 2",
		"else:",
		"r = 3",
		"end",
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), e.Vars.Get("r").I)
}

func TestVMWhileLoop(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"i = 0",
		"while $i < 5:",
		"i = inc($i)",
		"end",
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), e.Vars.Get("i").I)
}

func TestVMForIntLoop(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"for i in 0..3:",
		"last = $i",
		"end",
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), e.Vars.Get("last").I)
}

func TestVMForIntEmptyRangeSkipsBody(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"touched = 0",
		"for i in 3..3:",
		"touched = 1",
		"end",
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), e.Vars.Get("touched").I)
}

func TestVMForZeroStepIsRuntimeError(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"for i in 0..5..0:",
		"x = $i",
		"end",
	})
	err := e.execFrom(lf, 0, 0)
	require.Error(t, err)
	he, ok := err.(*HakuError)
	require.True(t, ok)
	require.Equal(t, KindForeverFor, he.Kind)
}

func TestVMForIdentsLoop(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"out = a",
		"for w in alpha beta gamma:",
		"out = $w",
		"end",
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	require.Equal(t, "gamma", e.Vars.Get("out").S)
}

func TestVMBreakExitsLoop(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"count = 0",
		"for i in 0..10:",
		"if $i == 2:",
		"break",
		"end",
		"count = $i",
		"end",
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	// break fires when i==2, before "count = i" runs for that iteration, so
	// count should still reflect i==1 from the previous pass.
	require.Equal(t, int64(1), e.Vars.Get("count").I)
}

func TestVMContinueSkipsRestOfBody(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"hits = 0",
		"for i in 0..4:",
		"if $i == 1:",
		"continue",
		"end",
		"hits = inc($hits)",
		"end",
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	// i==1 is skipped by continue before the inc() runs, so only 3 of the
	// 4 iterations (0, 2, 3) reach it.
	require.Equal(t, int64(3), e.Vars.Get("hits").I)
}

func TestVMDefAssignSkipsWhenTruthy(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"x = 5",
		"x ?= 9",
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), e.Vars.Get("x").I)
}

func TestVMEitherAssignFirstTruthyWins(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		`y = "" ? "" ? "third"`,
	})
	err := e.execFrom(lf, 0, 0)
	require.NoError(t, err)
	require.Equal(t, "third", e.Vars.Get("y").S)
}

func TestVMStrayEndIsError(t *testing.T) {
	e, lf := newTestEngine(t, []string{"end"})
	err := e.execFrom(lf, 0, 0)
	require.Error(t, err)
	he, ok := err.(*HakuError)
	require.True(t, ok)
	require.Equal(t, KindStrayEnd, he.Kind)
}

func TestVMRecipeDependencyCycleDetected(t *testing.T) {
	e, lf := newTestEngine(t, []string{
		"a: b",
		"x = 1",
		"b: a",
		"y = 1",
	})
	_ = lf
	err := e.Run("a", nil)
	require.Error(t, err)
	he, ok := err.(*HakuError)
	require.True(t, ok)
	require.Equal(t, KindRecipeRecursion, he.Kind)
}

func TestVMDefaultRecipeSilentlyMissing(t *testing.T) {
	e, _ := newTestEngine(t, []string{
		"named:",
		"x = 1",
	})
	err := e.Run("", nil)
	require.NoError(t, err)
}

func TestVMRecipeArgBinding(t *testing.T) {
	e, _ := newTestEngine(t, []string{
		"greet name:",
		"who = $name",
	})
	err := e.Run("greet", []string{"world"})
	require.NoError(t, err)
	require.Equal(t, "world", e.Vars.Get("who").S)
}

func TestVMVariadicRecipeArg(t *testing.T) {
	e, _ := newTestEngine(t, []string{
		"build +rest:",
		"n = $rest",
	})
	err := e.Run("build", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, e.Vars.Get("n").L)
}

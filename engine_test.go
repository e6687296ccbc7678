// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTaskfile(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileIncludesBeforeRoot(t *testing.T) {
	dir := t.TempDir()
	writeTaskfile(t, dir, "sub.hk", []string{
		"base = from_sub",
	})
	root := writeTaskfile(t, dir, "root.hk", []string{
		"include sub.hk",
		"base = from_root",
		"build:",
		"echo hi",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))
	require.Len(t, e.files, 2)
	require.Equal(t, "sub.hk", filepath.Base(e.files[0].Name))
	require.Equal(t, "root.hk", filepath.Base(e.files[1].Name))

	// Header runs in load order (include first), so the root's own
	// assignment is the one that wins.
	require.NoError(t, e.RunHeaders())
	require.Equal(t, "from_root", e.Vars.Get("base").S)
}

func TestLoadFileDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeTaskfile(t, dir, "a.hk", []string{
		"include b.hk",
		"build:",
		"echo a",
	})
	b := writeTaskfile(t, dir, "b.hk", []string{
		"include a.hk",
	})
	_ = b

	e := NewEngine(NewRunOpts(), discardLogger())
	err := e.LoadFile(filepath.Join(dir, "a.hk"))
	require.Error(t, err)
	he, ok := err.(*HakuError)
	require.True(t, ok)
	require.Equal(t, KindIncludeRecursion, he.Kind)
}

func TestLoadFilePassFlagSwallowsIncludeFailure(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		"-include does-not-exist.hk",
		"build:",
		"echo hi",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))
	require.Len(t, e.files, 1)
	require.Contains(t, e.recipes, "build")
}

func TestLoadFileWithoutPassFlagPropagatesIncludeFailure(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		"include does-not-exist.hk",
		"build:",
		"echo hi",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	err := e.LoadFile(root)
	require.Error(t, err)
}

func TestEngineRecipesAndDisabledRecipesListing(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		`#[feature(never-enabled)]`,
		"## builds the project",
		"build:",
		"echo building",
		"## cleans the project",
		"clean:",
		"echo cleaning",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))

	recipes := e.Recipes()
	require.Len(t, recipes, 1)
	require.Equal(t, "clean", recipes[0].Name)
	require.Equal(t, "cleans the project", recipes[0].Desc)

	disabled := e.DisabledRecipes()
	require.Len(t, disabled, 1)
	require.Equal(t, "build", disabled[0].Name)
	require.Equal(t, "builds the project", disabled[0].Desc)
}

func TestEngineUserFeaturesRecordsReferencedNames(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		`#[feature(turbo)]`,
		"turbo_build:",
		"echo fast",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))
	require.Contains(t, e.UserFeatures(), "turbo")
}

func TestEngineRecipeContentReturnsVerbatimBody(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		"build:",
		"echo one",
		"echo two",
		"clean:",
		"echo three",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))

	content, err := e.RecipeContent("build")
	require.NoError(t, err)
	require.Equal(t, "build:\necho one\necho two\n", content)
}

func TestEngineRecipeContentUnknownNameErrors(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		"build:",
		"echo one",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))

	_, err := e.RecipeContent("nope")
	require.Error(t, err)
	he, ok := err.(*HakuError)
	require.True(t, ok)
	require.Equal(t, KindRecipeNotFound, he.Kind)
}

func TestEngineRunExecutesDependenciesBeforeDependent(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		"n = 0",
		"clean:",
		"n = inc($n)",
		"clean_at = $n",
		"build: clean",
		"n = inc($n)",
		"build_at = $n",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))
	require.NoError(t, e.Run("build", nil))
	require.Equal(t, int64(1), e.Vars.Get("clean_at").I)
	require.Equal(t, int64(2), e.Vars.Get("build_at").I)
}

func TestEngineRunMissingDefaultRecipeIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		"named:",
		"echo hi",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))
	require.NoError(t, e.Run("", nil))
}

func TestEngineRunUnknownRecipeErrors(t *testing.T) {
	dir := t.TempDir()
	root := writeTaskfile(t, dir, "root.hk", []string{
		"named:",
		"echo hi",
	})

	e := NewEngine(NewRunOpts(), discardLogger())
	require.NoError(t, e.LoadFile(root))
	err := e.Run("missing", nil)
	require.Error(t, err)
	he, ok := err.(*HakuError)
	require.True(t, ok)
	require.Equal(t, KindRecipeNotFound, he.Kind)
}

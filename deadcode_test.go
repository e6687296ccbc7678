// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import "testing"

func mustParse(t *testing.T, lines []string, opts *RunOpts) []OpItem {
	t.Helper()
	items, err := Parse("t.hk", lines, opts)
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	return items
}

func recipeNames(items []OpItem) []string {
	var out []string
	for _, it := range items {
		if r, ok := it.Op.(Recipe); ok {
			out = append(out, r.Name)
		}
	}
	return out
}

func TestDeadCodeDropsDisabledRecipe(t *testing.T) {
	opts := NewRunOpts()
	items := mustParse(t, []string{
		`#[feature(never-enabled)]`,
		"## builds the thing",
		"build:",
		"echo building",
		"clean:",
		"echo cleaning",
	}, opts)

	retained, disabled, err := eliminateDeadCode("t.hk", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := recipeNames(retained); len(got) != 1 || got[0] != "clean" {
		t.Errorf("retained recipes = %v, want [clean]", got)
	}
	if len(disabled) != 1 || disabled[0].Name != "build" {
		t.Fatalf("disabled = %+v, want one entry named build", disabled)
	}
	if disabled[0].Desc != "builds the thing" {
		t.Errorf("disabled[0].Desc = %q, want %q", disabled[0].Desc, "builds the thing")
	}
}

func TestDeadCodeGuardAfterDisabledRecipeAttachesToNext(t *testing.T) {
	opts := NewRunOpts()
	items := mustParse(t, []string{
		`#[feature(off)]`,
		"disabled_one:",
		"echo nope",
		`#[!feature(off)]`,
		"## doc for the enabled one",
		"enabled_one:",
		"echo yes",
	}, opts)

	retained, disabled, err := eliminateDeadCode("t.hk", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(disabled) != 1 || disabled[0].Name != "disabled_one" {
		t.Fatalf("disabled = %+v", disabled)
	}
	if got := recipeNames(retained); len(got) != 1 || got[0] != "enabled_one" {
		t.Errorf("retained recipes = %v, want [enabled_one]", got)
	}
}

func TestDeadCodeSkipsDisabledIfBlock(t *testing.T) {
	opts := NewRunOpts()
	items := mustParse(t, []string{
		`#[feature(off)]`,
		"if x == 1:",
		"y = 1",
		"end",
		"z = 2",
	}, opts)

	retained, _, err := eliminateDeadCode("t.hk", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(retained) != 1 {
		t.Fatalf("retained = %+v, want exactly the trailing assignment", retained)
	}
	if a, ok := retained[0].Op.(Assign); !ok || a.Name != "z" {
		t.Errorf("retained[0] = %+v, want Assign z", retained[0])
	}
}

func TestDeadCodeCommentsAlwaysDropped(t *testing.T) {
	items := mustParse(t, []string{"# just a comment", "x = 1"}, NewRunOpts())
	retained, _, err := eliminateDeadCode("t.hk", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(retained) != 1 {
		t.Fatalf("retained = %+v, want comment dropped", retained)
	}
}

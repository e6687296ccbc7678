// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"undefined", Undefined(), false},
		{"zero int", IntValue(0), false},
		{"nonzero int", IntValue(-1), true},
		{"empty str", StrValue(""), false},
		{"nonempty str", StrValue("x"), true},
		{"empty list", ListValue(nil), false},
		{"list with empty first", ListValue([]string{""}), false},
		{"list with nonempty first", ListValue([]string{"a", ""}), true},
		{"exec success", ExecValue(0, ""), true},
		{"exec failure", ExecValue(1, "out"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Truthy())
		})
	}
}

func TestValueStringProjections(t *testing.T) {
	tests := []struct {
		name       string
		v          Value
		wantString string
		wantFlat   string
	}{
		{"int", IntValue(42), "42", "42"},
		{"str", StrValue("hi"), "hi", "hi"},
		{"list", ListValue([]string{"a", "b"}), "a\nb", "a b"},
		{"exec ok", ExecValue(0, "line1\nline2"), "line1\nline2", "line1 line2"},
		{"exec failed", ExecValue(1, "oops"), "", ""},
		{"undefined", Undefined(), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantString, tt.v.ToString())
			assert.Equal(t, tt.wantFlat, tt.v.ToFlatString())
		})
	}
}

func TestValueComparisons(t *testing.T) {
	tests := []struct {
		name        string
		a, b        Value
		eq, gt, lt  bool
	}{
		{"equal ints", IntValue(3), IntValue(3), true, false, false},
		{"int order", IntValue(1), IntValue(2), false, false, true},
		{"str order", StrValue("a"), StrValue("b"), false, false, true},
		{"cross-kind equal via flat", IntValue(5), StrValue("5"), true, false, false},
		{"list order", ListValue([]string{"a"}), ListValue([]string{"a", "b"}), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eq, tt.a.Equal(tt.b))
			assert.Equal(t, tt.gt, tt.a.Greater(tt.b))
			assert.Equal(t, tt.lt, tt.a.Less(tt.b))
			assert.Equal(t, !tt.lt, tt.a.GreaterEq(tt.b))
			assert.Equal(t, !tt.gt, tt.a.LessEq(tt.b))
		})
	}
}

func TestValueUndefinedComparisonAsymmetry(t *testing.T) {
	u := Undefined()
	i := IntValue(0)

	assert.True(t, u.Equal(u))
	assert.False(t, u.Equal(i))
	assert.False(t, i.Equal(u))

	assert.True(t, u.Less(i))
	assert.True(t, i.Less(u))
	assert.True(t, u.Less(u))

	assert.False(t, u.Greater(i))
	assert.False(t, i.Greater(u))
	assert.False(t, u.Greater(u))
}

func TestValueToInt(t *testing.T) {
	tests := []struct {
		v    Value
		want int64
	}{
		{IntValue(7), 7},
		{StrValue("42abc"), 42},
		{StrValue("-3"), -3},
		{StrValue("nope"), 0},
		{ListValue([]string{"9", "1"}), 9},
		{ExecValue(0, "12\nrest"), 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.ToInt())
	}
}

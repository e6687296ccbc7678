// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import "fmt"

// Kind identifies the category of a HakuError, matching the taxonomy a user
// sees when a load or run fails.
type Kind int

const (
	KindInternal Kind = iota

	// Load
	KindFileOpen
	KindFileRead
	KindIncludeRecursion
	KindIncludeInRecipe

	// Parse
	KindParseError
	KindInvalidFeatureName
	KindRecipeListArgError
	KindSeqIntError
	KindSeqError
	KindSeqVarNameError

	// Name resolution
	KindRecipeNotFound
	KindRecipeRecursion
	KindDefaultRecipeMissing

	// Structural
	KindNoMatchingEnd
	KindNoMatchingForWhile
	KindStrayElse
	KindStrayElseIf
	KindStrayEnd
	KindForeverFor

	// Runtime
	KindExecFailure
	KindFunctionError
	KindEmptyShellArg
	KindCdError
	KindUserError

	// Other
	KindFileNotLoaded
)

func (k Kind) String() string {
	switch k {
	case KindFileOpen:
		return "file-open"
	case KindFileRead:
		return "file-read"
	case KindIncludeRecursion:
		return "include-recursion"
	case KindIncludeInRecipe:
		return "include-in-recipe"
	case KindParseError:
		return "parse-error"
	case KindInvalidFeatureName:
		return "invalid-feature-name"
	case KindRecipeListArgError:
		return "recipe-list-arg-error"
	case KindSeqIntError:
		return "seq-int-error"
	case KindSeqError:
		return "seq-error"
	case KindSeqVarNameError:
		return "seq-var-name-error"
	case KindRecipeNotFound:
		return "recipe-not-found"
	case KindRecipeRecursion:
		return "recipe-recursion"
	case KindDefaultRecipeMissing:
		return "default-recipe-missing"
	case KindNoMatchingEnd:
		return "no-matching-end"
	case KindNoMatchingForWhile:
		return "no-matching-for-while"
	case KindStrayElse:
		return "stray-else"
	case KindStrayElseIf:
		return "stray-elseif"
	case KindStrayEnd:
		return "stray-end"
	case KindForeverFor:
		return "forever-for"
	case KindExecFailure:
		return "exec-failure"
	case KindFunctionError:
		return "function-error"
	case KindEmptyShellArg:
		return "empty-shell-arg"
	case KindCdError:
		return "cd-error"
	case KindUserError:
		return "user-error"
	case KindFileNotLoaded:
		return "file-not-loaded"
	default:
		return "internal-error"
	}
}

// HakuError is the single error type surfaced to callers of this package.
// Every user-visible error carries a Kind, a message, and — when available —
// the source location that produced it.
type HakuError struct {
	Kind    Kind
	Message string
	File    string
	Line    int // 1-based; 0 means unknown
	HasLine bool
	SrcLine string
	Wrapped error
}

func newErr(kind Kind, msg string) *HakuError {
	return &HakuError{Kind: kind, Message: msg}
}

func newErrAt(kind Kind, file string, line int, srcLine, msg string) *HakuError {
	return &HakuError{Kind: kind, Message: msg, File: file, Line: line, HasLine: true, SrcLine: srcLine}
}

func (e *HakuError) Error() string {
	return e.Message + errorExtra(e.File, e.HasLine, e.Line, e.SrcLine)
}

func (e *HakuError) Unwrap() error { return e.Wrapped }

// errorExtra formats the "in '<file>' at line <N>:\n--> <source line>" suffix,
// matching original_source's four-branch behavior (both / file-only /
// line-only / neither available).
func errorExtra(file string, hasLine bool, line int, srcLine string) string {
	switch {
	case file != "" && hasLine:
		extra := fmt.Sprintf("\nin '%s' at line %d", file, line)
		if srcLine != "" {
			extra += fmt.Sprintf(":\n--> %s", srcLine)
		}
		return extra
	case file != "":
		return fmt.Sprintf("\nin '%s'", file)
	case hasLine:
		return fmt.Sprintf("\nat line %d", line)
	default:
		return ""
	}
}

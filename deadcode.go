// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

// skipMode describes what kind of disabled construct is currently being
// discarded.
type skipMode int

const (
	skipNone skipMode = iota
	skipRecipe
	skipCommand
)

// eliminateDeadCode implements spec §4.D's per-file state machine. It
// produces the retained op stream the VM will walk, plus descriptors for
// every disabled recipe so listing still works.
//
// Two separate pending buffers (current-recipe vs next-recipe) are kept so
// that a guard written after a disabled recipe but before the following one
// attaches to the following recipe, not the disabled one (spec §9).
func eliminateDeadCode(filename string, items []OpItem) (retained []OpItem, disabled []RecipeDesc, err error) {
	var pendingCurrent, pendingNext []OpItem
	pass := true
	mode := skipNone
	nesting := 0

	flushPending := func(buf *[]OpItem) {
		for _, it := range *buf {
			retained = append(retained, it)
		}
		*buf = nil
	}

	docFor := func(buf []OpItem) string {
		for _, it := range buf {
			if d, ok := it.Op.(DocComment); ok {
				return d.Text
			}
		}
		return ""
	}
	featFor := func(buf []OpItem) string {
		for _, it := range buf {
			if f, ok := it.Op.(Feature); ok && !f.Passed {
				return f.Source
			}
		}
		return ""
	}

	for _, it := range items {
		switch op := it.Op.(type) {
		case Comment:
			continue

		case DocComment:
			if mode == skipRecipe {
				pendingNext = append(pendingNext, it)
			} else {
				pendingCurrent = append(pendingCurrent, it)
			}

		case Feature:
			if mode == skipRecipe {
				pendingNext = append(pendingNext, it)
			} else {
				pendingCurrent = append(pendingCurrent, it)
				pass = pass && op.Passed
			}

		case Recipe:
			if mode == skipRecipe {
				// Done skipping the previous disabled recipe; the
				// next-recipe buffer becomes current.
				mode = skipNone
				pendingCurrent = pendingNext
				pendingNext = nil
				pass = true
				for _, p := range pendingCurrent {
					if f, ok := p.Op.(Feature); ok {
						pass = pass && f.Passed
					}
				}
			}
			if pass {
				flushPending(&pendingCurrent)
				retained = append(retained, it)
			} else {
				disabled = append(disabled, RecipeDesc{
					Name:    op.Name,
					Args:    op.Args,
					Deps:    op.Deps,
					Desc:    docFor(pendingCurrent),
					Feat:    featFor(pendingCurrent),
					Line:    it.Line,
					File:    filename,
					Enabled: false,
				})
				pendingCurrent = nil
				mode = skipRecipe
			}

		case If, While, For:
			switch mode {
			case skipRecipe:
				// discarded along with the rest of the disabled recipe
			case skipCommand:
				nesting++
			default:
				if pass {
					flushPending(&pendingCurrent)
					retained = append(retained, it)
				} else {
					pendingCurrent = nil
					mode = skipCommand
					nesting = 1
				}
			}

		case StmtClose:
			switch mode {
			case skipCommand:
				nesting--
				if nesting == 0 {
					mode = skipNone
					pass = true
				}
			case skipRecipe:
				// discarded
			default:
				retained = append(retained, it)
			}

		default:
			switch mode {
			case skipRecipe, skipCommand:
				// discarded
			default:
				if pass {
					flushPending(&pendingCurrent)
					retained = append(retained, it)
				}
			}
		}
	}

	return retained, disabled, nil
}

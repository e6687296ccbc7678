// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"fmt"
	"runtime"
	"strings"
)

// Predicate is one term of a #[feature(...)] guard: an optional negation,
// a kind name, and the values it matches against (any-of, case-insensitive).
type Predicate struct {
	Negate bool
	Kind   string
	Values []string
}

// Guard is a sequence of predicates combined by short-circuit AND.
type Guard []Predicate

// RunOpts carries the runtime knobs the external CLI front-end passes into
// the core (spec §6): user features, verbosity, dry-run.
type RunOpts struct {
	Feats    []string
	Verbosity int
	DryRun   bool

	// referencedFeatures accumulates every "feature"/"feat" kind value the
	// evaluator has seen, for --list-features.
	referencedFeatures map[string]bool
}

func NewRunOpts() *RunOpts {
	return &RunOpts{referencedFeatures: make(map[string]bool)}
}

func (o *RunOpts) WithFeats(feats []string) *RunOpts {
	o.Feats = feats
	return o
}

func (o *RunOpts) WithVerbosity(v int) *RunOpts {
	o.Verbosity = v
	return o
}

func (o *RunOpts) WithDryRun(b bool) *RunOpts {
	o.DryRun = b
	return o
}

// UserFeatures returns every user-feature name referenced by a guard seen so
// far, sorted is left to the caller (engine.go sorts when building the list).
func (o *RunOpts) UserFeatures() []string {
	if o.referencedFeatures == nil {
		return nil
	}
	out := make([]string, 0, len(o.referencedFeatures))
	for k := range o.referencedFeatures {
		out = append(out, k)
	}
	return out
}

// hostOS / hostArch / hostBit / hostEndian / hostFamily return the strings
// the feature evaluator and the matching built-in probes (§4.G) compare
// against. These are the "platform-specific" facts spec §1 treats as part
// of the narrow core/host interface, but unlike shell selection they are
// cheap, host-observable constants so the core computes them directly.
func hostOS() string { return runtime.GOOS }

func hostArch() string { return runtime.GOARCH }

func hostFamily() string {
	if runtime.GOOS == "windows" {
		return "windows"
	}
	return "unix"
}

func hostBit() string {
	const intSize = 32 << (^uint(0) >> 63)
	return fmt.Sprintf("%d", intSize)
}

func hostEndian() string {
	switch runtime.GOARCH {
	case "mips", "mips64", "ppc64", "s390x":
		return "big"
	default:
		return "little"
	}
}

// EvalGuard evaluates a parsed guard against RunOpts (§4.C). The guard
// passes iff every predicate passes; any unknown kind is an error. As a
// side effect every feature/feat kind value is recorded on opts for
// --list-features.
func EvalGuard(g Guard, opts *RunOpts) (bool, error) {
	if opts != nil && opts.referencedFeatures != nil {
		for _, p := range g {
			if k := strings.ToLower(p.Kind); k == "feature" || k == "feat" {
				for _, v := range p.Values {
					opts.referencedFeatures[v] = true
				}
			}
		}
	}
	for _, p := range g {
		ok, err := evalPredicate(p, opts)
		if err != nil {
			return false, err
		}
		if p.Negate {
			ok = !ok
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalPredicate(p Predicate, opts *RunOpts) (bool, error) {
	switch strings.ToLower(p.Kind) {
	case "os":
		return matchAnyCI(p.Values, hostOS()), nil
	case "family", "platform":
		return matchAnyCI(p.Values, hostFamily()), nil
	case "bit":
		return matchAnyCI(p.Values, hostBit()), nil
	case "arch":
		return matchAnyCI(p.Values, hostArch()), nil
	case "endian":
		return matchAnyCI(p.Values, hostEndian()), nil
	case "feature", "feat":
		if opts != nil && opts.referencedFeatures != nil {
			for _, v := range p.Values {
				opts.referencedFeatures[v] = true
			}
		}
		if opts == nil {
			return false, nil
		}
		return matchFeatureList(p.Values, opts.Feats), nil
	default:
		return false, newErr(KindInvalidFeatureName, fmt.Sprintf("unknown feature kind %q", p.Kind))
	}
}

func matchAnyCI(values []string, actual string) bool {
	for _, v := range values {
		if strings.EqualFold(v, actual) {
			return true
		}
	}
	return false
}

// matchFeatureList: with no user feature list supplied at all, every
// feature predicate is false prior to negation.
func matchFeatureList(want, have []string) bool {
	if len(have) == 0 {
		return false
	}
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}

package quality

import (
	"sort"
	"strings"

	"polyglot/api/internal/store"
)

// Check is one pluggable validation rule. Fails reports whether the unit's
// current target trips the rule.
type Check interface {
	Kind() string
	Name() string
	Fails(unit store.Unit) bool
}

// Registry holds the configured check set.
type Registry struct {
	checks map[string]Check
}

// NewRegistry returns a registry with the built-in checks.
func NewRegistry() *Registry {
	r := &Registry{checks: make(map[string]Check)}
	for _, check := range []Check{
		sameCheck{},
		beginNewlineCheck{},
		endNewlineCheck{},
		endSpaceCheck{},
		endStopCheck{},
		doubleSpaceCheck{},
		pluralsCheck{},
	} {
		r.Register(check)
	}
	return r
}

func (r *Registry) Register(check Check) {
	r.checks[check.Kind()] = check
}

func (r *Registry) Lookup(kind string) (Check, bool) {
	check, ok := r.checks[kind]
	return check, ok
}

// Evaluate recomputes the failing check set for a unit. Untranslated and
// needs-edit units are not checked; the workflow state already flags them.
func (r *Registry) Evaluate(unit store.Unit) []string {
	if unit.State < store.StateTranslated {
		return nil
	}
	var failing []string
	for kind, check := range r.checks {
		if check.Fails(unit) {
			failing = append(failing, kind)
		}
	}
	sort.Strings(failing)
	return failing
}

// DescribeKinds maps check kinds to their display names, keeping unknown
// kinds verbatim so stale rows still render.
func (r *Registry) DescribeKinds(kinds []string) []string {
	names := make([]string, len(kinds))
	for i, kind := range kinds {
		if check, ok := r.checks[kind]; ok {
			names[i] = check.Name()
		} else {
			names[i] = kind
		}
	}
	return names
}

type sameCheck struct{}

func (sameCheck) Kind() string { return "same" }
func (sameCheck) Name() string { return "unchanged translation" }
func (sameCheck) Fails(unit store.Unit) bool {
	return unit.Target != "" && unit.Target == unit.Source
}

type beginNewlineCheck struct{}

func (beginNewlineCheck) Kind() string { return "begin_newline" }
func (beginNewlineCheck) Name() string { return "starting newline" }
func (beginNewlineCheck) Fails(unit store.Unit) bool {
	return mismatchOnAnyForm(unit, func(source, target string) bool {
		return strings.HasPrefix(source, "\n") != strings.HasPrefix(target, "\n")
	})
}

type endNewlineCheck struct{}

func (endNewlineCheck) Kind() string { return "end_newline" }
func (endNewlineCheck) Name() string { return "trailing newline" }
func (endNewlineCheck) Fails(unit store.Unit) bool {
	return mismatchOnAnyForm(unit, func(source, target string) bool {
		return strings.HasSuffix(source, "\n") != strings.HasSuffix(target, "\n")
	})
}

type endSpaceCheck struct{}

func (endSpaceCheck) Kind() string { return "end_space" }
func (endSpaceCheck) Name() string { return "trailing space" }
func (endSpaceCheck) Fails(unit store.Unit) bool {
	return mismatchOnAnyForm(unit, func(source, target string) bool {
		return strings.HasSuffix(source, " ") != strings.HasSuffix(target, " ")
	})
}

type endStopCheck struct{}

func (endStopCheck) Kind() string { return "end_stop" }
func (endStopCheck) Name() string { return "mismatched full stop" }
func (endStopCheck) Fails(unit store.Unit) bool {
	return mismatchOnAnyForm(unit, func(source, target string) bool {
		return strings.HasSuffix(source, ".") != strings.HasSuffix(target, ".")
	})
}

type doubleSpaceCheck struct{}

func (doubleSpaceCheck) Kind() string { return "double_space" }
func (doubleSpaceCheck) Name() string { return "double space" }
func (doubleSpaceCheck) Fails(unit store.Unit) bool {
	return mismatchOnAnyForm(unit, func(source, target string) bool {
		return strings.Contains(target, "  ") && !strings.Contains(source, "  ")
	})
}

type pluralsCheck struct{}

func (pluralsCheck) Kind() string { return "plurals" }
func (pluralsCheck) Name() string { return "missing plural form" }
func (pluralsCheck) Fails(unit store.Unit) bool {
	forms := unit.TargetForms()
	if len(forms) < 2 {
		return false
	}
	filled := 0
	for _, form := range forms {
		if strings.TrimSpace(form) != "" {
			filled++
		}
	}
	return filled > 0 && filled < len(forms)
}

// mismatchOnAnyForm runs a source/target predicate over each plural form,
// pairing excess target forms with the last source form.
func mismatchOnAnyForm(unit store.Unit, predicate func(source, target string) bool) bool {
	sources := store.SplitPlural(unit.Source)
	for i, target := range unit.TargetForms() {
		if target == "" {
			continue
		}
		source := sources[len(sources)-1]
		if i < len(sources) {
			source = sources[i]
		}
		if predicate(source, target) {
			return true
		}
	}
	return false
}

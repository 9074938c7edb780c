// Package quality applies automatic fixups to submitted translations and
// evaluates the configured quality checks before a write is accepted.
package quality

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fixup is one deterministic text transform applied to submitted targets.
type Fixup interface {
	Name() string
	Apply(source, target string) (string, bool)
}

// fixups run in a fixed order; each reports whether it changed the text.
var fixups = []Fixup{
	removeControlChars{},
	removeZeroWidthSpace{},
	normalizeNFC{},
	trailingEllipsis{},
}

// Fix runs the fixup chain over every plural form of the submitted target
// and returns the final forms plus the names of the fixups that fired.
// Template units are stored verbatim: fixing up the source language would
// rewrite what translators translate against.
func Fix(sourceForms, targetForms []string, isTemplate bool) ([]string, []string) {
	if isTemplate {
		return targetForms, nil
	}

	fixed := make([]string, len(targetForms))
	fired := make([]string, 0)
	firedSet := make(map[string]struct{})

	for i, target := range targetForms {
		source := ""
		if i < len(sourceForms) {
			source = sourceForms[i]
		} else if len(sourceForms) > 0 {
			source = sourceForms[len(sourceForms)-1]
		}
		for _, fixup := range fixups {
			var changed bool
			target, changed = fixup.Apply(source, target)
			if changed {
				if _, seen := firedSet[fixup.Name()]; !seen {
					firedSet[fixup.Name()] = struct{}{}
					fired = append(fired, fixup.Name())
				}
			}
		}
		fixed[i] = target
	}
	return fixed, fired
}

type removeControlChars struct{}

func (removeControlChars) Name() string { return "control characters removal" }

func (removeControlChars) Apply(_, target string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, target)
	return cleaned, cleaned != target
}

type removeZeroWidthSpace struct{}

func (removeZeroWidthSpace) Name() string { return "zero-width space removal" }

func (removeZeroWidthSpace) Apply(source, target string) (string, bool) {
	// A zero-width space present in the source is intentional.
	if strings.ContainsRune(source, '​') {
		return target, false
	}
	cleaned := strings.ReplaceAll(target, "​", "")
	return cleaned, cleaned != target
}

type normalizeNFC struct{}

func (normalizeNFC) Name() string { return "unicode normalization" }

func (normalizeNFC) Apply(_, target string) (string, bool) {
	normalized := norm.NFC.String(target)
	return normalized, normalized != target
}

type trailingEllipsis struct{}

func (trailingEllipsis) Name() string { return "trailing ellipsis" }

func (trailingEllipsis) Apply(source, target string) (string, bool) {
	if !strings.HasSuffix(source, "…") || !strings.HasSuffix(target, "...") {
		return target, false
	}
	return strings.TrimSuffix(target, "...") + "…", true
}

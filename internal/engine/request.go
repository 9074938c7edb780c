package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"polyglot/api/internal/store"
)

type SubmitKind int

const (
	KindTranslate SubmitKind = iota
	KindSkip
	KindSuggest
	KindMerge
	KindRevert
	KindAccept
	KindAcceptEdit
	KindDeleteSuggestion
	KindUpvote
	KindDownvote
)

// SubmitRequest is one editing-session POST, resolved into a single tagged
// variant at the boundary. The original form multiplexes every action on
// which button was pressed; resolving it once here keeps the engine free of
// cascading field checks.
type SubmitRequest struct {
	Kind             SubmitKind
	Target           []string
	State            store.UnitState
	CommitMessage    string
	HasCommitMessage bool
	SuggestionID     int64
	MergeID          int64
	RevertID         int64
	Honeypot         bool
}

// suggestionActions maps form buttons that carry a suggestion id.
var suggestionActions = map[string]SubmitKind{
	"accept":      KindAccept,
	"accept_edit": KindAcceptEdit,
	"delete":      KindDeleteSuggestion,
	"upvote":      KindUpvote,
	"downvote":    KindDownvote,
}

// ParseSubmit resolves a submitted form into a tagged request. The hidden
// "contact" field is a honeypot: humans never see it, bots fill it.
func ParseSubmit(values url.Values) (SubmitRequest, error) {
	// An absent commit_message field means "leave the message alone"; a
	// present but empty one clears it.
	req := SubmitRequest{
		Target:           collectTargetForms(values),
		CommitMessage:    strings.TrimSpace(values.Get("commit_message")),
		HasCommitMessage: values.Has("commit_message"),
		Honeypot:         values.Get("contact") != "",
	}

	switch {
	case values.Get("fuzzy") != "":
		req.State = store.StateNeedsEdit
	case values.Get("review") != "":
		req.State = store.StateApproved
	default:
		req.State = store.StateTranslated
	}

	if values.Has("skip") {
		req.Kind = KindSkip
		return req, nil
	}
	if values.Has("suggest") {
		req.Kind = KindSuggest
		return req, nil
	}
	if raw := values.Get("merge"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, validationError(fmt.Sprintf("invalid merge id %q", raw))
		}
		req.Kind = KindMerge
		req.MergeID = id
		return req, nil
	}
	if raw := values.Get("revert"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, validationError(fmt.Sprintf("invalid revert id %q", raw))
		}
		req.Kind = KindRevert
		req.RevertID = id
		return req, nil
	}
	for field, kind := range suggestionActions {
		raw := values.Get(field)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, validationError(fmt.Sprintf("invalid suggestion id %q", raw))
		}
		req.Kind = kind
		req.SuggestionID = id
		return req, nil
	}

	req.Kind = KindTranslate
	return req, nil
}

// collectTargetForms gathers target_0..target_n in order. A plain "target"
// field serves singular units.
func collectTargetForms(values url.Values) []string {
	if _, ok := values["target_0"]; !ok {
		if raw, ok := values["target"]; ok && len(raw) > 0 {
			return []string{raw[0]}
		}
		return nil
	}
	var forms []string
	for i := 0; ; i++ {
		raw, ok := values[fmt.Sprintf("target_%d", i)]
		if !ok {
			break
		}
		forms = append(forms, raw[0])
	}
	return forms
}

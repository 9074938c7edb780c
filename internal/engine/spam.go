package engine

import (
	"context"
	"strings"
)

// LinkSpamChecker flags anonymous suggestions stuffed with links. It is a
// coarse screen; a real deployment plugs a classification service into the
// SpamChecker interface instead.
type LinkSpamChecker struct {
	MaxLinks int
}

func NewLinkSpamChecker() *LinkSpamChecker {
	return &LinkSpamChecker{MaxLinks: 2}
}

func (c *LinkSpamChecker) IsSpam(ctx context.Context, text, remoteAddr string) bool {
	links := strings.Count(text, "http://") + strings.Count(text, "https://")
	return links > c.MaxLinks
}

// NopSpamChecker accepts everything.
type NopSpamChecker struct{}

func (NopSpamChecker) IsSpam(ctx context.Context, text, remoteAddr string) bool {
	return false
}

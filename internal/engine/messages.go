package engine

import (
	"fmt"
	"strings"
)

const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelDanger  = "danger"
)

type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Messages accumulates the user-facing diagnostics of one request. Handlers
// append as they go; the response renders the collected list plus one
// aggregated severity.
type Messages struct {
	items []Message
}

func (m *Messages) add(level, format string, args ...any) {
	m.items = append(m.items, Message{Level: level, Text: fmt.Sprintf(format, args...)})
}

func (m *Messages) Success(format string, args ...any) { m.add(LevelSuccess, format, args...) }
func (m *Messages) Info(format string, args ...any)    { m.add(LevelInfo, format, args...) }
func (m *Messages) Warning(format string, args ...any) { m.add(LevelWarning, format, args...) }
func (m *Messages) Error(format string, args ...any)   { m.add(LevelDanger, format, args...) }

func (m *Messages) Items() []Message {
	return m.items
}

// State folds the collected severities into one overall level, worst wins:
// danger > warning > info > success.
func (m *Messages) State() string {
	state := LevelSuccess
	for _, item := range m.items {
		switch item.Level {
		case LevelDanger:
			return LevelDanger
		case LevelWarning:
			state = LevelWarning
		case LevelInfo:
			if state == LevelSuccess {
				state = LevelInfo
			}
		}
	}
	return state
}

// Render joins the message texts for callers that want one string.
func (m *Messages) Render() string {
	texts := make([]string, len(m.items))
	for i, item := range m.items {
		texts[i] = item.Text
	}
	return strings.Join(texts, "\n")
}

// Package notify tells humans watching the wall about new submissions.
//
// It is a feed, not a moderation workflow: nothing here can hold back or
// remove a motto. Notify never blocks the submission path; when the
// destination is slow, messages are dropped.
package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/motto-wall/internal/model"
	"github.com/sakif/motto-wall/internal/moderation"
)

// Nop discards every notification. It is used when no destination is configured.
type Nop struct{}

func (Nop) Notify(*model.Motto) {}

// maxMessageLen keeps messages under Discord's 2000 character limit.
const maxMessageLen = 1900

// FormatMessage renders the notification text for m. Stored mottos keep
// whatever the author typed; markup is stripped here so the feed shows text
// only.
func FormatMessage(m *model.Motto) string {
	header := fmt.Sprintf("New motto #%d by %s", m.Number, moderation.StripMarkup(m.Nickname))
	if m.Timezone != nil {
		header += " (" + *m.Timezone + ")"
	}

	text := moderation.StripMarkup(m.Text)
	body := "> " + strings.ReplaceAll(text, "\n", "\n> ")
	msg := header + "\n" + body
	if utf8.RuneCountInString(msg) <= maxMessageLen {
		return msg
	}

	runes := []rune(msg)
	return string(runes[:maxMessageLen-1]) + "…"
}

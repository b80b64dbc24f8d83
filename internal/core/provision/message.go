package provision

import (
	"fmt"
	"strings"

	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/core/starters"
)

// WelcomeMessage is the opening post of a freshly provisioned room.
func WelcomeMessage(u model.Unit, questions []string) string {
	var sb strings.Builder

	if u.Kind == model.KindPair {
		fmt.Fprintf(&sb, "Welcome! Meet your Micro-Match for this week. You both share an interest in *%s* :wave:", u.Topic)
	} else {
		fmt.Fprintf(&sb, "Welcome, and meet your micro matches for this week! You are all interested in chatting about *%s* :tada:", u.Topic)
	}

	if len(questions) > 0 {
		sb.WriteString("\nHere are some ice breakers:")
		for _, q := range questions {
			sb.WriteString("\n• ")
			sb.WriteString(q)
		}
	} else {
		fmt.Fprintf(&sb, "\nStarter: *%s*", starters.Fallback(u.Topic))
	}

	sb.WriteString("\n\nReminder: this room gets archived next Monday. Let's make this micro match count!")
	return sb.String()
}

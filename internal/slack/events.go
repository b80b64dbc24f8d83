package slack

import (
	"encoding/json"
	"fmt"
	"net/http"

	goslack "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// DirectMessage is a message a participant sent to the bot.
type DirectMessage struct {
	UserID string
	Text   string
}

// Event is the part of an Events API callback the service acts on. At most
// one field is set; both empty means the callback is ignored.
type Event struct {
	Challenge string
	Message   *DirectMessage
}

// ParseEvent decodes an Events API request body.
func ParseEvent(body []byte) (Event, error) {
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return Event{}, fmt.Errorf("failed to parse slack event: %w", err)
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return Event{}, fmt.Errorf("failed to parse challenge: %w", err)
		}
		return Event{Challenge: challenge.Challenge}, nil

	case slackevents.CallbackEvent:
		msg, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok {
			return Event{}, nil
		}
		// Bot posts, edits and joins are not participant input.
		if msg.ChannelType != "im" || msg.BotID != "" || msg.SubType != "" || msg.User == "" {
			return Event{}, nil
		}
		return Event{Message: &DirectMessage{UserID: msg.User, Text: msg.Text}}, nil
	}

	return Event{}, nil
}

// VerifyRequest checks the request signature when a signing secret is
// configured.
func VerifyRequest(header http.Header, body []byte, signingSecret string) error {
	if signingSecret == "" {
		return nil
	}
	sv, err := goslack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return fmt.Errorf("invalid slack signature headers: %w", err)
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("slack signature mismatch: %w", err)
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/agenthands/micromatch/internal/core/model"
)

const (
	ActionJoinGroup = "join_group"
	ActionDecline   = "join_group_rejected"

	maxButtonLabel  = 75
	maxSingleRow    = 4
	roomsPerRow     = 3
	declineLabel    = "No, thanks"
	interestsPrompt = "Hi there! What are your interests this week? Reply with one or more topics separated by commas (e.g., fitness, cinema, games)."
	offerPrompt     = "This time we couldn't match you automatically.\nWould you like to join one of these group rooms instead?"
	offerFallback   = "Choose a group to join"
	noRoomsText     = "I couldn't find a match for you this round, but no worries! A new round starts next week, and I'd love to try again."
	noValidRoomText = "I couldn't find group rooms to suggest right now. I'll try again next week!"
)

// Button is one interactive choice. Value is an opaque payload echoed back
// by the transport when the button is pressed.
type Button struct {
	Label    string
	ActionID string
	Value    string
}

// Offer lays buttons out in rows; the transport renders each row as one
// action block.
type Offer struct {
	Prompt string
	Rows   [][]Button
}

// ButtonValue is the JSON payload carried by join buttons.
type ButtonValue struct {
	Action string `json:"action"`
	RoomID string `json:"room_id,omitempty"`
	Topic  string `json:"topic,omitempty"`
}

type Messenger interface {
	SendText(ctx context.Context, userID, text string) error
	SendOffer(ctx context.Context, userID, text string, offer Offer) error
}

type Notifier struct {
	messenger Messenger
}

func New(m Messenger) *Notifier {
	return &Notifier{messenger: m}
}

// OfferRooms proposes the cycle's group rooms to a participant who could not
// be matched.
func (n *Notifier) OfferRooms(ctx context.Context, participantID string, rooms []model.Unit) error {
	if len(rooms) == 0 {
		return n.messenger.SendText(ctx, participantID, noRoomsText)
	}

	offer, ok := BuildOffer(rooms)
	if !ok {
		return n.messenger.SendText(ctx, participantID, noValidRoomText)
	}
	return n.messenger.SendOffer(ctx, participantID, offerFallback, offer)
}

// BuildOffer dedupes rooms by (room, topic) and lays out the join buttons.
// It reports false when no usable room is left.
func BuildOffer(rooms []model.Unit) (Offer, bool) {
	seen := make(map[string]struct{})
	var buttons []Button
	for _, r := range rooms {
		topic := strings.TrimSpace(r.Topic)
		if r.RoomID == "" || topic == "" {
			continue
		}
		key := r.RoomID + ":" + strings.ToLower(topic)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		buttons = append(buttons, Button{
			Label:    truncate(topic, maxButtonLabel),
			ActionID: ActionJoinGroup,
			Value:    encodeValue(ButtonValue{Action: ActionJoinGroup, RoomID: r.RoomID, Topic: topic}),
		})
	}
	if len(buttons) == 0 {
		return Offer{}, false
	}

	decline := Button{
		Label:    declineLabel,
		ActionID: ActionDecline,
		Value:    encodeValue(ButtonValue{Action: ActionDecline}),
	}

	offer := Offer{Prompt: offerPrompt}
	if len(buttons) <= maxSingleRow {
		offer.Rows = [][]Button{append(buttons, decline)}
		return offer, true
	}
	for i := 0; i < len(buttons); i += roomsPerRow {
		end := min(i+roomsPerRow, len(buttons))
		offer.Rows = append(offer.Rows, buttons[i:end])
	}
	offer.Rows = append(offer.Rows, []Button{decline})
	return offer, true
}

// NotifyUnmatched offers the cycle's group rooms to every unmatched
// participant. It returns how many were notified.
func (n *Notifier) NotifyUnmatched(ctx context.Context, result *model.Result) int {
	if result == nil {
		return 0
	}
	rooms := result.GroupRooms()
	sent := 0
	for _, id := range result.Unmatched {
		if err := n.OfferRooms(ctx, id, rooms); err != nil {
			log.Warn().Err(err).Str("participant_id", id).Msg("Failed to notify unmatched participant")
			continue
		}
		sent++
	}
	log.Info().Int("notified", sent).Int("unmatched", len(result.Unmatched)).Msg("Unmatched participants notified")
	return sent
}

// AskForInterests sends the weekly interest prompt.
func (n *Notifier) AskForInterests(ctx context.Context, participantIDs []string) int {
	sent := 0
	for _, id := range participantIDs {
		if err := n.messenger.SendText(ctx, id, interestsPrompt); err != nil {
			log.Warn().Err(err).Str("participant_id", id).Msg("Failed to send interest prompt")
			continue
		}
		sent++
	}
	return sent
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func encodeValue(v ButtonValue) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"action":%q}`, v.Action)
	}
	return string(data)
}

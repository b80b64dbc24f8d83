package model

import (
	"strings"
	"time"
)

type Preference string

const (
	PreferencePairwise Preference = "1:1"
	PreferenceGroup    Preference = "group"
)

// ParsePreference maps free-form input to a Preference. Anything that is not
// recognisably a 1:1 request is treated as group, which is the default.
func ParsePreference(s string) Preference {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1:1", "1-1", "1on1", "pair", "pairwise", "duo":
		return PreferencePairwise
	default:
		return PreferenceGroup
	}
}

// ParticipantStatus is persisted per participant so a crashed cycle leaves a
// visible trail instead of stranded in-memory state.
type ParticipantStatus string

const (
	StatusNew       ParticipantStatus = "new"
	StatusResponded ParticipantStatus = "responded"
	StatusMatching  ParticipantStatus = "matching"
	StatusMatched   ParticipantStatus = "matched"
	StatusUnmatched ParticipantStatus = "unmatched"
	StatusInactive  ParticipantStatus = "inactive"
)

type Participant struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Consent    bool              `json:"consent"`
	Status     ParticipantStatus `json:"status"`
	Preference Preference        `json:"preference"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Response is one participant's declaration for the current cycle.
type Response struct {
	ParticipantID string     `json:"participant_id"`
	Topics        []string   `json:"topics"`
	Preference    Preference `json:"preference"`
	Timestamp     time.Time  `json:"timestamp"`
}

// ParseTopics splits a comma separated message into trimmed, lowercased
// topics, dropping empty entries.
func ParseTopics(text string) []string {
	var topics []string
	for _, part := range strings.Split(text, ",") {
		t := strings.ToLower(strings.TrimSpace(part))
		if t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

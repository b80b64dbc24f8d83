package model

import "time"

type UnitKind string

const (
	KindPair  UnitKind = "PAIR"
	KindGroup UnitKind = "GROUP"
)

// Unit is one planned room's worth of participants. RoomID is set once the
// room has been provisioned.
type Unit struct {
	Topic   string   `json:"topic"`
	Kind    UnitKind `json:"kind"`
	Members []string `json:"members"`
	RoomID  string   `json:"room_id,omitempty"`
	// Index and Total number the batches of one topic, 1-based. Pairs and
	// single batches have Total == 1.
	Index int `json:"index"`
	Total int `json:"total"`
}

type UnitFailure struct {
	Unit  Unit   `json:"unit"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type Room struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Kind      UnitKind  `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Archived  bool      `json:"archived"`
}

type UnmatchedRecord struct {
	ParticipantID string `json:"participant_id"`
	WeekBucket    string `json:"week_bucket"`
}

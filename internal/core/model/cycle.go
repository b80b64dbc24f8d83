package model

import "time"

// Phase tracks how far a cycle run got.
type Phase string

const (
	PhaseCollected   Phase = "COLLECTED"
	PhaseNormalized  Phase = "NORMALIZED"
	PhaseBucketed    Phase = "BUCKETED"
	PhasePaired      Phase = "PAIRED"
	PhaseGrouped     Phase = "GROUPED"
	PhaseProvisioned Phase = "PROVISIONED"
	PhaseLedgered    Phase = "LEDGERED"
)

type Cycle struct {
	ID          string     `json:"id"`
	WeekBucket  string     `json:"week_bucket"`
	Phase       Phase      `json:"phase"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Respondents int        `json:"respondents"`
	Units       int        `json:"units"`
	Unmatched   int        `json:"unmatched"`
	Failed      int        `json:"failed"`
}

// Result is what a cycle run hands back to its caller.
type Result struct {
	CycleID    string        `json:"cycle_id"`
	WeekBucket string        `json:"week_bucket"`
	Created    []Unit        `json:"created"`
	Unmatched  []string      `json:"unmatched"`
	NotEnough  bool          `json:"not_enough"`
	Failed     []UnitFailure `json:"failed,omitempty"`
	Abandoned  []Unit        `json:"abandoned,omitempty"`
}

// GroupRooms returns the provisioned GROUP units, the rooms an unmatched
// participant can be offered.
func (r *Result) GroupRooms() []Unit {
	var rooms []Unit
	for _, u := range r.Created {
		if u.Kind == KindGroup && u.RoomID != "" {
			rooms = append(rooms, u)
		}
	}
	return rooms
}

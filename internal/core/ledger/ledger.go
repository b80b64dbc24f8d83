package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agenthands/micromatch/internal/core/model"
)

// WeekBucket returns the Monday (UTC) of t's ISO week as YYYY-MM-DD.
func WeekBucket(t time.Time) string {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	return monday.Format(time.DateOnly)
}

// Unmatched returns the respondents that belong to none of the units, in
// respondent order.
func Unmatched(all []string, units []model.Unit) []string {
	matched := make(map[string]struct{})
	for _, u := range units {
		for _, m := range u.Members {
			matched[m] = struct{}{}
		}
	}

	var out []string
	seen := make(map[string]struct{}, len(all))
	for _, id := range all {
		if _, ok := matched[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type Store interface {
	AddUnmatchedForWeek(ctx context.Context, week string, participantIDs []string) error
	SetParticipantStatus(ctx context.Context, participantID string, status model.ParticipantStatus) error
}

// Ledger writes cycle outcomes. Write failures are logged and swallowed;
// rooms that already exist are not rolled back because of them.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record adds the unmatched participants to the week's ledger. The store
// inserts only absent (participant, week) pairs, so re-recording is harmless.
func (l *Ledger) Record(ctx context.Context, week string, unmatched []string) {
	if len(unmatched) == 0 {
		return
	}
	if err := l.store.AddUnmatchedForWeek(ctx, week, unmatched); err != nil {
		log.Error().Err(err).Str("week", week).Int("count", len(unmatched)).Msg("Failed to record unmatched participants")
		return
	}
	log.Info().Str("week", week).Int("count", len(unmatched)).Msg("Recorded unmatched participants")
}

// MarkStatuses persists the final status of every respondent.
func (l *Ledger) MarkStatuses(ctx context.Context, matched, unmatched []string) {
	l.mark(ctx, matched, model.StatusMatched)
	l.mark(ctx, unmatched, model.StatusUnmatched)
}

// Mark sets one status for many participants.
func (l *Ledger) Mark(ctx context.Context, ids []string, status model.ParticipantStatus) {
	l.mark(ctx, ids, status)
}

func (l *Ledger) mark(ctx context.Context, ids []string, status model.ParticipantStatus) {
	for _, id := range ids {
		if err := l.store.SetParticipantStatus(ctx, id, status); err != nil {
			log.Warn().Err(err).Str("participant_id", id).Str("status", string(status)).Msg("Failed to update participant status")
		}
	}
}

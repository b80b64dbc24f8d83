package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agenthands/micromatch/internal/core/grouping"
	"github.com/agenthands/micromatch/internal/core/ledger"
	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/core/provision"
	"github.com/agenthands/micromatch/internal/core/topics"
)

// Store is what a cycle run reads and writes.
type Store interface {
	ledger.Store
	provision.RoomRegistry

	GetAllResponses(ctx context.Context) ([]model.Response, error)
	ListParticipantsByStatus(ctx context.Context, status model.ParticipantStatus) ([]model.Participant, error)
	ClearResponses(ctx context.Context) error
	SaveCycle(ctx context.Context, c model.Cycle) error
}

type UnitProvisioner interface {
	ProvisionAll(ctx context.Context, units []model.Unit) provision.Report
}

type Options struct {
	MaxGroupSize   int
	ClearResponses bool
	Now            func() time.Time
}

// Matcher runs one matching cycle end to end. Callers serialize runs.
type Matcher struct {
	Store       Store
	Normalizer  *topics.Normalizer
	Pairer      *grouping.Pairer
	Provisioner UnitProvisioner
	Ledger      *ledger.Ledger

	opts Options
}

func NewMatcher(store Store, normalizer *topics.Normalizer, pairer *grouping.Pairer, provisioner UnitProvisioner, opts Options) *Matcher {
	if normalizer == nil {
		normalizer = topics.NewNormalizer(nil, 0)
	}
	if pairer == nil {
		pairer = grouping.NewPairer(nil)
	}
	if opts.MaxGroupSize < 2 {
		opts.MaxGroupSize = grouping.DefaultMaxGroupSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Matcher{
		Store:       store,
		Normalizer:  normalizer,
		Pairer:      pairer,
		Provisioner: provisioner,
		Ledger:      ledger.New(store),
		opts:        opts,
	}
}

// RunMatchingCycle reads the current responses, forms pairs and groups,
// provisions a room per unit and records who was left unmatched. Only a
// failure to read responses is returned as an error; everything later
// degrades and is reported in the Result.
func (m *Matcher) RunMatchingCycle(ctx context.Context) (*model.Result, error) {
	started := m.opts.Now().UTC()
	cycle := &model.Cycle{
		ID:         uuid.New().String(),
		WeekBucket: ledger.WeekBucket(started),
		StartedAt:  started,
	}
	logger := log.With().Str("cycle_id", cycle.ID).Str("week", cycle.WeekBucket).Logger()

	responses, err := m.Store.GetAllResponses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read responses: %w", err)
	}

	// Bookkeeping must land even if the caller's ctx is cancelled mid-run.
	bookCtx := context.WithoutCancel(ctx)

	respondents := participantIDs(responses)
	cycle.Respondents = len(respondents)
	m.advance(bookCtx, logger, cycle, model.PhaseCollected)
	m.recoverStranded(bookCtx, logger)
	m.Ledger.Mark(bookCtx, respondents, model.StatusMatching)

	result := &model.Result{
		CycleID:    cycle.ID,
		WeekBucket: cycle.WeekBucket,
		Created:    []model.Unit{},
		Unmatched:  []string{},
	}

	if len(respondents) < 2 {
		logger.Info().Int("respondents", len(respondents)).Msg("Not enough respondents to match")
		result.NotEnough = true
		result.Unmatched = append(result.Unmatched, respondents...)
		m.finish(bookCtx, logger, cycle, result, false)
		return result, nil
	}

	mapping := m.Normalizer.Normalize(ctx, topics.Collect(responses))
	m.advance(bookCtx, logger, cycle, model.PhaseNormalized)

	buckets := grouping.BuildBuckets(responses, mapping)
	m.advance(bookCtx, logger, cycle, model.PhaseBucketed)

	// Topics are independent: a participant may land in one unit per
	// topic they declared.
	var units []model.Unit
	for _, b := range buckets {
		units = append(units, m.Pairer.Pair(b)...)
	}
	m.advance(bookCtx, logger, cycle, model.PhasePaired)

	for _, b := range buckets {
		units = append(units, grouping.BatchBucket(b, m.opts.MaxGroupSize)...)
	}
	cycle.Units = len(units)
	m.advance(bookCtx, logger, cycle, model.PhaseGrouped)
	logger.Info().Int("units", len(units)).Int("topics", len(buckets)).Msg("Allocation complete")

	report := m.Provisioner.ProvisionAll(ctx, units)
	if report.Created != nil {
		result.Created = report.Created
	}
	result.Failed = report.Failed
	result.Abandoned = report.Abandoned
	cycle.Failed = len(report.Failed) + len(report.Abandoned)
	m.advance(bookCtx, logger, cycle, model.PhaseProvisioned)

	if n := len(report.Abandoned); n > 0 {
		logger.Warn().Int("abandoned", n).Msg("Run cancelled before all units were provisioned")
	}

	result.Unmatched = append(result.Unmatched, ledger.Unmatched(respondents, report.Created)...)
	m.finish(bookCtx, logger, cycle, result, m.opts.ClearResponses)
	return result, nil
}

func (m *Matcher) finish(ctx context.Context, logger zerolog.Logger, cycle *model.Cycle, result *model.Result, clearResponses bool) {
	m.Ledger.Record(ctx, cycle.WeekBucket, result.Unmatched)
	m.Ledger.MarkStatuses(ctx, matchedIDs(result.Created), result.Unmatched)

	if clearResponses {
		if err := m.Store.ClearResponses(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to clear responses")
		}
	}

	finished := m.opts.Now().UTC()
	cycle.FinishedAt = &finished
	cycle.Unmatched = len(result.Unmatched)
	m.advance(ctx, logger, cycle, model.PhaseLedgered)

	logger.Info().
		Int("created", len(result.Created)).
		Int("unmatched", len(result.Unmatched)).
		Int("failed", len(result.Failed)).
		Bool("not_enough", result.NotEnough).
		Msg("Matching cycle finished")
}

// recoverStranded resets participants an interrupted run left in matching.
func (m *Matcher) recoverStranded(ctx context.Context, logger zerolog.Logger) {
	stranded, err := m.Store.ListParticipantsByStatus(ctx, model.StatusMatching)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to look up participants stranded by an earlier run")
		return
	}
	if len(stranded) == 0 {
		return
	}

	ids := make([]string, len(stranded))
	for i, p := range stranded {
		ids[i] = p.ID
	}
	logger.Warn().Strs("participants", ids).Msg("Previous run was interrupted, resetting stranded participants")
	m.Ledger.Mark(ctx, ids, model.StatusResponded)
}

func (m *Matcher) advance(ctx context.Context, logger zerolog.Logger, cycle *model.Cycle, phase model.Phase) {
	cycle.Phase = phase
	if err := m.Store.SaveCycle(ctx, *cycle); err != nil {
		logger.Warn().Err(err).Str("phase", string(phase)).Msg("Failed to persist cycle phase")
		return
	}
	logger.Debug().Str("phase", string(phase)).Msg("Cycle advanced")
}

// participantIDs returns respondents in response order, once each.
func participantIDs(responses []model.Response) []string {
	seen := make(map[string]struct{}, len(responses))
	ids := make([]string, 0, len(responses))
	for _, r := range responses {
		if r.ParticipantID == "" {
			continue
		}
		if _, ok := seen[r.ParticipantID]; ok {
			continue
		}
		seen[r.ParticipantID] = struct{}{}
		ids = append(ids, r.ParticipantID)
	}
	return ids
}

// matchedIDs lists every member of the units once.
func matchedIDs(units []model.Unit) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, u := range units {
		for _, id := range u.Members {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

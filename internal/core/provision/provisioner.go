package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/core/starters"
)

const (
	DefaultWorkers     = 4
	DefaultCallTimeout = 10 * time.Second
)

type Options struct {
	Workers       int
	CallTimeout   time.Duration
	RatePerSecond float64
	StartersCount int
	// Private creates invite-only rooms.
	Private bool
	Now     func() time.Time
}

// Report is the aggregated outcome of one ProvisionAll call. Created units
// carry their RoomID and only the members whose invite succeeded.
type Report struct {
	Created   []model.Unit
	Failed    []model.UnitFailure
	Abandoned []model.Unit
}

type Provisioner struct {
	transport Transport
	registry  RoomRegistry
	starters  starters.Generator
	limiter   *rate.Limiter
	opts      Options

	now    func() time.Time
	suffix func() string
}

func NewProvisioner(transport Transport, registry RoomRegistry, gen starters.Generator, opts Options) *Provisioner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if gen == nil {
		gen = starters.NoopGenerator{}
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Provisioner{
		transport: transport,
		registry:  registry,
		starters:  gen,
		limiter:   rate.NewLimiter(limit, 1),
		opts:      opts,
		now:       opts.Now,
		suffix:    randomSuffix,
	}
}

type outcome struct {
	index     int
	unit      model.Unit
	err       error
	abandoned bool
}

// ProvisionAll provisions every unit on a bounded worker pool. One unit's
// failure never affects another. Units that had not started when ctx was
// cancelled are reported as abandoned.
func (p *Provisioner) ProvisionAll(ctx context.Context, units []model.Unit) Report {
	results := make(chan outcome, len(units))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)

	for i, u := range units {
		if ctx.Err() != nil {
			results <- outcome{index: i, unit: u, abandoned: true}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results <- outcome{index: i, unit: u, abandoned: true}
				return nil
			}
			created, err := p.Provision(ctx, u)
			results <- outcome{index: i, unit: created, err: err}
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	ordered := make([]outcome, len(units))
	for o := range results {
		ordered[o.index] = o
	}

	var report Report
	for _, o := range ordered {
		switch {
		case o.abandoned:
			report.Abandoned = append(report.Abandoned, o.unit)
		case o.err != nil:
			stage := StageCreate
			var ue *UnitError
			if errors.As(o.err, &ue) {
				stage = ue.Stage
			}
			report.Failed = append(report.Failed, model.UnitFailure{
				Unit:  o.unit,
				Stage: stage,
				Error: o.err.Error(),
			})
		default:
			report.Created = append(report.Created, o.unit)
		}
	}
	return report
}

// Provision creates the room for one unit, invites its members, records the
// room and posts the opening message. The returned unit has RoomID set and
// Members reduced to those actually invited.
func (p *Provisioner) Provision(ctx context.Context, u model.Unit) (model.Unit, error) {
	logger := log.With().Str("topic", u.Topic).Str("kind", string(u.Kind)).Logger()

	name := RoomName(u.Topic, u.Kind, p.now(), u.Index, u.Total)
	roomID, err := p.createRoom(ctx, name)
	if err != nil {
		return u, &UnitError{Stage: StageCreate, Err: err}
	}
	u.RoomID = roomID
	logger = logger.With().Str("room_id", roomID).Logger()

	var invited []string
	for _, member := range u.Members {
		err := p.call(ctx, func(ctx context.Context) error {
			return p.transport.InviteMembers(ctx, roomID, []string{member})
		})
		if err != nil && !errors.Is(err, ErrAlreadyMember) {
			logger.Warn().Err(err).Str("participant_id", member).Msg("Invite failed")
			continue
		}
		invited = append(invited, member)
	}

	room := model.Room{
		ID:        roomID,
		Topic:     u.Topic,
		Kind:      u.Kind,
		CreatedAt: p.now().UTC(),
	}
	if err := p.registry.UpsertRoom(ctx, room); err != nil {
		logger.Error().Err(err).Msg("Failed to record room")
	}

	planned := len(u.Members)
	u.Members = invited
	if len(invited) < 2 {
		return u, &UnitError{
			Stage: StageInvite,
			Err:   fmt.Errorf("only %d of %d members invited", len(invited), planned),
		}
	}

	if err := p.registry.AddRoomParticipants(ctx, roomID, invited); err != nil {
		logger.Error().Err(err).Msg("Failed to record room participants")
	}

	text := WelcomeMessage(u, p.questions(ctx, u.Topic))
	if err := p.call(ctx, func(ctx context.Context) error {
		return p.transport.PostMessage(ctx, roomID, text)
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to post opening message")
	}

	logger.Info().Int("members", len(invited)).Msg("Room provisioned")
	return u, nil
}

func (p *Provisioner) createRoom(ctx context.Context, name string) (string, error) {
	var roomID string
	create := func(name string) error {
		return p.call(ctx, func(ctx context.Context) error {
			id, err := p.transport.CreateRoom(ctx, name, p.opts.Private)
			roomID = id
			return err
		})
	}

	err := create(name)
	if errors.Is(err, ErrNameTaken) {
		retry := WithSuffix(name, p.suffix())
		log.Debug().Str("name", name).Str("retry", retry).Msg("Room name taken, retrying")
		err = create(retry)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create room %q: %w", name, err)
	}
	return roomID, nil
}

func (p *Provisioner) questions(ctx context.Context, topic string) []string {
	if p.opts.StartersCount <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()

	qs, err := p.starters.Generate(ctx, topic, p.opts.StartersCount)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Starter generation failed, using fallback")
		return nil
	}
	return qs
}

// call paces a transport call through the rate limiter and bounds it with
// the per-call timeout.
func (p *Provisioner) call(ctx context.Context, fn func(context.Context) error) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()
	return fn(ctx)
}

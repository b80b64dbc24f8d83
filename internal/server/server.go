package server

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/agenthands/micromatch/internal/config"
	"github.com/agenthands/micromatch/internal/core"
	"github.com/agenthands/micromatch/internal/core/grouping"
	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/core/notify"
	"github.com/agenthands/micromatch/internal/core/provision"
	"github.com/agenthands/micromatch/internal/core/starters"
	"github.com/agenthands/micromatch/internal/core/topics"
	"github.com/agenthands/micromatch/internal/llm"
	"github.com/agenthands/micromatch/internal/runlock"
	"github.com/agenthands/micromatch/internal/slack"
	"github.com/agenthands/micromatch/internal/store"
)

const (
	cycleLockName = "matching-cycle"
	starterTTL    = 24 * time.Hour
)

type CycleRunner interface {
	RunMatchingCycle(ctx context.Context) (*model.Result, error)
}

type NameResolver interface {
	UserName(ctx context.Context, userID string) string
}

type Server struct {
	Matcher  CycleRunner
	Store    store.Store
	Notifier *notify.Notifier
	Locker   runlock.Locker
	Names    NameResolver
	Config   *config.Config

	closers []func(ctx context.Context) error
}

// NewServer wires the service from configuration: store backend, LLM
// capabilities, Slack transport and the run lock.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{Config: cfg}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.Store = st
	s.closers = append(s.closers, st.Close)
	if err := st.BuildIndices(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to build store indices")
	}

	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	var (
		oracle topics.Canonicalizer = topics.IdentityCanonicalizer{}
		gen    starters.Generator   = starters.NoopGenerator{}
	)
	if llmClient != nil {
		oracle = topics.NewLLMCanonicalizer(llmClient, cfg.Prompts.Canonicalize)
		gen = starters.NewLLMGenerator(llmClient, cfg.Prompts.Starters, starterTTL)
		if c, ok := llmClient.(interface{ Close() error }); ok {
			s.closers = append(s.closers, func(context.Context) error { return c.Close() })
		}
	} else {
		log.Info().Msg("No LLM configured, using identity topics and generic starters")
	}

	sc := slack.New(cfg.Slack)
	s.Names = sc
	s.Notifier = notify.New(sc)

	m := cfg.Matching
	prov := provision.NewProvisioner(sc, st, gen, provision.Options{
		Workers:       m.Workers,
		CallTimeout:   m.TransportTimeout.Duration,
		RatePerSecond: m.RatePerSecond,
		StartersCount: m.StartersCount,
		Private:       cfg.Slack.PrivateRooms,
	})
	s.Matcher = core.NewMatcher(st,
		topics.NewNormalizer(oracle, m.OracleTimeout.Duration),
		grouping.NewPairer(nil),
		prov,
		core.Options{MaxGroupSize: m.MaxGroupSize, ClearResponses: m.ClearResponses},
	)

	if cfg.Redis.URL != "" {
		client, err := runlock.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		s.Locker = runlock.NewRedisLocker(client, cfg.Redis.LockTTL.Duration)
	} else {
		s.Locker = runlock.NewLocalLocker()
	}

	if cfg.Server.CronToken == "" {
		log.Warn().Msg("CRON_TOKEN is not set, trigger endpoints are unauthenticated")
	}

	return s, nil
}

// Close releases everything NewServer opened, last opened first.
func (s *Server) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("Error during shutdown")
		}
	}
	s.closers = nil
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.Health)
	r.POST("/match/run", s.requireCronToken(), s.RunMatch)
	r.POST("/prompts/interests", s.requireCronToken(), s.PromptInterests)
	r.POST("/responses", s.SaveResponse)
	r.GET("/weeks/:week/unmatched", s.WeekUnmatched)
	r.POST("/slack/events", s.SlackEvents)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

func isLocked(err error) bool {
	return errors.Is(err, runlock.ErrLocked)
}

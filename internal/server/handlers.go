package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/slack"
	"github.com/agenthands/micromatch/internal/store"
)

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requireCronToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		want := s.Config.Server.CronToken
		if want == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Cron-Token")
		if got == "" {
			got = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) RunMatch(c *gin.Context) {
	// The cycle outlives the trigger request.
	runCtx, cancel := s.runContext(c.Request.Context())
	defer cancel()

	release, err := s.Locker.Acquire(runCtx, cycleLockName)
	if isLocked(err) {
		c.JSON(http.StatusConflict, gin.H{"error": "a matching cycle is already running"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire run lock")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acquire run lock"})
		return
	}
	defer release()

	result, err := s.Matcher.RunMatchingCycle(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("Matching cycle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "matching cycle failed"})
		return
	}

	notified := 0
	if s.Config.Matching.NotifyUnmatched && s.Notifier != nil {
		notified = s.Notifier.NotifyUnmatched(runCtx, result)
	}

	c.JSON(http.StatusOK, gin.H{
		"result":   result,
		"notified": notified,
	})
}

func (s *Server) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if d := s.Config.Server.RunTimeout.Duration; d > 0 {
		return context.WithTimeout(detached, d)
	}
	return context.WithCancel(detached)
}

func (s *Server) PromptInterests(c *gin.Context) {
	ctx := c.Request.Context()

	participants, err := s.Store.ListConsentingParticipants(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list participants")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list participants"})
		return
	}

	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	sent := s.Notifier.AskForInterests(ctx, ids)

	c.JSON(http.StatusOK, gin.H{"participants": len(ids), "sent": sent})
}

type SaveResponseRequest struct {
	ParticipantID string   `json:"participant_id" binding:"required"`
	Topics        []string `json:"topics" binding:"required,min=1"`
	Preference    string   `json:"preference"`
}

func (s *Server) SaveResponse(c *gin.Context) {
	var req SaveResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	topics := model.ParseTopics(strings.Join(req.Topics, ","))
	if len(topics) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no usable topics"})
		return
	}

	pref := model.ParsePreference(req.Preference)
	if req.Preference == "" {
		pref = s.storedPreference(c, req.ParticipantID)
	}

	r := model.Response{
		ParticipantID: req.ParticipantID,
		Topics:        topics,
		Preference:    pref,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.saveResponse(c, r); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save response"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved", "response": r})
}

func (s *Server) WeekUnmatched(c *gin.Context) {
	week := c.Param("week")
	if _, err := time.Parse(time.DateOnly, week); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "week must be YYYY-MM-DD"})
		return
	}

	ids, err := s.Store.GetUnmatchedForWeek(c.Request.Context(), week)
	if err != nil {
		log.Error().Err(err).Str("week", week).Msg("Failed to read unmatched ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"week": week, "participants": ids})
}

func (s *Server) SlackEvents(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := slack.VerifyRequest(c.Request.Header, body, s.Config.Slack.SigningSecret); err != nil {
		log.Warn().Err(err).Msg("Rejected slack request")
		c.Status(http.StatusUnauthorized)
		return
	}

	ev, err := slack.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if ev.Challenge != "" {
		c.String(http.StatusOK, ev.Challenge)
		return
	}

	// Always acknowledge so Slack does not redeliver.
	if ev.Message != nil {
		s.handleDirectMessage(c, ev.Message)
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleDirectMessage(c *gin.Context, msg *slack.DirectMessage) {
	topics := model.ParseTopics(msg.Text)
	logger := log.With().Str("participant_id", msg.UserID).Logger()
	if len(topics) == 0 {
		logger.Debug().Msg("Ignoring message without topics")
		return
	}

	ctx := c.Request.Context()
	if _, err := s.Store.GetParticipant(ctx, msg.UserID); errors.Is(err, store.ErrNotFound) {
		name := msg.UserID
		if s.Names != nil {
			name = s.Names.UserName(ctx, msg.UserID)
		}
		p := model.Participant{
			ID:         msg.UserID,
			Name:       name,
			Consent:    true,
			Status:     model.StatusNew,
			Preference: model.PreferenceGroup,
		}
		if err := s.Store.SaveParticipant(ctx, p); err != nil {
			logger.Warn().Err(err).Msg("Failed to register participant")
		}
	}

	r := model.Response{
		ParticipantID: msg.UserID,
		Topics:        topics,
		Preference:    s.storedPreference(c, msg.UserID),
		Timestamp:     time.Now().UTC(),
	}
	if err := s.saveResponse(c, r); err == nil {
		logger.Info().Strs("topics", topics).Msg("Saved response from direct message")
	}
}

// storedPreference is the participant's saved preference, group if unknown.
func (s *Server) storedPreference(c *gin.Context, participantID string) model.Preference {
	p, err := s.Store.GetParticipant(c.Request.Context(), participantID)
	if err != nil || p.Preference == "" {
		return model.PreferenceGroup
	}
	return p.Preference
}

func (s *Server) saveResponse(c *gin.Context, r model.Response) error {
	ctx := c.Request.Context()
	if err := s.Store.SaveResponse(ctx, r); err != nil {
		log.Error().Err(err).Str("participant_id", r.ParticipantID).Msg("Failed to save response")
		return err
	}
	if err := s.Store.SetParticipantStatus(ctx, r.ParticipantID, model.StatusResponded); err != nil {
		log.Warn().Err(err).Str("participant_id", r.ParticipantID).Msg("Failed to update participant status")
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/driver"
)

// GraphStore keeps participants, responses, weeks and rooms as a graph:
// (Participant)-[:UNMATCHED_IN]->(Week), (Participant)-[:MEMBER_OF]->(Room),
// (Cycle)-[:RAN_IN]->(Week).
type GraphStore struct {
	driver driver.GraphDriver
}

func NewGraphStore(d driver.GraphDriver) *GraphStore {
	return &GraphStore{driver: d}
}

func (s *GraphStore) BuildIndices(ctx context.Context) error {
	return s.driver.BuildIndices(ctx)
}

func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *GraphStore) SaveResponse(ctx context.Context, r model.Response) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	params := map[string]any{
		"participant_id": r.ParticipantID,
		"topics":         toAnySlice(r.Topics),
		"preference":     string(r.Preference),
		"timestamp":      formatTime(ts),
	}
	if _, err := s.driver.ExecuteQuery(ctx, driver.SaveResponseQuery, params); err != nil {
		return fmt.Errorf("failed to save response: %w", err)
	}
	return nil
}

func (s *GraphStore) GetAllResponses(ctx context.Context) ([]model.Response, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.GetAllResponsesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}

	responses := make([]model.Response, 0, len(res.Records))
	for _, rec := range res.Records {
		pid, _ := rec.Get("participant_id")
		topics, _ := rec.Get("topics")
		pref, _ := rec.Get("preference")
		ts, _ := rec.Get("timestamp")

		responses = append(responses, model.Response{
			ParticipantID: asString(pid),
			Topics:        asStrings(topics),
			Preference:    model.Preference(asString(pref)),
			Timestamp:     parseTime(asString(ts)),
		})
	}
	return responses, nil
}

func (s *GraphStore) ClearResponses(ctx context.Context) error {
	if _, err := s.driver.ExecuteQuery(ctx, driver.ClearResponsesQuery, nil); err != nil {
		return fmt.Errorf("failed to clear responses: %w", err)
	}
	return nil
}

func (s *GraphStore) SaveParticipant(ctx context.Context, p model.Participant) error {
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	params := map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"consent":    p.Consent,
		"status":     string(p.Status),
		"preference": string(p.Preference),
		"updated_at": formatTime(updated),
	}
	if _, err := s.driver.ExecuteQuery(ctx, driver.SaveParticipantQuery, params); err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

func (s *GraphStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.GetParticipantQuery, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, ErrNotFound
	}
	p := participantFromRecord(res.Records[0])
	return &p, nil
}

func (s *GraphStore) ListConsentingParticipants(ctx context.Context) ([]model.Participant, error) {
	return s.listParticipants(ctx, driver.ListConsentingParticipantsQuery, nil)
}

func (s *GraphStore) ListParticipantsByStatus(ctx context.Context, status model.ParticipantStatus) ([]model.Participant, error) {
	return s.listParticipants(ctx, driver.ListParticipantsByStatusQuery, map[string]any{"status": string(status)})
}

func (s *GraphStore) listParticipants(ctx context.Context, query string, params map[string]any) ([]model.Participant, error) {
	res, err := s.driver.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	var out []model.Participant
	for _, rec := range res.Records {
		out = append(out, participantFromRecord(rec))
	}
	return out, nil
}

func (s *GraphStore) SetParticipantStatus(ctx context.Context, id string, status model.ParticipantStatus) error {
	params := map[string]any{
		"id":         id,
		"status":     string(status),
		"updated_at": formatTime(time.Now()),
	}
	if _, err := s.driver.ExecuteQuery(ctx, driver.SetParticipantStatusQuery, params); err != nil {
		return fmt.Errorf("failed to set participant status: %w", err)
	}
	return nil
}

func (s *GraphStore) AddUnmatchedForWeek(ctx context.Context, week string, participantIDs []string) error {
	if len(participantIDs) == 0 {
		return nil
	}
	params := map[string]any{
		"week": week,
		"ids":  toAnySlice(participantIDs),
	}
	if _, err := s.driver.ExecuteQuery(ctx, driver.AddUnmatchedForWeekQuery, params); err != nil {
		return fmt.Errorf("failed to record unmatched: %w", err)
	}
	return nil
}

func (s *GraphStore) GetUnmatchedForWeek(ctx context.Context, week string) ([]string, error) {
	return s.queryIDs(ctx, driver.GetUnmatchedForWeekQuery, map[string]any{"week": week})
}

func (s *GraphStore) UpsertRoom(ctx context.Context, room model.Room) error {
	created := room.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	params := map[string]any{
		"id":         room.ID,
		"topic":      room.Topic,
		"kind":       string(room.Kind),
		"created_at": formatTime(created),
		"archived":   room.Archived,
	}
	if _, err := s.driver.ExecuteQuery(ctx, driver.UpsertRoomQuery, params); err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}

func (s *GraphStore) AddRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error {
	if len(participantIDs) == 0 {
		return nil
	}
	params := map[string]any{
		"room_id": roomID,
		"ids":     toAnySlice(participantIDs),
	}
	if _, err := s.driver.ExecuteQuery(ctx, driver.AddRoomParticipantsQuery, params); err != nil {
		return fmt.Errorf("failed to add room participants: %w", err)
	}
	return nil
}

func (s *GraphStore) GetRoomParticipants(ctx context.Context, roomID string) ([]string, error) {
	return s.queryIDs(ctx, driver.GetRoomParticipantsQuery, map[string]any{"room_id": roomID})
}

func (s *GraphStore) SaveCycle(ctx context.Context, c model.Cycle) error {
	finished := ""
	if c.FinishedAt != nil {
		finished = formatTime(*c.FinishedAt)
	}
	params := map[string]any{
		"id":          c.ID,
		"week_bucket": c.WeekBucket,
		"phase":       string(c.Phase),
		"started_at":  formatTime(c.StartedAt),
		"finished_at": finished,
		"respondents": int64(c.Respondents),
		"units":       int64(c.Units),
		"unmatched":   int64(c.Unmatched),
		"failed":      int64(c.Failed),
	}
	if _, err := s.driver.ExecuteQuery(ctx, driver.SaveCycleQuery, params); err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}
	return nil
}

func (s *GraphStore) queryIDs(ctx context.Context, query string, params map[string]any) ([]string, error) {
	res, err := s.driver.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	ids := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		id, _ := rec.Get("id")
		ids = append(ids, asString(id))
	}
	return ids, nil
}

func participantFromRecord(rec *neo4j.Record) model.Participant {
	id, _ := rec.Get("id")
	name, _ := rec.Get("name")
	consent, _ := rec.Get("consent")
	status, _ := rec.Get("status")
	pref, _ := rec.Get("preference")
	updated, _ := rec.Get("updated_at")

	c, _ := consent.(bool)
	return model.Participant{
		ID:         asString(id),
		Name:       asString(name),
		Consent:    c,
		Status:     model.ParticipantStatus(asString(status)),
		Preference: model.Preference(asString(pref)),
		UpdatedAt:  parseTime(asString(updated)),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, x := range vals {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

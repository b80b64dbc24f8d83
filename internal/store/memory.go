package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/agenthands/micromatch/internal/core/model"
)

// MemoryStore keeps everything in process. It backs tests and single-shot
// local runs.
type MemoryStore struct {
	mu           sync.RWMutex
	responses    map[string]model.Response
	participants map[string]model.Participant
	unmatched    map[string]map[string]struct{}
	rooms        map[string]model.Room
	members      map[string][]string
	cycles       map[string]model.Cycle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		responses:    make(map[string]model.Response),
		participants: make(map[string]model.Participant),
		unmatched:    make(map[string]map[string]struct{}),
		rooms:        make(map[string]model.Room),
		members:      make(map[string][]string),
		cycles:       make(map[string]model.Cycle),
	}
}

func (s *MemoryStore) SaveResponse(ctx context.Context, r model.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Topics = slices.Clone(r.Topics)
	s.responses[r.ParticipantID] = r
	return nil
}

func (s *MemoryStore) GetAllResponses(ctx context.Context) ([]model.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Response, 0, len(s.responses))
	for _, r := range s.responses {
		r.Topics = slices.Clone(r.Topics)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out, nil
}

func (s *MemoryStore) ClearResponses(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = make(map[string]model.Response)
	return nil
}

func (s *MemoryStore) SaveParticipant(ctx context.Context, p model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.participants[p.ID] = p
	return nil
}

func (s *MemoryStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListConsentingParticipants(ctx context.Context) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Participant
	for _, p := range s.participants {
		if p.Consent {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListParticipantsByStatus(ctx context.Context, status model.ParticipantStatus) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Participant
	for _, p := range s.participants {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SetParticipantStatus(ctx context.Context, id string, status model.ParticipantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		p = model.Participant{ID: id}
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	s.participants[id] = p
	return nil
}

func (s *MemoryStore) AddUnmatchedForWeek(ctx context.Context, week string, participantIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.unmatched[week]
	if !ok {
		set = make(map[string]struct{})
		s.unmatched[week] = set
	}
	for _, id := range participantIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) GetUnmatchedForWeek(ctx context.Context, week string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.unmatched[week]))
	for id := range s.unmatched[week] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) UpsertRoom(ctx context.Context, room model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rooms[room.ID]; ok {
		room.CreatedAt = existing.CreatedAt
		room.Archived = existing.Archived
	}
	s.rooms[room.ID] = room
	return nil
}

func (s *MemoryStore) AddRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return ErrNotFound
	}
	for _, id := range participantIDs {
		if !slices.Contains(s.members[roomID], id) {
			s.members[roomID] = append(s.members[roomID], id)
		}
	}
	return nil
}

func (s *MemoryStore) GetRoomParticipants(ctx context.Context, roomID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.members[roomID])
	sort.Strings(out)
	return out, nil
}

// Room returns a recorded room; it exists for tests and the archival pass.
func (s *MemoryStore) Room(id string) (model.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

func (s *MemoryStore) SaveCycle(ctx context.Context, c model.Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles[c.ID] = c
	return nil
}

func (s *MemoryStore) Cycle(id string) (model.Cycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cycles[id]
	return c, ok
}

func (s *MemoryStore) BuildIndices(ctx context.Context) error { return nil }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

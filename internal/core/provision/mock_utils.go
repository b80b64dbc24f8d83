package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/agenthands/micromatch/internal/core/model"
)

// MockTransport records calls and returns scripted errors.
type MockTransport struct {
	mu sync.Mutex

	// TakenNames makes CreateRoom fail with ErrNameTaken for these names.
	TakenNames map[string]bool
	// CreateErr fails every CreateRoom call whose name is not taken.
	CreateErr error
	// InviteErrs fails invites of specific participants.
	InviteErrs map[string]error
	PostErr    error
	// Block makes CreateRoom wait until ctx is done.
	Block bool

	Created []string
	Invites map[string][]string
	Posts   map[string][]string
	nextID  int
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		TakenNames: make(map[string]bool),
		InviteErrs: make(map[string]error),
		Invites:    make(map[string][]string),
		Posts:      make(map[string][]string),
	}
}

func (m *MockTransport) CreateRoom(ctx context.Context, name string, private bool) (string, error) {
	if m.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TakenNames[name] {
		return "", fmt.Errorf("create %s: %w", name, ErrNameTaken)
	}
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.nextID++
	m.Created = append(m.Created, name)
	return fmt.Sprintf("C%03d", m.nextID), nil
}

func (m *MockTransport) InviteMembers(ctx context.Context, roomID string, participantIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range participantIDs {
		if err := m.InviteErrs[id]; err != nil {
			return err
		}
	}
	m.Invites[roomID] = append(m.Invites[roomID], participantIDs...)
	return nil
}

func (m *MockTransport) PostMessage(ctx context.Context, roomID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PostErr != nil {
		return m.PostErr
	}
	m.Posts[roomID] = append(m.Posts[roomID], text)
	return nil
}

func (m *MockTransport) CreatedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Created...)
}

type MockRegistry struct {
	mu           sync.Mutex
	Rooms        map[string]model.Room
	Participants map[string][]string
	Err          error
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		Rooms:        make(map[string]model.Room),
		Participants: make(map[string][]string),
	}
}

func (m *MockRegistry) UpsertRoom(ctx context.Context, room model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Rooms[room.ID] = room
	return nil
}

func (m *MockRegistry) AddRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Participants[roomID] = append(m.Participants[roomID], participantIDs...)
	return nil
}

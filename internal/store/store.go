package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/micromatch/internal/config"
	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/driver"
)

var ErrNotFound = errors.New("not found")

// Store is the persistent state shared by the matching engine and the HTTP
// front door.
type Store interface {
	SaveResponse(ctx context.Context, r model.Response) error
	GetAllResponses(ctx context.Context) ([]model.Response, error)
	ClearResponses(ctx context.Context) error

	SaveParticipant(ctx context.Context, p model.Participant) error
	GetParticipant(ctx context.Context, id string) (*model.Participant, error)
	ListConsentingParticipants(ctx context.Context) ([]model.Participant, error)
	SetParticipantStatus(ctx context.Context, id string, status model.ParticipantStatus) error
	ListParticipantsByStatus(ctx context.Context, status model.ParticipantStatus) ([]model.Participant, error)

	// AddUnmatchedForWeek inserts each (week, participant) pair only if absent.
	AddUnmatchedForWeek(ctx context.Context, week string, participantIDs []string) error
	GetUnmatchedForWeek(ctx context.Context, week string) ([]string, error)

	UpsertRoom(ctx context.Context, room model.Room) error
	AddRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error
	GetRoomParticipants(ctx context.Context, roomID string) ([]string, error)

	SaveCycle(ctx context.Context, c model.Cycle) error

	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// Open returns the backend named by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLite.Path)
	case "memgraph", "":
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to memgraph: %w", err)
		}
		return NewGraphStore(d), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

package core

import (
	"context"
	"errors"
	"time"

	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/core/provision"
	"github.com/agenthands/micromatch/internal/store"
)

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

// brokenStore fails reads of the response set.
type brokenStore struct {
	*store.MemoryStore
}

func (brokenStore) GetAllResponses(ctx context.Context) ([]model.Response, error) {
	return nil, errors.New("database is locked")
}

type harness struct {
	store     *store.MemoryStore
	transport *provision.MockTransport
	matcher   *Matcher
}

func newHarness(responses ...model.Response) *harness {
	s := store.NewMemoryStore()
	for i, r := range responses {
		if r.Timestamp.IsZero() {
			r.Timestamp = fixedNow.Add(time.Duration(i) * time.Second)
		}
		_ = s.SaveResponse(context.Background(), r)
	}
	tr := provision.NewMockTransport()
	p := provision.NewProvisioner(tr, s, nil, provision.Options{
		Workers: 3,
		Now:     func() time.Time { return fixedNow },
	})
	m := NewMatcher(s, nil, nil, p, Options{Now: func() time.Time { return fixedNow }})
	return &harness{store: s, transport: tr, matcher: m}
}

func response(id string, pref model.Preference, topics ...string) model.Response {
	return model.Response{ParticipantID: id, Topics: topics, Preference: pref}
}

package notify

import (
	"context"
	"sync"
)

type SentOffer struct {
	Text  string
	Offer Offer
}

// MockMessenger records everything sent per user.
type MockMessenger struct {
	mu     sync.Mutex
	Texts  map[string][]string
	Offers map[string][]SentOffer
	// Fail makes every send to these users return the error.
	Fail map[string]error
}

func NewMockMessenger() *MockMessenger {
	return &MockMessenger{
		Texts:  make(map[string][]string),
		Offers: make(map[string][]SentOffer),
		Fail:   make(map[string]error),
	}
}

func (m *MockMessenger) SendText(ctx context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[userID]; err != nil {
		return err
	}
	m.Texts[userID] = append(m.Texts[userID], text)
	return nil
}

func (m *MockMessenger) SendOffer(ctx context.Context, userID, text string, offer Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[userID]; err != nil {
		return err
	}
	m.Offers[userID] = append(m.Offers[userID], SentOffer{Text: text, Offer: offer})
	return nil
}

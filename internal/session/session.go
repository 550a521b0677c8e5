// Package session stores per-user conversation state with a durable primary
// store and an embedded secondary that keeps the chatbot alive when the
// primary is down.
package session

import (
	"context"
	"errors"
	"time"
)

// Conversation modes.
const (
	ModeLeadCapture    = "lead_capture"
	ModeKnowledgeQuery = "knowledge_query"
)

// Session is the full per-user conversation state.
type Session struct {
	UserID        string            `json:"user_id"`
	State         string            `json:"state"`
	Mode          string            `json:"mode"`
	CollectedData map[string]string `json:"collected_data"`
	CreatedAt     time.Time         `json:"created_at"`
	LastActiveAt  time.Time         `json:"last_active_at"`
}

// Clone returns a deep copy so callers can mutate CollectedData freely.
func (s Session) Clone() Session {
	data := make(map[string]string, len(s.CollectedData))
	for k, v := range s.CollectedData {
		data[k] = v
	}
	s.CollectedData = data
	return s
}

// ErrNotFound is returned when no session exists for a user.
var ErrNotFound = errors.New("session not found")

// Store is the capability set both tiers implement.
type Store interface {
	Get(ctx context.Context, userID string) (Session, error)
	Put(ctx context.Context, session Session) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/sitebot/config"
)

// ErrNotFound is returned when no record exists for a session id.
var ErrNotFound = errors.New("history: record not found")

// PageSummary identifies one page a session visited.
type PageSummary struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Record is the persisted outcome of a finished session.
type Record struct {
	ID        string        `json:"id"`
	Question  string        `json:"question"`
	StartURL  string        `json:"start_url"`
	Answer    string        `json:"answer,omitempty"`
	Status    string        `json:"status"`
	Pages     []PageSummary `json:"pages"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store persists session outcomes for later retrieval.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
}

// NewStore builds the store named by the storage config.
func NewStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "", "inmemory":
		return NewInMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	}
	return nil, fmt.Errorf("invalid storage type: %s", cfg.Type)
}

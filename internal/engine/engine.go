package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"trackline/internal/config"
	"trackline/internal/events"
	"trackline/internal/repo"
	"trackline/internal/storage"
)

// Engine implements the escalation and attention logic over a relational
// store. All business decisions take an explicit time so repeated runs over
// the same snapshot produce identical results.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Storage storage.Resolver
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	baseURL := ""
	if cfg != nil {
		baseURL = cfg.Storage.PublicBaseURL
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Storage: storage.BaseURLResolver{BaseURL: baseURL},
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// InvalidStateError names the violated precondition of a rejected mutation.
type InvalidStateError struct {
	Violation string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s", e.Violation)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

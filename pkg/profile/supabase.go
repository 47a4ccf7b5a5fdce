package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

type SupabaseConfig struct {
	URL     string
	APIKey  string
	Table   string
	IDField string
}

// SupabaseLookup reads the profile row keyed by the token subject.
type SupabaseLookup struct {
	client  *supabase.Client
	table   string
	idField string
}

func NewSupabaseLookup(cfg SupabaseConfig) (*SupabaseLookup, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("profile: supabase URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("profile: supabase API key is required")
	}
	if cfg.Table == "" {
		cfg.Table = "profiles"
	}
	if cfg.IDField == "" {
		cfg.IDField = "user_id"
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("profile: create supabase client: %w", err)
	}
	return &SupabaseLookup{client: client, table: cfg.Table, idField: cfg.IDField}, nil
}

func (l *SupabaseLookup) Lookup(_ context.Context, _, subject string) (Profile, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrNotFound
	}

	var rows []Profile
	if _, err := l.client.From(l.table).
		Select("*", "", false).
		Eq(l.idField, subject).
		ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("profile: supabase lookup: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	p := rows[0]
	if p.UserID() == "" {
		p["userId"] = subject
	}
	return p, nil
}

// Package profile resolves the caller's user profile from a bearer token.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
)

// CodeOK is the profile service envelope code for success.
const CodeOK = 10000

const (
	DriverHTTP     = "http"
	DriverSupabase = "supabase"

	defaultProfilePath = "/api/v1/profile/users/profiles/get-my-profile"
)

var (
	ErrNotFound     = errors.New("profile not found")
	ErrMissingToken = errors.New("profile lookup requires a token")
)

// Profile is the raw profile document. It is stored verbatim as user_info.
type Profile map[string]any

// UserID returns the userId field, or "" when absent.
func (p Profile) UserID() string {
	if p == nil {
		return ""
	}
	switch v := p["userId"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Lookup is given the raw bearer token and the verified token subject.
type Lookup interface {
	Lookup(ctx context.Context, token, subject string) (Profile, error)
}

type Config struct {
	Driver          string        `envconfig:"DRIVER" split_words:"true" default:"http"`
	URL             string        `envconfig:"URL" split_words:"true"`
	Path            string        `envconfig:"PATH" split_words:"true" default:"/api/v1/profile/users/profiles/get-my-profile"`
	Timeout         time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	SupabaseURL     string        `envconfig:"SUPABASE_URL" split_words:"true"`
	SupabaseKey     string        `envconfig:"SUPABASE_KEY" split_words:"true"`
	SupabaseTable   string        `envconfig:"SUPABASE_TABLE" split_words:"true" default:"profiles"`
	SupabaseIDField string        `envconfig:"SUPABASE_ID_FIELD" split_words:"true" default:"user_id"`
}

// New builds the lookup selected by cfg.Driver. A blank URL for the http
// driver returns a nil Lookup and no error; callers then fall back to the
// token subject.
func New(cfg Config) (Lookup, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverHTTP, "":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, nil
		}
		client, err := backend.NewClient(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("profile: %w", err)
		}
		return NewHTTPLookup(client, cfg.Path), nil
	case DriverSupabase:
		l, err := NewSupabaseLookup(SupabaseConfig{
			URL:     cfg.SupabaseURL,
			APIKey:  cfg.SupabaseKey,
			Table:   cfg.SupabaseTable,
			IDField: cfg.SupabaseIDField,
		})
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("profile: unsupported driver %q", cfg.Driver)
	}
}

// HTTPLookup calls the account service "get my profile" endpoint.
type HTTPLookup struct {
	client *backend.Client
	path   string
}

func NewHTTPLookup(client *backend.Client, path string) *HTTPLookup {
	if strings.TrimSpace(path) == "" {
		path = defaultProfilePath
	}
	return &HTTPLookup{client: client, path: path}
}

func (l *HTTPLookup) Lookup(ctx context.Context, token, _ string) (Profile, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	env, err := l.client.Envelope(ctx, backend.Request{Path: l.path, Token: token})
	if err != nil {
		return nil, fmt.Errorf("profile: lookup: %w", err)
	}
	if err := env.Expect(CodeOK); err != nil {
		return nil, fmt.Errorf("profile: lookup: %w", err)
	}

	var p Profile
	if err := env.DecodeResult(&p); err != nil {
		return nil, fmt.Errorf("profile: lookup: %w", err)
	}
	if len(p) == 0 {
		return nil, ErrNotFound
	}
	return p, nil
}

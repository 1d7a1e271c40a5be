// Package waitlist records early-access signups in the Supabase
// waitlist_subscribers table.
package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/knowledge-bank/kb-cloud/logger"
	"github.com/knowledge-bank/kb-cloud/supabase"
)

// Table is the Supabase table signups are written to.
const Table = "waitlist_subscribers"

var (
	ErrMissingEmail  = errors.New("waitlist: missing email")
	ErrInvalidEmail  = errors.New("waitlist: invalid email")
	ErrNotConfigured = errors.New("waitlist: storage is not configured")
	// ErrUpstream wraps any non-2xx answer from Supabase.
	ErrUpstream = errors.New("waitlist: supabase rejected insert")
)

// RESTClient is the part of the Supabase client the waitlist uses.
type RESTClient interface {
	Insert(ctx context.Context, table string, row interface{}, out interface{}) error
}

// Signup is the request body of POST /api/waitlist.
type Signup struct {
	Email json.RawMessage `json:"email"`
	Note  json.RawMessage `json:"note,omitempty"`
}

type row struct {
	Email string          `json:"email"`
	Note  json.RawMessage `json:"note,omitempty"`
}

// Service adds subscribers.
type Service struct {
	client RESTClient
	log    *logger.Logger
}

// NewService returns a waitlist service. A nil client yields a service whose
// Add always fails with ErrNotConfigured.
func NewService(client RESTClient, log *logger.Logger) *Service {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Service{client: client, log: log.WithField("component", "waitlist")}
}

// Configured reports whether a storage client is attached.
func (s *Service) Configured() bool { return s.client != nil }

// NormalizeEmail validates a raw JSON email value and returns it trimmed and
// lower-cased.
func NormalizeEmail(raw json.RawMessage) (string, error) {
	var email string
	if len(raw) == 0 || json.Unmarshal(raw, &email) != nil {
		return "", ErrMissingEmail
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrMissingEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Add validates and inserts a signup. It returns the first row Supabase
// echoes back, or nil if it returned none.
func (s *Service) Add(ctx context.Context, signup Signup) (json.RawMessage, error) {
	email, err := NormalizeEmail(signup.Email)
	if err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	// An absent note stays absent; an explicit null is sent as null.
	r := row{Email: email, Note: signup.Note}

	var rows []json.RawMessage
	if err := s.client.Insert(ctx, Table, r, &rows); err != nil {
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) {
			s.log.WithField("status", apiErr.Status).Warn("Supabase error: " + strings.TrimSpace(apiErr.Body))
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return nil, fmt.Errorf("insert waitlist row: %w", err)
	}

	s.log.WithField("email_domain", domainOf(email)).Info("waitlist signup")
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func domainOf(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}

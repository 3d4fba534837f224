// Package session signs users in and out and keeps checking that the stored
// session is still accepted by the server.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/credential"
	"github.com/appetiteclub/cafesync/internal/pipeline"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

var (
	// ErrLoginRejected is returned when the server refuses the credentials.
	ErrLoginRejected = errors.New("login rejected")
	// ErrProbeRejected marks a 401/403 or negative answer from check-session.
	ErrProbeRejected = errors.New("session probe rejected")
	// ErrUnknownRole is returned for roles outside admin, staff and customer.
	ErrUnknownRole = errors.New("unknown role")
)

// Store is the part of the credential store the session package uses.
type Store interface {
	Set(ctx context.Context, token, userKey string, user json.RawMessage) error
	Get(ctx context.Context) (*credential.Credentials, error)
	Clear(ctx context.Context) error
}

type loginResponse struct {
	Success bool            `json:"success"`
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user"`
	Message string          `json:"message"`
}

// Service performs explicit login and logout.
type Service struct {
	client *pipeline.Client
	store  Store
	logger apt.Logger
}

func NewService(client *pipeline.Client, store Store, logger apt.Logger) *Service {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Service{
		client: client,
		store:  store,
		logger: logger,
	}
}

// Login posts fields to the role's login endpoint and persists the returned
// credentials. A persistence failure fails the login.
func (s *Service) Login(ctx context.Context, r role.Role, fields map[string]string) (*credential.Credentials, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, r)
	}

	var resp loginResponse
	err := s.client.Do(ctx, http.MethodPost, "/api/"+r.Code()+"/login", fields, &resp)
	if err != nil {
		var se *pipeline.StatusError
		if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %s", ErrLoginRejected, loginMessage(se.Message))
		}
		return nil, fmt.Errorf("login request: %w", err)
	}

	if !resp.Success || strings.TrimSpace(resp.Token) == "" {
		return nil, fmt.Errorf("%w: %s", ErrLoginRejected, loginMessage(resp.Message))
	}

	if err := s.store.Set(ctx, resp.Token, r.UserKey(), resp.User); err != nil {
		s.logger.Error("cannot persist session", "role", r.Code(), "error", err)
		return nil, err
	}

	s.logger.Info("logged in", "role", r.Code())

	creds, err := s.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stored session: %w", err)
	}
	return creds, nil
}

// Logout notifies the server and clears local credentials whether or not the
// call succeeded.
func (s *Service) Logout(ctx context.Context, r role.Role) error {
	if r.Valid() {
		if err := s.client.Do(ctx, http.MethodPost, "/api/"+r.Code()+"/logout", nil, nil); err != nil {
			s.logger.Info("logout request failed", "role", r.Code(), "error", err)
		}
	}

	if err := s.store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info("logged out", "role", r.Code())
	return nil
}

func loginMessage(msg string) string {
	if msg == "" {
		return "invalid credentials"
	}
	return msg
}

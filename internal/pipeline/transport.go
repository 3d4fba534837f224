// Package pipeline wraps every outbound call to the café API: it attaches the
// bearer credential and reacts to authentication failures.
package pipeline

import (
	"context"
	"net/http"
	"strings"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/navigation"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

const probeSuffix = "/check-session"

// CredentialStore is the subset of the credential store the pipeline uses.
type CredentialStore interface {
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
	RecentlyCleared() bool
}

// IsProbePath reports whether path is a role session probe
// (/api/{role}/check-session). Only the last three segments are matched, so
// an API base URL with a path prefix still qualifies.
func IsProbePath(path string) bool {
	path = strings.TrimRight(path, "/")
	if !strings.HasSuffix(path, probeSuffix) {
		return false
	}
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return false
	}
	n := len(parts)
	return parts[n-3] == "api" && role.ByName(parts[n-2]) != nil
}

// Transport is an http.RoundTripper with a pre-send credential stage and a
// post-receive authorization stage.
type Transport struct {
	base   http.RoundTripper
	creds  CredentialStore
	nav    navigation.Navigator
	logger apt.Logger
}

func NewTransport(base http.RoundTripper, creds CredentialStore, nav navigation.Navigator, logger apt.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Transport{
		base:   base,
		creds:  creds,
		nav:    nav,
		logger: logger,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = t.attachCredential(req)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if IsProbePath(req.URL.Path) {
			// The session validator owns the reaction to probe failures.
			return resp, nil
		}
		t.evict(req.Context(), req.URL.Path)
	case http.StatusForbidden:
		t.logger.Info("request forbidden", "method", req.Method, "path", req.URL.Path)
	}

	return resp, nil
}

func (t *Transport) attachCredential(req *http.Request) *http.Request {
	if t.creds == nil {
		return req
	}
	token, err := t.creds.Token(req.Context())
	if err != nil {
		t.logger.Debug("cannot read bearer token", "error", err)
		return req
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return req
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return clone
}

func (t *Transport) evict(ctx context.Context, path string) {
	t.logger.Info("authentication failure, evicting session", "path", path)

	alreadyCleared := false
	if t.creds != nil {
		alreadyCleared = t.creds.RecentlyCleared()
		if err := t.creds.Clear(context.WithoutCancel(ctx)); err != nil {
			t.logger.Error("cannot clear credentials", "error", err)
		}
	}

	if t.nav == nil || alreadyCleared {
		return
	}
	current := t.nav.CurrentPath()
	if navigation.IsLoginPath(current) {
		return
	}
	t.nav.Redirect(navigation.LoginPathFor(current))
}

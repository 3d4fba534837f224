package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func errorsIs(err, target error) bool {
	return errors.Is(err, target)
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://example.test/", nil, nil)

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.logger == nil {
		t.Error("NewClient() should set a noop logger when nil is passed")
	}
	if got := client.URL("/api/orders"); got != "http://example.test/api/orders" {
		t.Errorf("URL() = %q", got)
	}
	if got := client.URL("api/orders"); got != "http://example.test/api/orders" {
		t.Errorf("URL() without slash = %q", got)
	}
}

func TestClientDo(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{name: "ok", status: http.StatusOK, body: `{"success":true,"value":"x"}`},
		{name: "emptyBody", status: http.StatusNoContent, body: ""},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"expired"}`, wantErr: ErrUnauthenticated, wantMsg: "expired"},
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":"nope"}`, wantErr: ErrForbidden, wantMsg: "nope"},
		{name: "serverError", status: http.StatusInternalServerError, body: `oops`, wantErr: ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, nil, nil)
			var out struct {
				Success bool   `json:"success"`
				Value   string `json:"value"`
			}
			err := client.Do(context.Background(), http.MethodGet, "/api/x", nil, &out)

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Do() error = %v", err)
				}
				if tt.status == http.StatusOK && out.Value != "x" {
					t.Errorf("decoded value = %q, want x", out.Value)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Do() error = %v, want %v", err, tt.wantErr)
			}
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Do() error is not a *StatusError: %T", err)
			}
			if se.Code != tt.status {
				t.Errorf("Code = %d, want %d", se.Code, tt.status)
			}
			if se.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", se.Message, tt.wantMsg)
			}
		})
	}
}

func TestClientDoSendsJSONBody(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	body := map[string]string{"email": "a@b.c"}
	if err := client.Do(context.Background(), http.MethodPost, "/api/staff/login", body, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if !strings.Contains(gotBody, `"email":"a@b.c"`) {
		t.Errorf("body = %q", gotBody)
	}
}

func TestClientDoNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(url, nil, nil)
	err := client.Do(context.Background(), http.MethodGet, "/api/orders", nil, nil)
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Do() error = %v, want ErrNetwork", err)
	}
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appetiteclub/cafesync/internal/credential"
	"github.com/appetiteclub/cafesync/internal/navigation"
	"github.com/appetiteclub/cafesync/internal/pipeline"
	"github.com/appetiteclub/cafesync/internal/retry"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

func newClient(url string, store *credential.Store, nav navigation.Navigator) *pipeline.Client {
	return pipeline.NewClient(url, pipeline.NewTransport(nil, store, nav, nil), nil)
}

func seededStore(t *testing.T) *credential.Store {
	t.Helper()
	store := credential.NewStore(credential.NewMemoryKV(), nil)
	if err := store.Set(context.Background(), "tok", role.Staff.UserKey(), json.RawMessage(`{"id":3}`)); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// droppingKV never keeps the token, so every write-verify pass fails.
type droppingKV struct {
	*credential.MemoryKV
	tokenWrites atomic.Int32
}

func (d *droppingKV) Set(ctx context.Context, key, value string) error {
	if key == credential.TokenKey {
		d.tokenWrites.Add(1)
		return nil
	}
	return d.MemoryKV.Set(ctx, key, value)
}

func TestServiceLogin(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "success", status: http.StatusOK, body: `{"success":true,"token":"t-1","user":{"id":9}}`},
		{name: "successFalse", status: http.StatusOK, body: `{"success":false,"message":"bad password"}`, wantErr: ErrLoginRejected},
		{name: "missingToken", status: http.StatusOK, body: `{"success":true,"token":" "}`, wantErr: ErrLoginRejected},
		{name: "badRequest", status: http.StatusBadRequest, body: `{"message":"email required"}`, wantErr: ErrLoginRejected},
		{name: "serverError", status: http.StatusInternalServerError, body: `{}`, wantErr: pipeline.ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			store := credential.NewStore(credential.NewMemoryKV(), nil)
			svc := NewService(newClient(srv.URL, store, &MockNavigator{Path: "/staff/login"}), store, nil)

			creds, err := svc.Login(context.Background(), role.Staff, map[string]string{"email": "a@b.c", "password": "x"})
			if gotPath != "/api/staff/login" {
				t.Errorf("path = %q", gotPath)
			}

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
				}
				if c, _ := store.Get(context.Background()); c != nil {
					t.Error("store should stay empty after a failed login")
				}
				return
			}

			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if creds.Token != "t-1" || creds.Role != role.Staff {
				t.Errorf("creds = %+v", creds)
			}
		})
	}
}

func TestServiceLoginUnknownRole(t *testing.T) {
	svc := NewService(pipeline.NewClient("http://127.0.0.1:1", nil, nil), credential.NewStore(credential.NewMemoryKV(), nil), nil)

	_, err := svc.Login(context.Background(), role.Role("chef"), nil)
	if !errors.Is(err, ErrUnknownRole) {
		t.Errorf("Login() error = %v, want ErrUnknownRole", err)
	}
}

func TestServiceLoginPersistenceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"token":"t-1","user":{"id":9}}`))
	}))
	defer srv.Close()

	kv := &droppingKV{MemoryKV: credential.NewMemoryKV()}
	policy := retry.Policy{Attempts: 10, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 1.5}
	store := credential.NewStore(kv, nil, credential.WithRetryPolicy(policy))
	svc := NewService(newClient(srv.URL, store, &MockNavigator{}), store, nil)

	_, err := svc.Login(context.Background(), role.Admin, map[string]string{"email": "a@b.c"})
	if !errors.Is(err, credential.ErrPersistence) {
		t.Fatalf("Login() error = %v, want ErrPersistence", err)
	}
	if got := kv.tokenWrites.Load(); got != 10 {
		t.Errorf("token writes = %d, want 10", got)
	}
	if kv.Len() != 0 {
		t.Errorf("store holds %d keys, want 0", kv.Len())
	}
}

func TestServiceLogout(t *testing.T) {
	tests := []struct {
		name   string
		status int
		down   bool
	}{
		{name: "serverAccepts", status: http.StatusOK},
		{name: "serverFails", status: http.StatusInternalServerError},
		{name: "serverDown", down: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}))
			url := srv.URL
			if tt.down {
				srv.Close()
			} else {
				defer srv.Close()
			}

			kv := credential.NewMemoryKV()
			store := credential.NewStore(kv, nil)
			if err := store.Set(context.Background(), "tok", role.Staff.UserKey(), json.RawMessage(`{}`)); err != nil {
				t.Fatalf("seed: %v", err)
			}
			svc := NewService(newClient(url, store, &MockNavigator{Path: "/staff"}), store, nil)

			if err := svc.Logout(context.Background(), role.Staff); err != nil {
				t.Fatalf("Logout() error = %v", err)
			}
			if kv.Len() != 0 {
				t.Errorf("store holds %d keys after logout, want 0", kv.Len())
			}
			if !tt.down && gotAuth != "Bearer tok" {
				t.Errorf("logout Authorization = %q", gotAuth)
			}
		})
	}
}

package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/and161185/flasky/internal/model"
)

func TestWithPrincipal_And_PrincipalFromCtx(t *testing.T) {
	t.Parallel()

	if p := PrincipalFromCtx(context.Background()); !p.IsAnonymous() {
		t.Fatalf("expected anonymous principal in empty ctx")
	}

	u := &model.User{Username: "john"}
	ctx := WithPrincipal(context.Background(), model.Principal{User: u, TokenUsed: true})

	got := PrincipalFromCtx(ctx)
	if got.User != u || !got.TokenUsed {
		t.Fatalf("mismatch: %+v", got)
	}

	bad := context.WithValue(context.Background(), principalKey, "john")
	if p := PrincipalFromCtx(bad); !p.IsAnonymous() {
		t.Fatalf("expected anonymous on wrong typed value")
	}
}

func TestCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		setup        func(r *http.Request)
		wantIdentity string
		wantSecret   string
	}{
		{name: "none", setup: func(*http.Request) {}},
		{
			name:         "basic",
			setup:        func(r *http.Request) { r.SetBasicAuth("john@example.com", "cat") },
			wantIdentity: "john@example.com",
			wantSecret:   "cat",
		},
		{
			name:         "basic token",
			setup:        func(r *http.Request) { r.SetBasicAuth("tok", "") },
			wantIdentity: "tok",
		},
		{
			name:         "bearer",
			setup:        func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc.def") },
			wantIdentity: "abc.def",
		},
		{
			name:         "bearer lowercase",
			setup:        func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") },
			wantIdentity: "abc",
		},
		{
			name:  "unknown scheme",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Digest x") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(r)
			id, secret := credentials(r)
			if id != tt.wantIdentity || secret != tt.wantSecret {
				t.Fatalf("got (%q, %q), want (%q, %q)", id, secret, tt.wantIdentity, tt.wantSecret)
			}
		})
	}
}

func TestPageParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query     string
		allowLast bool
		want      int
	}{
		{"", false, 1},
		{"page=3", false, 3},
		{"page=abc", false, 1},
		{"page=0", false, 1},
		{"page=-1", false, 1},
		{"page=-1", true, -1},
		{"page=-2", true, 1},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		if got := pageParam(r, tt.allowLast); got != tt.want {
			t.Fatalf("pageParam(%q, %v) = %d, want %d", tt.query, tt.allowLast, got, tt.want)
		}
	}
}

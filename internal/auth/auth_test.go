package auth

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestStaticTokens_Authenticate(t *testing.T) {
	authenticator := NewStaticTokens(map[string]string{
		"token-a": "user-1",
		"token-b": "user-2",
	})

	r := httptest.NewRequest("GET", "/jobs", nil)
	r.Header.Set("Authorization", "Bearer token-a")

	ownerID, err := authenticator.Authenticate(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ownerID != "user-1" {
		t.Errorf("expected user-1, got %s", ownerID)
	}
}

func TestStaticTokens_Authenticate_Rejections(t *testing.T) {
	authenticator := NewStaticTokens(map[string]string{"token-a": "user-1"})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic token-a"},
		{"empty token", "Bearer "},
		{"unknown token", "Bearer token-z"},
		{"token without scheme", "token-a"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/jobs", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if _, err := authenticator.Authenticate(r); err != ErrUnauthorized {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestStaticTokens_CopiesTokenTable(t *testing.T) {
	tokens := map[string]string{"token-a": "user-1"}
	authenticator := NewStaticTokens(tokens)

	// Mutating the source map must not affect the authenticator.
	delete(tokens, "token-a")

	r := httptest.NewRequest("GET", "/jobs", nil)
	r.Header.Set("Authorization", "Bearer token-a")
	if _, err := authenticator.Authenticate(r); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOwnerContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := OwnerFromContext(ctx); ok {
		t.Error("expected no owner on a fresh context")
	}

	ctx = WithOwner(ctx, "user-1")
	ownerID, ok := OwnerFromContext(ctx)
	if !ok || ownerID != "user-1" {
		t.Errorf("expected user-1, got %q (ok=%v)", ownerID, ok)
	}

	if _, ok := OwnerFromContext(WithOwner(context.Background(), "")); ok {
		t.Error("empty owner must not count as authenticated")
	}
}

package reqctx

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeClaims struct {
	userID uuid.UUID
	exp    time.Time
}

func (f fakeClaims) GetUserID() uuid.UUID     { return f.userID }
func (f fakeClaims) GetRole() string          { return "doctor" }
func (f fakeClaims) GetSessionID() *uuid.UUID { return nil }
func (f fakeClaims) GetTokenType() string     { return "access" }
func (f fakeClaims) IsExpired() bool          { return time.Now().After(f.exp) }

func TestClaimsRoundTrip(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name     string
		ctx      context.Context
		wantAuth bool
		wantID   uuid.UUID
	}{
		{"no claims", context.Background(), false, uuid.Nil},
		{"valid claims", WithClaims(context.Background(), fakeClaims{userID: id, exp: time.Now().Add(time.Hour)}), true, id},
		{"expired claims", WithClaims(context.Background(), fakeClaims{userID: id, exp: time.Now().Add(-time.Hour)}), false, id},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthenticated(tt.ctx); got != tt.wantAuth {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.wantAuth)
			}
			got, _ := UserIDFromContext(tt.ctx)
			if got != tt.wantID {
				t.Errorf("UserIDFromContext() = %v, want %v", got, tt.wantID)
			}
		})
	}
}

func TestLogAttrs(t *testing.T) {
	ctx := context.Background()
	if attrs := LogAttrs(ctx); len(attrs) != 0 {
		t.Fatalf("expected no attrs on bare context, got %v", attrs)
	}

	ctx = WithRequestMeta(ctx, &RequestMeta{RequestID: "rid-1"})
	ctx = WithClaims(ctx, fakeClaims{userID: uuid.New(), exp: time.Now().Add(time.Hour)})

	if attrs := LogAttrs(ctx); len(attrs) != 2 {
		t.Fatalf("expected request_id and user_id, got %v", attrs)
	}
	if RequestIDFromContext(ctx) != "rid-1" {
		t.Errorf("RequestIDFromContext() = %q", RequestIDFromContext(ctx))
	}
}

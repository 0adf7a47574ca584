package pasetotoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestManager(t *testing.T, keys Keys, accessTTL time.Duration) *Manager {
	t.Helper()

	m, err := New(Config{
		Mode:      keys.Mode,
		Issuer:    "tabib",
		Audience:  "tabib-api",
		AccessTTL: accessTTL,
	}, keys)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestIssueAndVerify(t *testing.T) {
	keysets := map[string]Keys{
		"local":  NewLocalKeys(),
		"public": NewPublicKeys(),
	}

	for name, keys := range keysets {
		t.Run(name, func(t *testing.T) {
			m := newTestManager(t, keys, time.Minute)
			sid := uuid.New()
			sub := Subject{UserID: uuid.New(), Role: "doctor", SessionID: &sid}

			tok, err := m.IssueAccess(sub)
			if err != nil {
				t.Fatalf("IssueAccess: %v", err)
			}

			claims, err := m.Verify(tok)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if claims.UserID != sub.UserID {
				t.Errorf("UserID = %v, want %v", claims.UserID, sub.UserID)
			}
			if claims.Role != "doctor" {
				t.Errorf("Role = %q, want doctor", claims.Role)
			}
			if claims.SessionID == nil || *claims.SessionID != sid {
				t.Errorf("SessionID = %v, want %v", claims.SessionID, sid)
			}
			if claims.Type != TokenTypeAccess {
				t.Errorf("Type = %q, want access", claims.Type)
			}
		})
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a := newTestManager(t, NewLocalKeys(), time.Minute)
	b := newTestManager(t, NewLocalKeys(), time.Minute)

	tok, err := a.IssueRefresh(Subject{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := b.Verify(tok); err == nil {
		t.Fatal("expected verification with another key to fail")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newTestManager(t, NewLocalKeys(), time.Nanosecond)

	tok, err := m.IssueAccess(Subject{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := m.Verify(tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestNewRequiresIssuerAndAudience(t *testing.T) {
	keys := NewLocalKeys()
	if _, err := New(Config{Mode: ModeLocal, Audience: "a"}, keys); err == nil {
		t.Error("expected error without issuer")
	}
	if _, err := New(Config{Mode: ModeLocal, Issuer: "i"}, keys); err == nil {
		t.Error("expected error without audience")
	}
	if _, err := New(Config{Mode: ModePublic, Issuer: "i", Audience: "a"}, keys); err == nil {
		t.Error("expected error for mismatched mode")
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	pasetotoken "github.com/Alijeyrad/tabib_backend/pkg/paseto"
	redispkg "github.com/Alijeyrad/tabib_backend/pkg/redis"
	"github.com/Alijeyrad/tabib_backend/pkg/util/password"
)

const defaultMaxLoginAttempts = 5

// Sessions is the live-session registry backing refresh and logout.
type Sessions interface {
	Open(ctx context.Context, id, staffID uuid.UUID, ttl time.Duration) error
	Owner(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	Extend(ctx context.Context, id uuid.UUID, ttl time.Duration) error
	Close(ctx context.Context, id uuid.UUID) error
}

// Attempts counts failed logins per username.
type Attempts interface {
	Fail(ctx context.Context, username string) (int, error)
	Count(ctx context.Context, username string) (int, error)
	Reset(ctx context.Context, username string) error
}

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type LoginResult struct {
	Tokens *AuthTokens `json:"tokens"`
	Staff  *repo.Staff `json:"staff"`
}

// Identity is what a verified access token resolves to. It satisfies
// reqctx.AuthClaims so it can ride the request context.
type Identity struct {
	Caller    repo.Caller
	SessionID uuid.UUID
	ExpiresAt time.Time
}

func (i *Identity) GetUserID() uuid.UUID { return i.Caller.UserID }
func (i *Identity) GetRole() string { return string(i.Caller.Role) }
func (i *Identity) GetSessionID() *uuid.UUID { return &i.SessionID }
func (i *Identity) GetTokenType() string { return string(pasetotoken.TokenTypeAccess) }
func (i *Identity) IsExpired() bool { return time.Now().After(i.ExpiresAt) }

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error)
	Logout(ctx context.Context, sessionID uuid.UUID) error
	Authenticate(ctx context.Context, accessToken string) (*Identity, error)
	Me(ctx context.Context, caller repo.Caller) (*repo.Staff, error)
	ChangePassword(ctx context.Context, caller repo.Caller, req ChangePasswordRequest) error
}

type Deps struct {
	Store    repo.Store
	Tokens   *pasetotoken.Manager
	Sessions Sessions
	Attempts Attempts
	Hasher   *password.Hasher

	// MaxAttempts is the number of failed logins before the account locks.
	MaxAttempts int
	Log         *slog.Logger
}

type authService struct {
	store       repo.Store
	tokens      *pasetotoken.Manager
	sessions    Sessions
	attempts    Attempts
	hasher      *password.Hasher
	maxAttempts int
	log         *slog.Logger
}

func New(d Deps) Service {
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = defaultMaxLoginAttempts
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &authService{
		store:       d.Store,
		tokens:      d.Tokens,
		sessions:    d.Sessions,
		attempts:    d.Attempts,
		hasher:      d.Hasher,
		maxAttempts: d.MaxAttempts,
		log:         d.Log,
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if s.attempts != nil {
		n, err := s.attempts.Count(ctx, username)
		if err != nil {
			return nil, err
		}
		if n >= s.maxAttempts {
			return nil, ErrAccountLocked
		}
	}

	st, err := s.store.GetStaffByUsername(ctx, username)
	if err != nil {
		if repo.IsNotFound(err) {
			s.recordFailedLogin(ctx, username)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}

	if err := s.hasher.Verify(st.PasswordHash, req.Password); err != nil {
		s.recordFailedLogin(ctx, username)
		return nil, ErrInvalidCredentials
	}
	if !st.Active {
		return nil, ErrAccountDisabled
	}

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, username); err != nil {
			s.log.Warn("auth: reset login attempts failed", "username", username, "error", err)
		}
	}
	s.rehash(ctx, st, req.Password)

	tokens, err := s.createSession(ctx, st)
	if err != nil {
		return nil, err
	}
	s.log.Info("auth: login", "staff_id", st.ID, "role", st.Role)
	return &LoginResult{Tokens: tokens, Staff: st}, nil
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

// Refresh extends the session and reissues both tokens with the staff
// member's current role.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != pasetotoken.TokenTypeRefresh || claims.SessionID == nil {
		return nil, ErrInvalidToken
	}

	if err := s.checkSession(ctx, *claims.SessionID, claims.UserID); err != nil {
		return nil, err
	}

	st, err := s.store.GetStaff(ctx, claims.UserID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}
	if !st.Active {
		s.closeSession(ctx, *claims.SessionID)
		return nil, ErrAccountDisabled
	}

	if err := s.sessions.Extend(ctx, *claims.SessionID, s.tokens.RefreshTTL()); err != nil {
		if errors.Is(err, redispkg.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.issue(st, *claims.SessionID)
}

// ---------------------------------------------------------------------------
// Logout
// ---------------------------------------------------------------------------

func (s *authService) Logout(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.sessions.Close(ctx, sessionID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	s.log.Debug("auth: logout", "session_id", sessionID)
	return nil
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

// Authenticate verifies an access token and checks that its session is
// still live. The role comes from the token.
func (s *authService) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != pasetotoken.TokenTypeAccess || claims.SessionID == nil {
		return nil, ErrInvalidToken
	}
	role := repo.StaffRole(claims.Role)
	if !role.Valid() {
		return nil, ErrInvalidToken
	}
	if err := s.checkSession(ctx, *claims.SessionID, claims.UserID); err != nil {
		return nil, err
	}
	return &Identity{
		Caller:    repo.Caller{UserID: claims.UserID, Role: role},
		SessionID: *claims.SessionID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

func (s *authService) Me(ctx context.Context, caller repo.Caller) (*repo.Staff, error) {
	st, err := s.store.GetStaff(ctx, caller.UserID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return st, nil
}

func (s *authService) ChangePassword(ctx context.Context, caller repo.Caller, req ChangePasswordRequest) error {
	st, err := s.Me(ctx, caller)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(st.PasswordHash, req.CurrentPassword); err != nil {
		return ErrWrongPassword
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	st.PasswordHash = hash
	if err := s.store.UpdateStaff(ctx, st); err != nil {
		return fmt.Errorf("update staff: %w", err)
	}
	s.log.Info("auth: password changed", "staff_id", st.ID)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *authService) createSession(ctx context.Context, st *repo.Staff) (*AuthTokens, error) {
	sessionID := uuid.New()
	if err := s.sessions.Open(ctx, sessionID, st.ID, s.tokens.RefreshTTL()); err != nil {
		return nil, err
	}
	return s.issue(st, sessionID)
}

func (s *authService) issue(st *repo.Staff, sessionID uuid.UUID) (*AuthTokens, error) {
	sub := pasetotoken.Subject{UserID: st.ID, Role: string(st.Role), SessionID: &sessionID}

	access, err := s.tokens.IssueAccess(sub)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(sub)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

func (s *authService) checkSession(ctx context.Context, sessionID, staffID uuid.UUID) error {
	owner, err := s.sessions.Owner(ctx, sessionID)
	if err != nil {
		if errors.Is(err, redispkg.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if owner != staffID {
		return ErrInvalidToken
	}
	return nil
}

func (s *authService) closeSession(ctx context.Context, id uuid.UUID) {
	if err := s.sessions.Close(ctx, id); err != nil {
		s.log.Warn("auth: close session failed", "session_id", id, "error", err)
	}
}

func (s *authService) recordFailedLogin(ctx context.Context, username string) {
	if s.attempts == nil {
		return
	}
	n, err := s.attempts.Fail(ctx, username)
	if err != nil {
		s.log.Warn("auth: record failed login", "username", username, "error", err)
		return
	}
	if n >= s.maxAttempts {
		s.log.Warn("auth: account locked", "username", username, "attempts", n)
	}
}

// rehash upgrades a stored hash whose parameters are older than the hasher's.
func (s *authService) rehash(ctx context.Context, st *repo.Staff, pw string) {
	if !s.hasher.NeedsRehash(st.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return
	}
	st.PasswordHash = hash
	if err := s.store.UpdateStaff(ctx, st); err != nil {
		s.log.Warn("auth: rehash password failed", "staff_id", st.ID, "error", err)
	}
}

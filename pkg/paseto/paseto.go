package pasetotoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

	claimType    = "typ"
	claimUser    = "uid"
	claimRole    = "rol"
	claimSession = "sid"
)

type Config struct {
	Mode       Mode
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Implicit is bound into every token without being stored in it.
	Implicit []byte
}

// Manager issues and verifies the staff access and refresh tokens.
type Manager struct {
	cfg    Config
	keys   Keys
	parser paseto.Parser
}

func New(cfg Config, keys Keys) (*Manager, error) {
	switch {
	case cfg.Mode != keys.Mode:
		return nil, ErrConfig{Msg: "config mode " + string(cfg.Mode) + " does not match keys " + string(keys.Mode)}
	case cfg.Issuer == "":
		return nil, ErrConfig{Msg: "issuer is required"}
	case cfg.Audience == "":
		return nil, ErrConfig{Msg: "audience is required"}
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}

	parser := paseto.NewParser()
	parser.AddRule(paseto.IssuedBy(cfg.Issuer), paseto.ForAudience(cfg.Audience), paseto.NotExpired())

	return &Manager{cfg: cfg, keys: keys, parser: parser}, nil
}

// Subject carries who a token is issued for. Role is the staff role at issue
// time; a role change takes effect on the next refresh.
type Subject struct {
	UserID    uuid.UUID
	Role      string
	SessionID *uuid.UUID
}

func (m *Manager) IssueAccess(sub Subject) (string, error) {
	return m.issue(TokenTypeAccess, sub, m.cfg.AccessTTL)
}

func (m *Manager) IssueRefresh(sub Subject) (string, error) {
	return m.issue(TokenTypeRefresh, sub, m.cfg.RefreshTTL)
}

func (m *Manager) AccessTTL() time.Duration  { return m.cfg.AccessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

func (m *Manager) issue(tt TokenType, sub Subject, ttl time.Duration) (string, error) {
	var jti [16]byte
	if _, err := rand.Read(jti[:]); err != nil {
		return "", err
	}
	now := time.Now()

	tok := paseto.NewToken()
	tok.SetIssuer(m.cfg.Issuer)
	tok.SetAudience(m.cfg.Audience)
	tok.SetJti(hex.EncodeToString(jti[:]))
	tok.SetSubject(sub.UserID.String())
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(now.Add(ttl))

	tok.SetString(claimType, string(tt))
	tok.SetString(claimUser, sub.UserID.String())
	if sub.Role != "" {
		tok.SetString(claimRole, sub.Role)
	}
	if sub.SessionID != nil {
		tok.SetString(claimSession, sub.SessionID.String())
	}

	return m.keys.seal(tok, m.cfg.Implicit)
}

// Verify checks signature or encryption, issuer, audience and expiry, then
// decodes the claims. Every failure is an ErrInvalidToken.
func (m *Manager) Verify(token string) (*Claims, error) {
	tok, err := m.keys.open(m.parser, token, m.cfg.Implicit)
	if err != nil {
		var cfgErr ErrConfig
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, ErrInvalidToken{Err: err}
	}
	claims, err := m.decode(tok)
	if err != nil {
		return nil, ErrInvalidToken{Err: err}
	}
	return claims, nil
}

func (m *Manager) decode(tok *paseto.Token) (*Claims, error) {
	c := &Claims{Issuer: m.cfg.Issuer, Audience: m.cfg.Audience}

	var err error
	if c.TokenID, err = tok.GetJti(); err != nil {
		return nil, err
	}
	if c.Subject, err = tok.GetSubject(); err != nil {
		return nil, err
	}
	if c.IssuedAt, err = tok.GetIssuedAt(); err != nil {
		return nil, err
	}
	if c.NotBefore, err = tok.GetNotBefore(); err != nil {
		return nil, err
	}
	if c.ExpiresAt, err = tok.GetExpiration(); err != nil {
		return nil, err
	}

	typ, err := tok.GetString(claimType)
	if err != nil {
		return nil, err
	}
	c.Type = TokenType(typ)

	uid, err := tok.GetString(claimUser)
	if err != nil {
		return nil, err
	}
	if c.UserID, err = uuid.Parse(uid); err != nil {
		return nil, err
	}

	// Role and session are optional.
	if role, err := tok.GetString(claimRole); err == nil {
		c.Role = role
	}
	if sid, err := tok.GetString(claimSession); err == nil {
		id, err := uuid.Parse(sid)
		if err != nil {
			return nil, err
		}
		c.SessionID = &id
	}
	return c, nil
}

package pasetotoken

import (
	"time"

	"github.com/Alijeyrad/tabib_backend/config"
)

// FromCentralConfig loads the signing keys named in the authentication
// section and builds a Manager over them. SessionTTLMinutes, when set,
// overrides the refresh token lifetime so the two always expire together.
func FromCentralConfig(a config.AuthenticationConfig) (*Manager, error) {
	p := a.Paseto

	keys, err := LoadKeys(KeyStrings{
		Mode:         Mode(p.Mode),
		SymmetricHex: p.LocalKeyHex,
		SecretHex:    p.SecretKeyHex,
		PublicHex:    p.PublicKeyHex,
	})
	if err != nil {
		return nil, err
	}

	refresh := time.Duration(p.RefreshTTLDays) * 24 * time.Hour
	if a.SessionTTLMinutes > 0 {
		refresh = time.Duration(a.SessionTTLMinutes) * time.Minute
	}
	return New(Config{
		Mode:       Mode(p.Mode),
		Issuer:     p.Issuer,
		Audience:   p.Audience,
		AccessTTL:  time.Duration(p.AccessTTLMinutes) * time.Minute,
		RefreshTTL: refresh,
	}, keys)
}

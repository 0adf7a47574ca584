package pasetotoken

import (
	"strings"

	paseto "aidanwoods.dev/go-paseto"
)

// Mode picks the PASETO v4 purpose: "local" tokens are encrypted with a
// shared key, "public" tokens are signed.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModePublic Mode = "public"
)

// Keys holds the key material for one mode. A public key set may carry only
// the public half, in which case it can verify but not issue.
type Keys struct {
	Mode Mode

	Symmetric *paseto.V4SymmetricKey
	Secret    *paseto.V4AsymmetricSecretKey
	Public    *paseto.V4AsymmetricPublicKey
}

// KeyStrings is the hex-encoded form read from configuration.
type KeyStrings struct {
	Mode         Mode
	SymmetricHex string
	SecretHex    string
	PublicHex    string
}

func LoadKeys(in KeyStrings) (Keys, error) {
	switch in.Mode {
	case ModeLocal:
		return loadLocal(strings.TrimSpace(in.SymmetricHex))
	case ModePublic:
		return loadPublic(strings.TrimSpace(in.SecretHex), strings.TrimSpace(in.PublicHex))
	}
	return Keys{}, ErrConfig{Msg: "mode must be local or public, got " + string(in.Mode)}
}

func loadLocal(symHex string) (Keys, error) {
	if symHex == "" {
		return Keys{}, ErrConfig{Msg: "local mode needs local_key_hex"}
	}
	k, err := paseto.V4SymmetricKeyFromHex(symHex)
	if err != nil {
		return Keys{}, ErrConfig{Msg: "local_key_hex: " + err.Error()}
	}
	return Keys{Mode: ModeLocal, Symmetric: &k}, nil
}

func loadPublic(secHex, pubHex string) (Keys, error) {
	if secHex == "" && pubHex == "" {
		return Keys{}, ErrConfig{Msg: "public mode needs secret_key_hex or public_key_hex"}
	}
	keys := Keys{Mode: ModePublic}
	if secHex != "" {
		sk, err := paseto.NewV4AsymmetricSecretKeyFromHex(secHex)
		if err != nil {
			return Keys{}, ErrConfig{Msg: "secret_key_hex: " + err.Error()}
		}
		pk := sk.Public()
		keys.Secret, keys.Public = &sk, &pk
	}
	// An explicit public key wins over the derived one.
	if pubHex != "" {
		pk, err := paseto.NewV4AsymmetricPublicKeyFromHex(pubHex)
		if err != nil {
			return Keys{}, ErrConfig{Msg: "public_key_hex: " + err.Error()}
		}
		keys.Public = &pk
	}
	return keys, nil
}

// NewLocalKeys generates a fresh symmetric key.
func NewLocalKeys() Keys {
	k := paseto.NewV4SymmetricKey()
	return Keys{Mode: ModeLocal, Symmetric: &k}
}

// NewPublicKeys generates a fresh signing key pair.
func NewPublicKeys() Keys {
	sk := paseto.NewV4AsymmetricSecretKey()
	pk := sk.Public()
	return Keys{Mode: ModePublic, Secret: &sk, Public: &pk}
}

func (k Keys) seal(tok paseto.Token, implicit []byte) (string, error) {
	switch {
	case k.Mode == ModeLocal && k.Symmetric != nil:
		return tok.V4Encrypt(*k.Symmetric, implicit), nil
	case k.Mode == ModePublic && k.Secret != nil:
		return tok.V4Sign(*k.Secret, implicit), nil
	}
	return "", ErrConfig{Msg: "no key to issue " + string(k.Mode) + " tokens"}
}

func (k Keys) open(p paseto.Parser, token string, implicit []byte) (*paseto.Token, error) {
	switch {
	case k.Mode == ModeLocal && k.Symmetric != nil:
		return p.ParseV4Local(*k.Symmetric, token, implicit)
	case k.Mode == ModePublic && k.Public != nil:
		return p.ParseV4Public(*k.Public, token, implicit)
	}
	return nil, ErrConfig{Msg: "no key to verify " + string(k.Mode) + " tokens"}
}

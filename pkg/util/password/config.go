package password

import "github.com/Alijeyrad/tabib_backend/config"

// Config holds Argon2id password hashing parameters
type Config struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// LowMemoryMode caps memory at 32 MiB for constrained hosts.
	LowMemoryMode bool
}

func (c Config) params() Params {
	d := DefaultConfig()
	p := Params{
		Memory:      orDefault(c.MemoryKiB, d.MemoryKiB),
		Iterations:  orDefault(c.Iterations, d.Iterations),
		Parallelism: c.Parallelism,
		SaltLength:  orDefault(c.SaltLength, d.SaltLength),
		KeyLength:   orDefault(c.KeyLength, d.KeyLength),
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if c.LowMemoryMode && p.Memory > 32*1024 {
		p.Memory = 32 * 1024
	}
	return p
}

func orDefault(v, d uint32) uint32 {
	if v == 0 {
		return d
	}
	return v
}

// DefaultConfig returns OWASP-recommended defaults.
func DefaultConfig() Config {
	return Config{
		MemoryKiB:   64 * 1024, // 64 MiB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// FromCentralConfig converts central config.PasswordConfig to package Config
func FromCentralConfig(c config.PasswordConfig) Config {
	return Config{
		MemoryKiB:     c.MemoryKiB,
		Iterations:    c.Iterations,
		Parallelism:   c.Parallelism,
		SaltLength:    c.SaltLength,
		KeyLength:     c.KeyLength,
		LowMemoryMode: c.LowMemoryMode,
	}
}

package password

import (
	"errors"
	"strings"
	"testing"
)

// cheap parameters keep the suite fast
func testHasher() *Hasher {
	return NewHasher(Config{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
}

func TestHashFormat(t *testing.T) {
	hash, err := testHasher().Hash("correcthorsebatterystaple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("Hash() format invalid, got %s", hash)
	}
	if parts := strings.Split(hash, "$"); len(parts) != 6 {
		t.Errorf("Hash() expected 6 parts, got %d", len(parts))
	}
}

func TestVerify(t *testing.T) {
	h := testHasher()
	password := "mysecretpassword"

	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error
	}{
		{"correct password", hash, password, nil},
		{"wrong password", hash, "wrongpassword", ErrMismatch},
		{"empty password", hash, "", ErrMismatch},
		{"invalid hash format", "notahash", password, ErrInvalidHash},
		{"wrong algorithm", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", password, ErrInvalidHash},
		{"wrong version", "$argon2id$v=16$m=1,t=1,p=1$c2FsdA$aGFzaA", password, ErrIncompatibleVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.Verify(tt.hash, tt.password); !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHashRejectsShortPasswords(t *testing.T) {
	if _, err := testHasher().Hash("short"); !errors.Is(err, ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", err)
	}
}

func TestHashUniqueness(t *testing.T) {
	h := testHasher()
	a, _ := h.Hash("samepassword")
	b, _ := h.Hash("samepassword")
	if a == b {
		t.Error("expected different salts to produce different hashes")
	}
}

func TestNeedsRehash(t *testing.T) {
	old := testHasher()
	hash, err := old.Hash("rotate-me-please")
	if err != nil {
		t.Fatal(err)
	}

	if old.NeedsRehash(hash) {
		t.Error("hash made with the same params should not need rehash")
	}

	stronger := NewHasher(Config{MemoryKiB: 2048, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if !stronger.NeedsRehash(hash) {
		t.Error("hash made with weaker params should need rehash")
	}
	if err := stronger.Verify(hash, "rotate-me-please"); err != nil {
		t.Errorf("old hashes must still verify: %v", err)
	}
	if !stronger.NeedsRehash("garbage") {
		t.Error("unparseable hash should need rehash")
	}
}

func TestConfigDefaults(t *testing.T) {
	p := Config{}.params()
	d := DefaultConfig()
	if p.Memory != d.MemoryKiB || p.Iterations != d.Iterations || p.Parallelism != d.Parallelism {
		t.Errorf("zero config should fall back to defaults, got %+v", p)
	}

	low := Config{LowMemoryMode: true}.params()
	if low.Memory != 32*1024 {
		t.Errorf("low memory mode should cap memory, got %d", low.Memory)
	}
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 16},
		{4, 16},
		{24, 24},
	}
	for _, tt := range tests {
		if got := len(Generate(tt.in)); got != tt.want {
			t.Errorf("len(Generate(%d)) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

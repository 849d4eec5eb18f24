package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params controls Argon2id hashing cost. MemoryKiB is in KiB as required by argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies passwords with a fixed cost and length policy.
type Hasher struct {
	Params    Params
	MinLength int
	MaxLength int
}

// DefaultHasher returns the production baseline.
func DefaultHasher() Hasher {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Hasher{
		Params: Params{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		MinLength: 10,
		MaxLength: 256,
	}
}

// FromEnv applies environment overrides on top of DefaultHasher.
//
//   - TOURDESK_PASSWORD_MIN_LEN, TOURDESK_PASSWORD_MAX_LEN
//   - TOURDESK_ARGON2_MEMORY_KIB, TOURDESK_ARGON2_ITERATIONS, TOURDESK_ARGON2_PARALLELISM
func FromEnv() (Hasher, error) {
	h := DefaultHasher()

	if v, ok := os.LookupEnv("TOURDESK_PASSWORD_MIN_LEN"); ok {
		n, err := parseUint(v, 1, 1024)
		if err != nil {
			return Hasher{}, fmt.Errorf("TOURDESK_PASSWORD_MIN_LEN: %w", err)
		}
		h.MinLength = int(n)
	}
	if v, ok := os.LookupEnv("TOURDESK_PASSWORD_MAX_LEN"); ok {
		n, err := parseUint(v, 1, 4096)
		if err != nil {
			return Hasher{}, fmt.Errorf("TOURDESK_PASSWORD_MAX_LEN: %w", err)
		}
		h.MaxLength = int(n)
	}
	if v, ok := os.LookupEnv("TOURDESK_ARGON2_MEMORY_KIB"); ok {
		n, err := parseUint(v, 8*1024, 1024*1024)
		if err != nil {
			return Hasher{}, fmt.Errorf("TOURDESK_ARGON2_MEMORY_KIB: %w", err)
		}
		h.Params.MemoryKiB = n
	}
	if v, ok := os.LookupEnv("TOURDESK_ARGON2_ITERATIONS"); ok {
		n, err := parseUint(v, 1, 20)
		if err != nil {
			return Hasher{}, fmt.Errorf("TOURDESK_ARGON2_ITERATIONS: %w", err)
		}
		h.Params.Iterations = n
	}
	if v, ok := os.LookupEnv("TOURDESK_ARGON2_PARALLELISM"); ok {
		n, err := parseUint(v, 1, math.MaxUint8)
		if err != nil {
			return Hasher{}, fmt.Errorf("TOURDESK_ARGON2_PARALLELISM: %w", err)
		}
		h.Params.Parallelism = uint8(n) // #nosec G115 -- bounded by parseUint.
	}

	if h.MinLength > h.MaxLength {
		return Hasher{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)", h.MinLength, h.MaxLength)
	}
	return h, nil
}

func parseUint(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

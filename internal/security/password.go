package security

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// DefaultBcryptCost matches the work factor existing account hashes were
// created with.
const DefaultBcryptCost = 12

// PasswordHasher hashes new passwords with bcrypt and verifies both bcrypt
// hashes and argon2id hashes imported from older deployments. Hashing is
// deliberately slow, so concurrent hash operations are bounded.
type PasswordHasher struct {
	cost  int
	slots *semaphore.Weighted
	dummy []byte
}

// NewPasswordHasher creates a hasher running at most concurrency hash
// operations at a time.
func NewPasswordHasher(cost, concurrency int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	// Spent on unknown accounts so their response time matches a real verify.
	dummy, err := bcrypt.GenerateFromPassword([]byte("campus-portal-dummy"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &PasswordHasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(concurrency)),
		dummy: dummy,
	}, nil
}

// Hash generates a salted bcrypt hash of password
func (ph *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := ph.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer ph.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), ph.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify checks if password matches the encoded hash. A malformed hash is an
// error, never a match.
func (ph *PasswordHasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := ph.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer ph.slots.Release(1)

	switch {
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if err == nil {
			return true, nil
		}
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", errors.ErrMalformedHash, err)
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return verifyArgon2id(password, encodedHash)
	default:
		return false, errors.ErrMalformedHash
	}
}

// DummyVerify burns one comparison against a fixed hash.
func (ph *PasswordHasher) DummyVerify(ctx context.Context, password string) {
	if err := ph.slots.Acquire(ctx, 1); err != nil {
		return
	}
	defer ph.slots.Release(1)
	_ = bcrypt.CompareHashAndPassword(ph.dummy, []byte(password))
}

// NeedsRehash reports whether encodedHash should be replaced by a bcrypt
// hash at the current cost.
func (ph *PasswordHasher) NeedsRehash(encodedHash string) bool {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return true
	}
	return cost != ph.cost
}

// verifyArgon2id checks a $argon2id$v=19$m=..,t=..,p=..$salt$hash string
func verifyArgon2id(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("%w: invalid argon2id format", errors.ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("%w: failed to parse version: %v", errors.ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("%w: incompatible argon2 version", errors.ErrMalformedHash)
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("%w: failed to parse parameters: %v", errors.ErrMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: failed to decode salt: %v", errors.ErrMalformedHash, err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("%w: failed to decode hash: %v", errors.ErrMalformedHash, err)
	}

	testHash := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))

	return subtle.ConstantTimeCompare(hash, testHash) == 1, nil
}

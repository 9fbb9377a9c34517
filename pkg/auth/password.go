// Package auth covers the admin trust boundary: password hashing for
// credential provisioning, HMAC session tokens, and the trusted-origin check
// applied to browser requests.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/argon2"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

const (
	// minEntropyBits is the strength floor for new admin passwords.
	minEntropyBits = 60

	// maxPasswordLength bounds hashing work on attacker-supplied input.
	maxPasswordLength = 128

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword derives an argon2id hash in the standard encoded form.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", domain.Validationf("password cannot be empty")
	}
	if len(password) > maxPasswordLength {
		return "", domain.Validationf("password too long")
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a plaintext password against an encoded argon2id
// hash in constant time.
func VerifyPassword(encoded, password string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return domain.Unauthorizedf("invalid credentials")
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return domain.Unauthorizedf("invalid credentials")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return domain.Unauthorizedf("invalid credentials")
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return domain.Unauthorizedf("invalid credentials")
	}

	key := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return domain.Unauthorizedf("invalid credentials")
	}
	return nil
}

// ValidatePasswordStrength rejects passwords below the entropy floor.
func ValidatePasswordStrength(password string) error {
	if err := passwordvalidator.Validate(password, minEntropyBits); err != nil {
		return domain.Validationf("%s", err.Error())
	}
	return nil
}

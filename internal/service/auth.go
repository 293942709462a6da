package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"phobos.org.uk/foreman/internal/api"
)

// Argon2id parameters for API token hashes.
const (
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashToken creates an Argon2id hash suitable for the token_hash config key.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token must not be empty")
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	// $argon2id$v=19$m=19456,t=2,p=1$<base64-salt>$<base64-hash>
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyToken checks token against an encoded Argon2id hash.
func VerifyToken(token, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(token), salt, time, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// tokenAuth guards handlers with a bearer token checked against hash.
// The last accepted token is remembered so steady clients skip the KDF.
type tokenAuth struct {
	hash string

	mu       sync.Mutex
	accepted string
}

func (a *tokenAuth) valid(token string) bool {
	a.mu.Lock()
	cached := a.accepted
	a.mu.Unlock()
	if cached != "" && subtle.ConstantTimeCompare([]byte(cached), []byte(token)) == 1 {
		return true
	}
	if !VerifyToken(token, a.hash) {
		return false
	}
	a.mu.Lock()
	a.accepted = token
	a.mu.Unlock()
	return true
}

func (a *tokenAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" || !a.valid(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="foreman"`)
			api.WriteError(w, http.StatusUnauthorized, api.ErrorUnauthorized, "valid bearer token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (OWASP recommended).
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

var ErrInvalidHash = errors.New("invalid argon2id hash")

// HashToken creates an Argon2id hash of an admin token, encoded as
// $argon2id$v=19$m=65536,t=1,p=4$salt$hash.
func HashToken(token string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyToken reports whether token matches an encoded Argon2id hash.
func VerifyToken(token, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrInvalidHash
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}
	if threads == 0 || threads > 255 {
		return false, fmt.Errorf("%w: parallelism %d", ErrInvalidHash, threads)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, fmt.Errorf("%w: hash", ErrInvalidHash)
	}

	got := argon2.IDKey([]byte(token), salt, time, memory, uint8(threads), uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// requireToken guards next with a Bearer token checked against hash.
func requireToken(hash string, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="bandmap admin"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		match, err := VerifyToken(token, hash)
		if err != nil {
			logger.Error("admin token hash unusable", "error", err)
		}
		if !match {
			logger.Warn("rejected admin request", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

// Package privacylog wraps a slog.Handler so credentials and key tokens never
// reach log output and correlation/key identifiers appear only as
// per-process fingerprints.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Redacted replaces the value of any attribute with a sensitive key.
const Redacted = "[REDACTED]"

var (
	processSalt = newSalt()

	// Substrings that mark an attribute key as secret.
	secretKeyParts = []string{"token", "secret", "password", "passphrase", "authorization"}

	// Identifiers that may be correlated across systems and are logged as fingerprints.
	fingerprintKeys = map[string]struct{}{
		"correlation_id":   {},
		"key_id":           {},
		"sender_key_id":    {},
		"recipient_key_id": {},
		"client_id":        {},
	}
)

// Handler sanitizes every attribute before passing the record on.
type Handler struct {
	next slog.Handler
}

// WrapHandler returns next wrapped in a sanitizing Handler. A nil next stays nil.
func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(sanitizeAll(attrs))}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

// SanitizeAttr redacts or fingerprints a single attribute, recursing into groups.
func SanitizeAttr(a slog.Attr) slog.Attr {
	key := strings.TrimSpace(a.Key)
	lower := strings.ToLower(key)
	switch {
	case isSecret(lower):
		return slog.String(key, Redacted)
	case isFingerprinted(lower):
		return slog.String(key+"_fp", Fingerprint(stringOf(a.Value.Resolve())))
	case a.Value.Kind() == slog.KindGroup:
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAll(a.Value.Group())...)}
	default:
		return a
	}
}

// Fingerprint returns a short salted digest of value, stable for the life of
// the process. Empty input stays empty.
func Fingerprint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(processSalt + "|" + value))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func sanitizeAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = SanitizeAttr(a)
	}
	return out
}

func isSecret(key string) bool {
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func isFingerprinted(key string) bool {
	_, ok := fingerprintKeys[key]
	return ok
}

func stringOf(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v.Any())
	}
}

func newSalt() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "authmsg"
	}
	return hex.EncodeToString(buf)
}

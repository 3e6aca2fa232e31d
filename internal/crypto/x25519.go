package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"

	"authmsg/internal/domain"
)

var errBadKeyLength = errors.New("x25519 key must be 32 bytes")

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pub, err = PublicFromPrivate(priv)
	return
}

// PublicFromPrivate derives the public half of priv.
func PublicFromPrivate(priv domain.X25519Private) (pub domain.X25519Public, err error) {
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], pb)
	return pub, nil
}

// DH computes X25519 Diffie–Hellman. Low-order peer points are rejected.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	Wipe(secret)
	return out, nil
}

// PrivateFromBytes copies a 32-byte slice into a private key.
func PrivateFromBytes(b []byte) (k domain.X25519Private, err error) {
	if len(b) != len(k) {
		return k, errBadKeyLength
	}
	copy(k[:], b)
	return k, nil
}

// PublicFromBytes copies a 32-byte slice into a public key.
func PublicFromBytes(b []byte) (k domain.X25519Public, err error) {
	if len(b) != len(k) {
		return k, errBadKeyLength
	}
	copy(k[:], b)
	return k, nil
}

// FingerprintX25519 returns a short fingerprint of the public key.
func FingerprintX25519(pub domain.X25519Public) string {
	return Fingerprint(pub[:])
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}

package otp

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"
	"time"
)

// timestampLayout renders instants as "2024-12-16 08:23:45.123456+00:00".
const timestampLayout = "2006-01-02 15:04:05.000000-07:00"

// DeriveSecret returns base32(SHA-256(phone "_" salt "_" timestamp)).
// The output is 56 characters of padded standard base32.
func DeriveSecret(phoneNumber, salt string, at time.Time) string {
	var b strings.Builder
	b.WriteString(phoneNumber)
	b.WriteByte('_')
	b.WriteString(salt)
	b.WriteByte('_')
	b.WriteString(at.UTC().Format(timestampLayout))

	sum := sha256.Sum256([]byte(b.String()))
	return base32.StdEncoding.EncodeToString(sum[:])
}

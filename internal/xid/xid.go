package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a random identifier with a readable prefix, e.g.
// "sale-0192b3c4-...". It uses UUIDv7 so keys created on one terminal sort
// by creation time.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}

// Valid reports whether s is prefix followed by a UUID.
func Valid(prefix string, s string) bool {
	raw := s
	if prefix != "" {
		p := prefix + "-"
		if len(s) <= len(p) || s[:len(p)] != p {
			return false
		}
		raw = s[len(p):]
	}
	if len(raw) != 36 {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}

// Time extracts the creation time of a UUIDv7-based identifier.
func Time(prefix string, s string) (time.Time, bool) {
	if !Valid(prefix, s) {
		return time.Time{}, false
	}
	id := uuid.MustParse(s[len(s)-36:])
	if id.Version() != 7 {
		return time.Time{}, false
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec), true
}

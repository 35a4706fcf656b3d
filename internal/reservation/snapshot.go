package reservation

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Snapshot freezes the venue details that were published when the reservation
// was made, so the record stays auditable after the source changes.
type Snapshot struct {
	Hours      string
	Address    string
	Phone      string
	Source     string
	CapturedAt time.Time
	Digest     string
}

// Seal computes the digest over the captured fields.
func (s Snapshot) Seal() Snapshot {
	s.Digest = s.computeDigest()
	return s
}

// Verify reports whether the digest matches the captured fields.
func (s Snapshot) Verify() bool {
	return s.Digest != "" && s.Digest == s.computeDigest()
}

func (s Snapshot) computeDigest() string {
	canonical := strings.Join([]string{
		s.Hours,
		s.Address,
		s.Phone,
		s.Source,
		s.CapturedAt.UTC().Format(time.RFC3339Nano),
	}, "\x1f")
	sum := blake2b.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

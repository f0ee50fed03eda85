package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm change.
const (
	DomainEvent = "vigil/event/v1"
	DomainState = "vigil/state/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content ID of a dispatched event within a run.
// payload must already be canonical.
func EventID(runToken string, seq int64, tag string, payload []byte) (string, error) {
	obj := map[string]any{
		"run":     runToken,
		"seq":     seq,
		"tag":     tag,
		"payload": rawJSON(payload),
	}
	canonical, err := Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}
	return HashWithDomain(DomainEvent, canonical), nil
}

// StateHash computes the content hash of a state snapshot.
func StateHash(state any) (string, error) {
	canonical, err := Marshal(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: %w", err)
	}
	return HashWithDomain(DomainState, canonical), nil
}

// rawJSON embeds already-encoded JSON in a value passed to Marshal.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

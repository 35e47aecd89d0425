package caldav

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/bromanko/michael/internal/models"
)

// SourceID derives a deterministic id from provider + base URL, so the
// same configured account maps to the same CalendarSource row across
// restarts (spec §3).
func SourceID(provider models.CalendarProvider, baseURL string) string {
	sum := sha256.Sum256([]byte(string(provider) + "|" + baseURL))
	return hex.EncodeToString(sum[:])[:32]
}

package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateEventID produces a unique identifier for published order events.
func GenerateEventID() string {
	return fmt.Sprintf("evt_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

// GenerateLockToken produces an owner token for distributed lock leases.
// Unlock only succeeds when the stored token matches.
func GenerateLockToken() string {
	return uuid.NewString()
}

package models

import "time"

// MarketingProfile mirrors a profile on the marketing provider side.
// The local cache of these records is advisory only; the provider is
// authoritative.
type MarketingProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	SyncedAt  time.Time `json:"synced_at,omitempty"`
}

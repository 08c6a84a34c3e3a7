package database

import (
	"time"
)

// ScanResult is the record of one completed facial scan.
// It is created once, after both photos were uploaded and analyzed, and never modified.
type ScanResult struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	FrontFaceURL string             `json:"frontFaceUrl"`
	SideFaceURL  string             `json:"sideFaceUrl"`
	Landmarks    map[string]float64 `json:"landmarks"`
	Timestamp    int64              `json:"timestamp"` // milliseconds since epoch
}

// CapturedAt returns the timestamp as time.Time
func (r ScanResult) CapturedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Valid reports whether the result carries both image URLs and at least one measurement
func (r ScanResult) Valid() bool {
	return r.ID != "" && r.FrontFaceURL != "" && r.SideFaceURL != "" && len(r.Landmarks) > 0
}

// Subscription describes the paid plan of a user
type Subscription struct {
	IsSubscribed     bool   `json:"isSubscribed"`
	SubscriptionCode string `json:"subscriptionCode"`
	StartSubscribed  string `json:"startSubscribed"`
	EndSubscribed    string `json:"endSubscribed"`
}

// UserLogin is the stored profile of an authenticated user
type UserLogin struct {
	UserID       string       `json:"user_id"`
	Email        string       `json:"email"`
	Subscription Subscription `json:"subscription"`
}

// StoredSession represents a web session persisted between restarts
type StoredSession struct {
	ID          string
	UserID      string
	Email       string
	AccessToken string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

package models

import "time"

// AllCounties subscribes to alerts for every county.
const AllCounties = "*"

// AlertSubscription asks for an email whenever County reaches MinLevel.
type AlertSubscription struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	County    string    `json:"county"`
	MinLevel  string    `json:"min_level"`
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether the subscription covers county.
func (s AlertSubscription) Matches(county string) bool {
	return s.County == AllCounties || s.County == county
}

// AlertLogEntry records one delivered alert.
type AlertLogEntry struct {
	SubscriptionID int64     `json:"subscription_id"`
	Email          string    `json:"email"`
	County         string    `json:"county"`
	Level          string    `json:"level"`
	AlertDate      string    `json:"alert_date"`
	SentAt         time.Time `json:"sent_at"`
}

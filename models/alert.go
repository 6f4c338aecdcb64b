package models

import "time"

const AlertTypeLowBalance = "low_balance"

type Alert struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	AccountID   string     `json:"account_id,omitempty"`
	Type        string     `json:"type"`
	Message     string     `json:"message"`
	Severity    string     `json:"severity"`
	TriggeredAt time.Time  `json:"triggered_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

package models

import "time"

// DutyPanel represents the tracked panel messages for a guild
type DutyPanel struct {
	GuildID          string
	ChannelID        string
	ActiveMessageID  string
	SummaryMessageID string
	LogChannelID     string
}

// ActiveSession represents a user currently on duty in a guild
type ActiveSession struct {
	UserID       string
	GuildID      string
	StartTime    time.Time
	LogMessageID string
}

// DutyStat represents cumulative duty time for a user in a guild
type DutyStat struct {
	UserID       string
	GuildID      string
	TotalSeconds int64
}

// DutyLogEntry represents one row of the append-only duty event log
type DutyLogEntry struct {
	LogID     int64
	Timestamp time.Time
	GuildID   string
	UserID    string
	Action    string
	Details   string
}

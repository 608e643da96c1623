package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"dutybot/internal/models"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// UpsertPanel creates or overwrites the panel record for a guild. The log
// channel, configured separately, is preserved on overwrite.
func (r *Repository) UpsertPanel(guildID, channelID, activeMessageID, summaryMessageID string) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO duty_panels (guild_id, channel_id, active_message_id, summary_message_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			active_message_id = excluded.active_message_id,
			summary_message_id = excluded.summary_message_id`,
		guildID, channelID, activeMessageID, summaryMessageID)
	if err != nil {
		return fmt.Errorf("failed to upsert panel: %w", err)
	}
	return nil
}

// SetLogChannel sets the duty log channel for a guild, creating a placeholder
// panel row if the guild has no panel yet.
func (r *Repository) SetLogChannel(guildID, channelID string) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO duty_panels (guild_id, channel_id, log_channel_id)
		VALUES (?, '', ?)
		ON CONFLICT (guild_id) DO UPDATE SET log_channel_id = excluded.log_channel_id`,
		guildID, channelID)
	if err != nil {
		return fmt.Errorf("failed to set log channel: %w", err)
	}
	return nil
}

// GetPanel gets the panel record for a guild, or nil if none is configured
func (r *Repository) GetPanel(guildID string) (*models.DutyPanel, error) {
	var panel models.DutyPanel
	var activeID, summaryID, logChannelID sql.NullString
	err := r.db.conn.QueryRow(
		`SELECT guild_id, channel_id, active_message_id, summary_message_id, log_channel_id
		FROM duty_panels WHERE guild_id = ?`, guildID).
		Scan(&panel.GuildID, &panel.ChannelID, &activeID, &summaryID, &logChannelID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get panel: %w", err)
	}
	panel.ActiveMessageID = activeID.String
	panel.SummaryMessageID = summaryID.String
	panel.LogChannelID = logChannelID.String
	return &panel, nil
}

// ListPanels gets the panel records of every guild
func (r *Repository) ListPanels() ([]models.DutyPanel, error) {
	rows, err := r.db.conn.Query(
		`SELECT guild_id, channel_id, active_message_id, summary_message_id, log_channel_id
		FROM duty_panels`)
	if err != nil {
		return nil, fmt.Errorf("failed to list panels: %w", err)
	}
	defer rows.Close()

	var panels []models.DutyPanel
	for rows.Next() {
		var panel models.DutyPanel
		var activeID, summaryID, logChannelID sql.NullString
		if err := rows.Scan(&panel.GuildID, &panel.ChannelID, &activeID, &summaryID, &logChannelID); err != nil {
			log.Warn().Err(err).Msg("error scanning panel row")
			continue
		}
		panel.ActiveMessageID = activeID.String
		panel.SummaryMessageID = summaryID.String
		panel.LogChannelID = logChannelID.String
		panels = append(panels, panel)
	}

	return panels, rows.Err()
}

// IsOnDuty reports whether the user has an active duty session in the guild
func (r *Repository) IsOnDuty(userID, guildID string) (bool, error) {
	var one int
	err := r.db.conn.QueryRow(
		"SELECT 1 FROM active_duty_users WHERE user_id = ? AND guild_id = ?",
		userID, guildID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check duty state: %w", err)
	}
	return true, nil
}

// StartSession creates an active duty session. If the user already has one,
// the existing row and its start time are kept.
func (r *Repository) StartSession(userID, guildID string, start time.Time, logMessageID string) error {
	_, err := r.db.conn.Exec(`
		INSERT OR IGNORE INTO active_duty_users (user_id, guild_id, start_time, log_message_id)
		VALUES (?, ?, ?, ?)`,
		userID, guildID, start.UTC().Format(time.RFC3339), nullable(logMessageID))
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// GetSession gets the active duty session for a user, or nil if off duty
func (r *Repository) GetSession(userID, guildID string) (*models.ActiveSession, error) {
	var session models.ActiveSession
	var startRaw string
	var logMessageID sql.NullString
	err := r.db.conn.QueryRow(
		`SELECT user_id, guild_id, start_time, log_message_id
		FROM active_duty_users WHERE user_id = ? AND guild_id = ?`,
		userID, guildID).
		Scan(&session.UserID, &session.GuildID, &startRaw, &logMessageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.StartTime, err = time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session start time %q: %w", startRaw, err)
	}
	session.LogMessageID = logMessageID.String
	return &session, nil
}

// ListSessions gets all active duty sessions in a guild
func (r *Repository) ListSessions(guildID string) ([]models.ActiveSession, error) {
	rows, err := r.db.conn.Query(
		`SELECT user_id, guild_id, start_time, log_message_id
		FROM active_duty_users WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ActiveSession
	for rows.Next() {
		var session models.ActiveSession
		var startRaw string
		var logMessageID sql.NullString
		if err := rows.Scan(&session.UserID, &session.GuildID, &startRaw, &logMessageID); err != nil {
			log.Warn().Err(err).Msg("error scanning session row")
			continue
		}
		session.StartTime, err = time.Parse(time.RFC3339, startRaw)
		if err != nil {
			log.Warn().Str("start_time", startRaw).Msg("skipping session with unparsable start time")
			continue
		}
		session.LogMessageID = logMessageID.String
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// EndSession deletes the active duty session and reports whether a row was
// actually deleted; no-op when the user is off duty. Interaction handlers run
// concurrently, so the row count is the authority on who ended the session.
func (r *Repository) EndSession(userID, guildID string) (bool, error) {
	res, err := r.db.conn.Exec(
		"DELETE FROM active_duty_users WHERE user_id = ? AND guild_id = ?",
		userID, guildID)
	if err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}
	return deleted > 0, nil
}

// SetSessionLogMessage records the duty log message posted for a session
func (r *Repository) SetSessionLogMessage(userID, guildID, messageID string) error {
	_, err := r.db.conn.Exec(
		"UPDATE active_duty_users SET log_message_id = ? WHERE user_id = ? AND guild_id = ?",
		nullable(messageID), userID, guildID)
	if err != nil {
		return fmt.Errorf("failed to set session log message: %w", err)
	}
	return nil
}

// AdjustTotal adds delta seconds to the user's cumulative total, clamped at
// zero, creating the row if absent
func (r *Repository) AdjustTotal(userID, guildID string, deltaSeconds int64) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO user_duty_stats (user_id, guild_id, total_duty_seconds)
		VALUES (?, ?, MAX(0, ?))
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			total_duty_seconds = MAX(0, user_duty_stats.total_duty_seconds + ?)`,
		userID, guildID, deltaSeconds, deltaSeconds)
	if err != nil {
		return fmt.Errorf("failed to adjust total: %w", err)
	}
	return nil
}

// SetTotal overwrites the user's cumulative total
func (r *Repository) SetTotal(userID, guildID string, seconds int64) error {
	if seconds < 0 {
		seconds = 0
	}
	_, err := r.db.conn.Exec(`
		INSERT INTO user_duty_stats (user_id, guild_id, total_duty_seconds)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			total_duty_seconds = excluded.total_duty_seconds`,
		userID, guildID, seconds)
	if err != nil {
		return fmt.Errorf("failed to set total: %w", err)
	}
	return nil
}

// GetTotal gets the user's cumulative duty seconds, zero when no row exists
func (r *Repository) GetTotal(userID, guildID string) (int64, error) {
	var totalSeconds int64
	err := r.db.conn.QueryRow(
		"SELECT total_duty_seconds FROM user_duty_stats WHERE user_id = ? AND guild_id = ?",
		userID, guildID).Scan(&totalSeconds)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to get total: %w", err)
	}
	return totalSeconds, nil
}

// ListTotals gets cumulative duty seconds of every user in a guild,
// descending by total
func (r *Repository) ListTotals(guildID string) ([]models.DutyStat, error) {
	rows, err := r.db.conn.Query(
		`SELECT user_id, total_duty_seconds FROM user_duty_stats
		WHERE guild_id = ? ORDER BY total_duty_seconds DESC`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list totals: %w", err)
	}
	defer rows.Close()

	var stats []models.DutyStat
	for rows.Next() {
		var stat models.DutyStat
		if err := rows.Scan(&stat.UserID, &stat.TotalSeconds); err != nil {
			log.Warn().Err(err).Msg("error scanning stats row")
			continue
		}
		stat.GuildID = guildID
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

// ResetTotal zeroes one user's cumulative total
func (r *Repository) ResetTotal(userID, guildID string) error {
	_, err := r.db.conn.Exec(
		"UPDATE user_duty_stats SET total_duty_seconds = 0 WHERE user_id = ? AND guild_id = ?",
		userID, guildID)
	if err != nil {
		return fmt.Errorf("failed to reset total: %w", err)
	}
	return nil
}

// ResetAllTotals zeroes every user's cumulative total in a guild
func (r *Repository) ResetAllTotals(guildID string) error {
	_, err := r.db.conn.Exec(
		"UPDATE user_duty_stats SET total_duty_seconds = 0 WHERE guild_id = ?",
		guildID)
	if err != nil {
		return fmt.Errorf("failed to reset totals: %w", err)
	}
	return nil
}

// AppendLog appends an entry to the duty event log
func (r *Repository) AppendLog(guildID, userID, action, details string) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO duty_logs (timestamp, guild_id, user_id, action, details)
		VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), guildID, userID, action, nullable(details))
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// ListLogs gets the most recent duty log entries of a guild, newest first
func (r *Repository) ListLogs(guildID string, limit int) ([]models.DutyLogEntry, error) {
	rows, err := r.db.conn.Query(
		`SELECT log_id, timestamp, guild_id, user_id, action, details
		FROM duty_logs WHERE guild_id = ? ORDER BY log_id DESC LIMIT ?`,
		guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var entries []models.DutyLogEntry
	for rows.Next() {
		var entry models.DutyLogEntry
		var timestampRaw string
		var details sql.NullString
		if err := rows.Scan(&entry.LogID, &timestampRaw, &entry.GuildID, &entry.UserID, &entry.Action, &details); err != nil {
			log.Warn().Err(err).Msg("error scanning log row")
			continue
		}
		entry.Timestamp, _ = time.Parse(time.RFC3339, timestampRaw)
		entry.Details = details.String
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// nullable maps the empty string to NULL for optional text columns
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

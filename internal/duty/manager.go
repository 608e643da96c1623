// Package duty implements the duty session business rules on top of the
// store: starting and stopping sessions, converting elapsed time into
// cumulative totals, and administrative adjustments.
package duty

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"dutybot/internal/store"
	"dutybot/pkg/utils"
)

// User-state errors, reported to the invoking user rather than treated as
// failures.
var (
	ErrAlreadyOnDuty = errors.New("user is already on duty")
	ErrNotOnDuty     = errors.New("user is not on duty")
)

// Log action labels, stable values in the duty_logs table.
const (
	ActionStart         = "sluzba_start"
	ActionStop          = "sluzba_stop"
	ActionStartRejected = "sluzba_start_odmowa"
	ActionStopRejected  = "sluzba_stop_odmowa"
	ActionRecall        = "przywolanie"
	ActionSetHours      = "ustaw_godziny"
	ActionAddHours      = "dodaj_godziny"
	ActionSubtractHours = "odejmij_godziny"
	ActionResetHours    = "reset_godzin"
	ActionResetAll      = "reset_godzin_wszyscy"
)

// Notifier is the outward-facing side of a duty event: refreshing the guild
// panel and posting to the optional duty log channel. All methods are
// best-effort; failures must not affect the recorded duty state.
type Notifier interface {
	RefreshPanels(guildID string)
	AnnounceStart(guildID, userID string, start time.Time) (messageID string, err error)
	AnnounceEnd(guildID, userID, logMessageID string, elapsed time.Duration, recalledBy string)
}

// Manager enforces the duty session rules
type Manager struct {
	repo     *store.Repository
	notifier Notifier
	now      func() time.Time
}

// NewManager creates a manager on top of the repository
func NewManager(repo *store.Repository) *Manager {
	return &Manager{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier wires the Discord-facing side in. A nil notifier is allowed;
// duty state is then recorded without panel refreshes or announcements.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// StartDuty begins a duty session for the user. Returns ErrAlreadyOnDuty when
// a session exists; the existing session and its start time are kept.
func (m *Manager) StartDuty(guildID, userID string) error {
	onDuty, err := m.repo.IsOnDuty(userID, guildID)
	if err != nil {
		return err
	}
	if onDuty {
		if err := m.repo.AppendLog(guildID, userID, ActionStartRejected, "już na służbie"); err != nil {
			log.Warn().Err(err).Msg("could not log rejected duty start")
		}
		return ErrAlreadyOnDuty
	}

	start := m.now()

	// The session row is the source of truth; record it before anything
	// outward-facing so a failed insert cannot leave an orphan announcement
	if err := m.repo.StartSession(userID, guildID, start, ""); err != nil {
		return err
	}
	if err := m.repo.AppendLog(guildID, userID, ActionStart, ""); err != nil {
		log.Warn().Err(err).Msg("could not log duty start")
	}

	if m.notifier != nil {
		logMessageID, err := m.notifier.AnnounceStart(guildID, userID, start)
		if err != nil {
			log.Warn().Err(err).Str("guild", guildID).Str("user", userID).
				Msg("could not announce duty start")
		} else if logMessageID != "" {
			if err := m.repo.SetSessionLogMessage(userID, guildID, logMessageID); err != nil {
				log.Warn().Err(err).Msg("could not record duty log message")
			}
		}
	}

	m.refresh(guildID)
	return nil
}

// StopDuty ends the user's duty session and adds the elapsed whole seconds to
// their cumulative total. Returns ErrNotOnDuty when no session exists.
func (m *Manager) StopDuty(guildID, userID string) (time.Duration, error) {
	return m.endSession(guildID, userID, "")
}

// RecallDuty force-stops another user's session on behalf of actorID
func (m *Manager) RecallDuty(guildID, actorID, targetID string) (time.Duration, error) {
	return m.endSession(guildID, targetID, actorID)
}

func (m *Manager) endSession(guildID, userID, recalledBy string) (time.Duration, error) {
	session, err := m.repo.GetSession(userID, guildID)
	if err != nil {
		return 0, err
	}
	if session == nil {
		if err := m.repo.AppendLog(guildID, userID, ActionStopRejected, "nie na służbie"); err != nil {
			log.Warn().Err(err).Msg("could not log rejected duty stop")
		}
		return 0, ErrNotOnDuty
	}

	elapsedSeconds := int64(m.now().Sub(session.StartTime).Seconds())
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	elapsed := time.Duration(elapsedSeconds) * time.Second

	// Delete first: handlers run concurrently, and only whoever actually
	// removed the row may accrue the elapsed time
	deleted, err := m.repo.EndSession(userID, guildID)
	if err != nil {
		return 0, err
	}
	if !deleted {
		if err := m.repo.AppendLog(guildID, userID, ActionStopRejected, "nie na służbie"); err != nil {
			log.Warn().Err(err).Msg("could not log rejected duty stop")
		}
		return 0, ErrNotOnDuty
	}

	if err := m.repo.AdjustTotal(userID, guildID, elapsedSeconds); err != nil {
		return 0, err
	}

	action := ActionStop
	details := fmt.Sprintf("czas służby: %s", utils.FormatDuration(elapsedSeconds))
	if recalledBy != "" {
		action = ActionRecall
		details = fmt.Sprintf("przez %s, czas służby: %s", recalledBy, utils.FormatDuration(elapsedSeconds))
	}
	if err := m.repo.AppendLog(guildID, userID, action, details); err != nil {
		log.Warn().Err(err).Msg("could not log duty stop")
	}

	if m.notifier != nil {
		m.notifier.AnnounceEnd(guildID, userID, session.LogMessageID, elapsed, recalledBy)
	}

	m.refresh(guildID)
	return elapsed, nil
}

// SetHours overwrites the target's cumulative total
func (m *Manager) SetHours(guildID, actorID, targetID string, seconds int64) error {
	if err := m.repo.SetTotal(targetID, guildID, seconds); err != nil {
		return err
	}
	details := fmt.Sprintf("przez %s: %s dla %s", actorID, utils.FormatDuration(seconds), targetID)
	if err := m.repo.AppendLog(guildID, targetID, ActionSetHours, details); err != nil {
		log.Warn().Err(err).Msg("could not log hours adjustment")
	}
	m.refresh(guildID)
	return nil
}

// AddHours adds seconds to the target's cumulative total
func (m *Manager) AddHours(guildID, actorID, targetID string, seconds int64) error {
	return m.adjust(guildID, actorID, targetID, seconds, ActionAddHours)
}

// SubtractHours subtracts seconds from the target's cumulative total,
// flooring at zero
func (m *Manager) SubtractHours(guildID, actorID, targetID string, seconds int64) error {
	return m.adjust(guildID, actorID, targetID, -seconds, ActionSubtractHours)
}

func (m *Manager) adjust(guildID, actorID, targetID string, delta int64, action string) error {
	if err := m.repo.AdjustTotal(targetID, guildID, delta); err != nil {
		return err
	}
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	details := fmt.Sprintf("przez %s: %s dla %s", actorID, utils.FormatDuration(amount), targetID)
	if err := m.repo.AppendLog(guildID, targetID, action, details); err != nil {
		log.Warn().Err(err).Msg("could not log hours adjustment")
	}
	m.refresh(guildID)
	return nil
}

// ResetHours zeroes one user's cumulative total
func (m *Manager) ResetHours(guildID, actorID, targetID string) error {
	if err := m.repo.ResetTotal(targetID, guildID); err != nil {
		return err
	}
	details := fmt.Sprintf("przez %s dla %s", actorID, targetID)
	if err := m.repo.AppendLog(guildID, targetID, ActionResetHours, details); err != nil {
		log.Warn().Err(err).Msg("could not log hours reset")
	}
	m.refresh(guildID)
	return nil
}

// ResetAllHours zeroes every user's cumulative total in the guild
func (m *Manager) ResetAllHours(guildID, actorID string) error {
	if err := m.repo.ResetAllTotals(guildID); err != nil {
		return err
	}
	if err := m.repo.AppendLog(guildID, actorID, ActionResetAll, fmt.Sprintf("przez %s", actorID)); err != nil {
		log.Warn().Err(err).Msg("could not log hours reset")
	}
	m.refresh(guildID)
	return nil
}

func (m *Manager) refresh(guildID string) {
	if m.notifier != nil {
		m.notifier.RefreshPanels(guildID)
	}
}

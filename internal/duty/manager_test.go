package duty

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutybot/internal/models"
	"dutybot/internal/store"
)

type fakeNotifier struct {
	refreshed  []string
	startMsgID string
	startErr   error
	ends       int
	endedBy    string
}

func (f *fakeNotifier) RefreshPanels(guildID string) {
	f.refreshed = append(f.refreshed, guildID)
}

func (f *fakeNotifier) AnnounceStart(guildID, userID string, start time.Time) (string, error) {
	return f.startMsgID, f.startErr
}

func (f *fakeNotifier) AnnounceEnd(guildID, userID, logMessageID string, elapsed time.Duration, recalledBy string) {
	f.ends++
	f.endedBy = recalledBy
}

func newTestManager(t *testing.T) (*Manager, *store.Repository, *fakeNotifier) {
	t.Helper()
	db, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := store.NewRepository(db)
	manager := NewManager(repo)
	notifier := &fakeNotifier{}
	manager.SetNotifier(notifier)
	return manager, repo, notifier
}

func findLog(entries []models.DutyLogEntry, action string) *models.DutyLogEntry {
	for i := range entries {
		if entries[i].Action == action {
			return &entries[i]
		}
	}
	return nil
}

func TestStartStopAccruesElapsedSeconds(t *testing.T) {
	manager, repo, notifier := newTestManager(t)

	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return t0 }
	require.NoError(t, manager.StartDuty("g1", "u1"))

	onDuty, err := repo.IsOnDuty("u1", "g1")
	require.NoError(t, err)
	assert.True(t, onDuty)

	manager.now = func() time.Time { return t0.Add(125 * time.Second) }
	elapsed, err := manager.StopDuty("g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 125*time.Second, elapsed)

	total, err := repo.GetTotal("u1", "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 125, total)

	onDuty, err = repo.IsOnDuty("u1", "g1")
	require.NoError(t, err)
	assert.False(t, onDuty)

	entries, err := repo.ListLogs("g1", 10)
	require.NoError(t, err)
	assert.NotNil(t, findLog(entries, ActionStart))
	stop := findLog(entries, ActionStop)
	require.NotNil(t, stop)
	assert.Contains(t, stop.Details, "00:02:05")

	assert.GreaterOrEqual(t, len(notifier.refreshed), 2)
	assert.Equal(t, 1, notifier.ends)
}

func TestDoubleStartKeepsOriginalSession(t *testing.T) {
	manager, repo, _ := newTestManager(t)

	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return t0 }
	require.NoError(t, manager.StartDuty("g1", "u1"))

	manager.now = func() time.Time { return t0.Add(time.Hour) }
	err := manager.StartDuty("g1", "u1")
	assert.ErrorIs(t, err, ErrAlreadyOnDuty)

	sessions, err := repo.ListSessions("g1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].StartTime.Equal(t0), "duplicate start must not reset the start time")

	entries, err := repo.ListLogs("g1", 10)
	require.NoError(t, err)
	assert.NotNil(t, findLog(entries, ActionStartRejected))
}

func TestStopWithoutSession(t *testing.T) {
	manager, repo, _ := newTestManager(t)

	_, err := manager.StopDuty("g1", "u1")
	assert.ErrorIs(t, err, ErrNotOnDuty)

	entries, err := repo.ListLogs("g1", 10)
	require.NoError(t, err)
	assert.NotNil(t, findLog(entries, ActionStopRejected))
}

func TestRecallAttributesActor(t *testing.T) {
	manager, repo, notifier := newTestManager(t)

	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return t0 }
	require.NoError(t, manager.StartDuty("g1", "u1"))

	manager.now = func() time.Time { return t0.Add(time.Minute) }
	elapsed, err := manager.RecallDuty("g1", "admin", "u1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, elapsed)

	entries, err := repo.ListLogs("g1", 10)
	require.NoError(t, err)
	recall := findLog(entries, ActionRecall)
	require.NotNil(t, recall)
	assert.Contains(t, recall.Details, "admin")
	assert.Equal(t, "admin", notifier.endedBy)

	total, err := repo.GetTotal("u1", "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 60, total)
}

func TestStartStoresAnnouncedLogMessage(t *testing.T) {
	manager, repo, notifier := newTestManager(t)
	notifier.startMsgID = "msg123"

	require.NoError(t, manager.StartDuty("g1", "u1"))

	session, err := repo.GetSession("u1", "g1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "msg123", session.LogMessageID)
}

func TestStartRecordsSessionBeforeAnnouncing(t *testing.T) {
	manager, repo, notifier := newTestManager(t)
	notifier.startErr = fmt.Errorf("log channel unavailable")

	require.NoError(t, manager.StartDuty("g1", "u1"))

	// The session must exist even though the announcement failed
	session, err := repo.GetSession("u1", "g1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Empty(t, session.LogMessageID)
}

func TestSubtractFloorsAtZero(t *testing.T) {
	manager, repo, _ := newTestManager(t)

	require.NoError(t, manager.AddHours("g1", "admin", "u1", 100))
	require.NoError(t, manager.SubtractHours("g1", "admin", "u1", 250))

	total, err := repo.GetTotal("u1", "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	entries, err := repo.ListLogs("g1", 10)
	require.NoError(t, err)
	assert.NotNil(t, findLog(entries, ActionAddHours))
	assert.NotNil(t, findLog(entries, ActionSubtractHours))
}

func TestSetHours(t *testing.T) {
	manager, repo, notifier := newTestManager(t)

	require.NoError(t, manager.SetHours("g1", "admin", "u1", 7200))

	total, err := repo.GetTotal("u1", "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 7200, total)
	assert.NotEmpty(t, notifier.refreshed)
}

func TestResetAllHours(t *testing.T) {
	manager, repo, _ := newTestManager(t)

	require.NoError(t, repo.SetTotal("u1", "g1", 100))
	require.NoError(t, repo.SetTotal("u2", "g1", 0))
	require.NoError(t, repo.SetTotal("u3", "g1", 50))

	require.NoError(t, manager.ResetAllHours("g1", "admin"))

	for _, userID := range []string{"u1", "u2", "u3"} {
		total, err := repo.GetTotal(userID, "g1")
		require.NoError(t, err)
		assert.EqualValues(t, 0, total, "user %s", userID)
	}

	entries, err := repo.ListLogs("g1", 10)
	require.NoError(t, err)
	reset := findLog(entries, ActionResetAll)
	require.NotNil(t, reset)
	assert.Contains(t, reset.Details, "admin")
}

func TestResetHoursSingleUser(t *testing.T) {
	manager, repo, _ := newTestManager(t)

	require.NoError(t, repo.SetTotal("u1", "g1", 100))
	require.NoError(t, repo.SetTotal("u2", "g1", 200))

	require.NoError(t, manager.ResetHours("g1", "admin", "u1"))

	total, err := repo.GetTotal("u1", "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	total, err = repo.GetTotal("u2", "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 200, total)
}

// Interaction handlers run in their own goroutines, so a double-click of the
// duty_off button races two stops for the same session. A file-backed store
// is required here: every pooled connection to :memory: gets its own database.
func TestConcurrentStopAccruesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duty.db")
	db, err := store.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := store.NewRepository(db)
	manager := NewManager(repo)

	t0 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for round := 0; round < 25; round++ {
		userID := fmt.Sprintf("u%d", round)

		manager.now = func() time.Time { return t0 }
		require.NoError(t, manager.StartDuty("g1", userID))
		manager.now = func() time.Time { return t0.Add(125 * time.Second) }

		var wg sync.WaitGroup
		barrier := make(chan struct{})
		errs := make([]error, 2)
		for k := range errs {
			wg.Add(1)
			go func(k int) {
				defer wg.Done()
				<-barrier
				_, errs[k] = manager.StopDuty("g1", userID)
			}(k)
		}
		close(barrier)
		wg.Wait()

		successes := 0
		for _, err := range errs {
			switch {
			case err == nil:
				successes++
			default:
				assert.ErrorIs(t, err, ErrNotOnDuty)
			}
		}
		assert.Equal(t, 1, successes, "round %d: exactly one stop may win", round)

		total, err := repo.GetTotal(userID, "g1")
		require.NoError(t, err)
		assert.EqualValues(t, 125, total, "round %d: elapsed time accrued more than once", round)

		onDuty, err := repo.IsOnDuty(userID, "g1")
		require.NoError(t, err)
		assert.False(t, onDuty, "round %d", round)
	}
}

func TestNilNotifierIsAllowed(t *testing.T) {
	db, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	manager := NewManager(store.NewRepository(db))
	require.NoError(t, manager.StartDuty("g1", "u1"))
	_, err = manager.StopDuty("g1", "u1")
	require.NoError(t, err)
}

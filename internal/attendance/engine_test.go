package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/models"
)

const (
	tagE    = "ABCD0286"
	tagE2   = "ABCD0287" // second tag of the same employee
	tagF    = "ABCD0179"
	testDay = "2026-03-02"
)

func at(h, m, s int) time.Time {
	return time.Date(2026, 3, 2, h, m, s, 0, time.UTC)
}

type harness struct {
	engine  *Engine
	clock   *fakeClock
	dir     *fakeDirectory
	store   *fakeStore
	log     *fakeLog
	pub     *fakePublisher
	arch    *fakeArchiver
	policy  *PolicyHolder
	empE    *models.Employee
	empF    *models.Employee
	timeout time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	policy, err := NewPolicyHolder(DefaultPolicy())
	require.NoError(t, err)

	empE := &models.Employee{ID: uuid.New(), EmployeeCode: "EMP001", Name: "Tran Cao Thien Phuoc", IsActive: true}
	empF := &models.Employee{ID: uuid.New(), EmployeeCode: "EMP002", Name: "Nguyen Thanh Giang", IsActive: true}

	h := &harness{
		clock:   newFakeClock(at(8, 50, 0)),
		dir:     &fakeDirectory{tags: map[string]*models.Employee{tagE: empE, tagE2: empE, tagF: empF}},
		store:   newFakeStore(),
		log:     &fakeLog{},
		pub:     &fakePublisher{},
		arch:    &fakeArchiver{},
		policy:  policy,
		empE:    empE,
		empF:    empF,
		timeout: 200 * time.Millisecond,
	}
	h.engine = NewEngine(Deps{
		Directory: h.dir,
		Store:     h.store,
		Log:       h.log,
		Publisher: h.pub,
		Policy:    h.policy,
		Clock:     h.clock,
		Archiver:  h.arch,
	}, Options{Location: time.UTC, ScanTimeout: h.timeout})
	h.engine.Start()
	return h
}

func (h *harness) scanAt(t *testing.T, when time.Time, uid string) *models.ScanLogEntry {
	t.Helper()
	h.clock.Set(when)
	entry, err := h.engine.HandleScan(context.Background(), models.TagReading{RFIDUID: uid, ObservedAt: when})
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry
}

func TestEngine_DailyScenario(t *testing.T) {
	h := newHarness(t)

	steps := []struct {
		when  time.Time
		event models.EventType
	}{
		{at(8, 50, 0), models.EventCheckIn},
		{at(8, 50, 5), models.EventRecentScan},
		{at(9, 0, 0), models.EventAlreadyCheckedIn},
		{at(17, 50, 0), models.EventCheckOut},
		{at(17, 55, 0), models.EventAlreadyCheckedOut},
	}
	for _, s := range steps {
		entry := h.scanAt(t, s.when, tagE)
		assert.Equal(t, s.event, entry.EventType, "scan at %s", s.when.Format("15:04:05"))
		assert.Equal(t, models.ScanStatusSuccess, entry.Status)
	}

	rec, ok := h.store.record(h.empE.ID, testDay)
	require.True(t, ok)
	require.NotNil(t, rec.CheckInTime)
	require.NotNil(t, rec.CheckOutTime)
	assert.True(t, rec.CheckInTime.Equal(at(8, 50, 0)))
	assert.True(t, rec.CheckOutTime.Equal(at(17, 50, 0)))
	assert.Equal(t, 2, h.store.putCount())

	events := h.pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, "checked in", events[0].Action)
	assert.Equal(t, "08:50:00", events[0].Time)
	assert.Equal(t, "checked out", events[1].Action)
	assert.Equal(t, h.empE.Name, events[1].Name)
	assert.Equal(t, models.AttendanceEventType, events[1].Type)

	logs := h.log.all()
	require.Len(t, logs, 5)
	for _, l := range logs {
		require.NotNil(t, l.EmployeeCode)
		assert.Equal(t, "EMP001", *l.EmployeeCode)
		assert.Equal(t, "MAIN_ENTRANCE", l.DeviceID)
	}
}

func TestEngine_UnknownTag(t *testing.T) {
	h := newHarness(t)

	for _, when := range []time.Time{at(8, 50, 0), at(12, 0, 0), at(17, 50, 0)} {
		entry := h.scanAt(t, when, "FFFF0000")
		assert.Equal(t, models.EventUnknownEmployee, entry.EventType)
		assert.Equal(t, models.ScanStatusSuccess, entry.Status)
		assert.Nil(t, entry.EmployeeName)
	}

	assert.Len(t, h.log.all(), 3)
	assert.Zero(t, h.store.putCount())
	assert.Empty(t, h.pub.all())
}

func TestEngine_OutsideHours(t *testing.T) {
	h := newHarness(t)

	entry := h.scanAt(t, at(12, 0, 0), tagE)
	assert.Equal(t, models.EventOutsideHours, entry.EventType)
	assert.Zero(t, h.store.putCount())
	assert.Empty(t, h.pub.all())
}

func TestEngine_NoCheckIn(t *testing.T) {
	h := newHarness(t)

	entry := h.scanAt(t, at(17, 50, 0), tagE)
	assert.Equal(t, models.EventNoCheckIn, entry.EventType)

	_, ok := h.store.record(h.empE.ID, testDay)
	assert.False(t, ok, "no record should be created without a check-in")
	assert.Empty(t, h.pub.all())
}

func TestEngine_CooldownAppliesToSettledState(t *testing.T) {
	h := newHarness(t)

	h.scanAt(t, at(8, 50, 0), tagE)
	assert.Equal(t, models.EventAlreadyCheckedIn, h.scanAt(t, at(8, 55, 0), tagE).EventType)
	// already_checked_in refreshed the cooldown entry
	assert.Equal(t, models.EventRecentScan, h.scanAt(t, at(8, 55, 3), tagE).EventType)
	// recent_scan does not extend it
	assert.Equal(t, models.EventAlreadyCheckedIn, h.scanAt(t, at(8, 55, 10), tagE).EventType)
}

func TestEngine_SecondTagSharesRecord(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, models.EventCheckIn, h.scanAt(t, at(8, 50, 0), tagE).EventType)
	// different tag has its own cooldown but the same attendance record
	assert.Equal(t, models.EventAlreadyCheckedIn, h.scanAt(t, at(8, 50, 1), tagE2).EventType)
	assert.Equal(t, 1, h.store.putCount())
}

func TestEngine_ReplayNeverMutatesTwice(t *testing.T) {
	h := newHarness(t)
	p := DefaultPolicy()
	p.Cooldown = 0
	_, err := h.policy.Update(p)
	require.NoError(t, err)

	first := h.scanAt(t, at(8, 50, 0), tagE)
	second := h.scanAt(t, at(8, 50, 0), tagE)

	assert.Equal(t, models.EventCheckIn, first.EventType)
	assert.Equal(t, models.EventAlreadyCheckedIn, second.EventType)
	assert.Equal(t, 1, h.store.putCount())
}

func TestEngine_ConcurrentReadsOfSameTag(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(at(8, 50, 0))

	const reads = 50
	var wg sync.WaitGroup
	results := make(chan models.EventType, reads)
	for i := 0; i < reads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := h.engine.HandleScan(context.Background(), models.TagReading{RFIDUID: tagE})
			if assert.NoError(t, err) {
				results <- entry.EventType
			}
		}()
	}
	wg.Wait()
	close(results)

	counts := map[models.EventType]int{}
	for ev := range results {
		counts[ev]++
	}
	assert.Equal(t, 1, counts[models.EventCheckIn])
	assert.Equal(t, reads-1, counts[models.EventRecentScan])
	assert.Equal(t, 1, h.store.putCount())
	assert.Len(t, h.log.all(), reads)
	assert.Zero(t, h.engine.keys.slotCount(), "lock slots should be released")
	assert.Zero(t, h.engine.days.slotCount())
}

func TestEngine_ConcurrentEmployees(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(at(9, 0, 0))

	var wg sync.WaitGroup
	for _, tag := range []string{tagE, tagF} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			entry, err := h.engine.HandleScan(context.Background(), models.TagReading{RFIDUID: tag})
			assert.NoError(t, err)
			assert.Equal(t, models.EventCheckIn, entry.EventType)
		}(tag)
	}
	wg.Wait()
	assert.Equal(t, 2, h.store.putCount())
	assert.Len(t, h.pub.all(), 2)
}

func TestEngine_StoppedEngineLogsError(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.engine.Stop())

	entry := h.scanAt(t, at(8, 50, 0), tagE)
	assert.Equal(t, models.ScanStatusError, entry.Status)
	assert.Equal(t, models.EventIgnored, entry.EventType)
	assert.Contains(t, entry.Note, ErrStopped.Error())
	assert.Len(t, h.log.all(), 1)
	assert.Zero(t, h.store.putCount())
}

func TestEngine_StartStopIdempotent(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.engine.Start(), "already running")
	assert.True(t, h.engine.Status().Running)
	assert.True(t, h.engine.Stop())
	assert.False(t, h.engine.Stop(), "already stopped")
	assert.False(t, h.engine.Status().Running)
	assert.True(t, h.engine.Start())
}

func TestEngine_LookupFailure(t *testing.T) {
	h := newHarness(t)
	h.dir.setErr(errUnavailable)

	entry := h.scanAt(t, at(8, 50, 0), tagE)
	assert.Equal(t, models.EventUnknownEmployee, entry.EventType)
	assert.Equal(t, models.ScanStatusError, entry.Status)
	assert.Contains(t, entry.Note, "lookup tag")

	h.dir.setErr(nil)
	assert.Equal(t, models.EventCheckIn, h.scanAt(t, at(8, 50, 1), tagE).EventType,
		"a failed lookup must not start a cooldown")
}

func TestEngine_StoreReadFailure(t *testing.T) {
	h := newHarness(t)
	h.store.set(func(s *fakeStore) { s.getErr = errUnavailable })

	entry := h.scanAt(t, at(8, 50, 0), tagE)
	assert.Equal(t, models.ScanStatusError, entry.Status)
	assert.Equal(t, models.EventIgnored, entry.EventType)
	assert.Len(t, h.log.all(), 1)

	h.store.set(func(s *fakeStore) { s.getErr = nil })
	assert.Equal(t, models.EventCheckIn, h.scanAt(t, at(8, 50, 1), tagE).EventType)
}

func TestEngine_StoreWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.store.set(func(s *fakeStore) { s.putErr = errUnavailable })

	entry := h.scanAt(t, at(8, 50, 0), tagE)
	assert.Equal(t, models.EventCheckIn, entry.EventType, "keeps the computed classification")
	assert.Equal(t, models.ScanStatusError, entry.Status)
	assert.Empty(t, h.pub.all(), "failed mutations are not announced")

	h.store.set(func(s *fakeStore) { s.putErr = nil })
	entry = h.scanAt(t, at(8, 50, 2), tagE)
	assert.Equal(t, models.EventCheckIn, entry.EventType, "cooldown is only set on committed scans")
	assert.Equal(t, models.ScanStatusSuccess, entry.Status)
}

func TestEngine_LogFailureKeepsMutation(t *testing.T) {
	h := newHarness(t)
	h.log.err = errUnavailable
	h.clock.Set(at(8, 50, 0))

	entry, err := h.engine.HandleScan(context.Background(), models.TagReading{RFIDUID: tagE})
	require.Error(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.EventCheckIn, entry.EventType)
	assert.Equal(t, 1, h.store.putCount())
	assert.Len(t, h.pub.all(), 1)
}

func TestEngine_PublishFailureDoesNotRollBack(t *testing.T) {
	h := newHarness(t)
	h.pub.err = errUnavailable

	entry := h.scanAt(t, at(8, 50, 0), tagE)
	assert.Equal(t, models.EventCheckIn, entry.EventType)
	assert.Equal(t, models.ScanStatusSuccess, entry.Status)
	_, ok := h.store.record(h.empE.ID, testDay)
	assert.True(t, ok)
}

func TestEngine_ScanTimeout(t *testing.T) {
	h := newHarness(t)
	h.store.set(func(s *fakeStore) { s.getGate = make(chan struct{}) })

	started := time.Now()
	entry := h.scanAt(t, at(8, 50, 0), tagE)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, models.ScanStatusError, entry.Status)
	assert.Len(t, h.log.all(), 1, "timed out scans are still logged")

	// the next scan is not blocked by the failed one
	h.store.set(func(s *fakeStore) { s.getGate = nil })
	assert.Equal(t, models.EventCheckIn, h.scanAt(t, at(8, 50, 1), tagE).EventType)
}

func TestEngine_ClearDay(t *testing.T) {
	h := newHarness(t)

	h.scanAt(t, at(8, 50, 0), tagE)
	h.scanAt(t, at(8, 51, 0), tagF)

	n, err := h.engine.ClearDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, h.arch.archived[testDay], 2)
	assert.Zero(t, h.engine.cooldown.slotCount())

	// the same tag can check in again straight away
	assert.Equal(t, models.EventCheckIn, h.scanAt(t, at(8, 51, 2), tagE).EventType)
}

func TestEngine_ClearDayArchiveFailure(t *testing.T) {
	h := newHarness(t)
	h.scanAt(t, at(8, 50, 0), tagE)
	h.arch.err = errUnavailable

	_, err := h.engine.ClearDay(context.Background(), testDay)
	require.Error(t, err)
	_, ok := h.store.record(h.empE.ID, testDay)
	assert.True(t, ok, "records survive a failed archive")
}

func TestEngine_ClearDayWaitsForInFlightScan(t *testing.T) {
	h := newHarness(t)
	h.engine.scanTimeout = 5 * time.Second
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.store.set(func(s *fakeStore) {
		s.getGate = gate
		s.entered = entered
	})
	h.clock.Set(at(8, 50, 0))

	scanDone := make(chan *models.ScanLogEntry, 1)
	go func() {
		entry, _ := h.engine.HandleScan(context.Background(), models.TagReading{RFIDUID: tagE})
		scanDone <- entry
	}()
	<-entered

	clearDone := make(chan int, 1)
	go func() {
		n, err := h.engine.ClearDay(context.Background(), testDay)
		assert.NoError(t, err)
		clearDone <- n
	}()

	select {
	case <-clearDone:
		t.Fatal("clear finished while a scan of the same day was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	h.store.set(func(s *fakeStore) { s.getGate = nil; s.entered = nil })
	close(gate)

	entry := <-scanDone
	assert.Equal(t, models.EventCheckIn, entry.EventType)
	assert.Equal(t, 1, <-clearDone, "clear runs after the scan committed")
	_, ok := h.store.record(h.empE.ID, testDay)
	assert.False(t, ok)
}

func TestEngine_PolicySnapshotPerScan(t *testing.T) {
	h := newHarness(t)

	p := DefaultPolicy()
	p.CheckIn = Window{Start: hm(11, 0), End: hm(12, 30)}
	_, err := h.policy.Update(p)
	require.NoError(t, err)

	assert.Equal(t, models.EventCheckIn, h.scanAt(t, at(12, 0, 0), tagE).EventType)
}

func TestEngine_DeviceIDFromReading(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(at(8, 50, 0))

	entry, err := h.engine.HandleScan(context.Background(), models.TagReading{RFIDUID: tagE, DeviceID: "SIDE_DOOR"})
	require.NoError(t, err)
	assert.Equal(t, "SIDE_DOOR", entry.DeviceID)
	assert.Equal(t, "SIDE_DOOR", h.pub.all()[0].DeviceID)
}

func TestEngine_Today(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, testDay, h.engine.Today())
}

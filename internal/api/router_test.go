package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/pkg/dto"
)

const testKey = "secret"

type fakeControl struct {
	sent    []dto.ReaderCommand
	replies map[string]dto.ReaderReply
	err     error
}

func (f *fakeControl) Send(ctx context.Context, cmd dto.ReaderCommand) (dto.ReaderReply, error) {
	f.sent = append(f.sent, cmd)
	if f.err != nil {
		return dto.ReaderReply{}, f.err
	}
	return f.replies[cmd.Action], nil
}

type testServer struct {
	store   *storage.MemoryStore
	control *fakeControl
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	control := &fakeControl{replies: map[string]dto.ReaderReply{}}
	r := NewRouter(RouterConfig{
		APIKey:   testKey,
		Store:    store,
		Control:  control,
		Checks:   map[string]handlers.Pinger{"store": store},
		Location: time.UTC,
	})
	return &testServer{store: store, control: control, router: r}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", testKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRouter_Auth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/logs", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/logs", nil)
	req.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Readyz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	failing := NewRouter(RouterConfig{
		Store:   s.store,
		Control: s.control,
		Checks: map[string]handlers.Pinger{
			"nats": handlers.PingFunc(func(context.Context) error { return errors.New("disconnected") }),
		},
	})
	w = httptest.NewRecorder()
	failing.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "disconnected")
}

func TestReader_ForwardsCommands(t *testing.T) {
	s := newTestServer(t)
	s.control.replies[dto.ActionStatus] = dto.ReaderReply{Success: true, Running: true}
	s.control.replies[dto.ActionStart] = dto.ReaderReply{Success: true, Message: "Reader already running", Running: true}
	s.control.replies[dto.ActionScan] = dto.ReaderReply{Success: true, Scan: &dto.ScanLogResponse{EventType: "checkin"}}

	w := s.do(t, http.MethodGet, "/v1/reader/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.ReaderStatusResponse](t, w).Running)

	w = s.do(t, http.MethodPost, "/v1/reader/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ActionResponse{Success: true, Message: "Reader already running"}, decode[dto.ActionResponse](t, w))

	w = s.do(t, http.MethodPost, "/v1/reader/scan", dto.ScanRequest{RFIDUID: "ABCD0286"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "checkin", decode[dto.ReaderReply](t, w).Scan.EventType)

	w = s.do(t, http.MethodPost, "/v1/reader/scan", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Len(t, s.control.sent, 3)
	assert.Equal(t, dto.ReaderCommand{Action: dto.ActionScan, RFIDUID: "ABCD0286"}, s.control.sent[2])
}

func TestReader_IngestorDown(t *testing.T) {
	s := newTestServer(t)
	s.control.err = nats.ErrNoResponders

	w := s.do(t, http.MethodPost, "/v1/reader/stop", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ingestor is not running", decode[dto.ActionResponse](t, w).Message)
}

func TestAttendance_Today(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	alice, err := s.store.CreateEmployee(ctx, "E001", "Alice")
	require.NoError(t, err)
	require.NoError(t, s.store.AssignTag(ctx, alice.ID, "ABCD0286"))
	_, err = s.store.CreateEmployee(ctx, "E002", "Bob")
	require.NoError(t, err)

	in := time.Date(2026, 3, 2, 8, 50, 0, 0, time.UTC)
	require.NoError(t, s.store.PutAttendance(ctx, &models.AttendanceRecord{
		EmployeeID: alice.ID, Date: "2026-03-02", CheckInTime: &in,
	}))

	w := s.do(t, http.MethodGet, "/v1/attendance/today?date=2026-03-02", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.TodayAttendanceResponse](t, w)
	assert.Equal(t, "2026-03-02", resp.Date)
	assert.Equal(t, 1, resp.Present)
	assert.Equal(t, 1, resp.Absent)
	require.Len(t, resp.Employees, 2)
	assert.Equal(t, "Alice", resp.Employees[0].Name)
	assert.Equal(t, "08:50:00", resp.Employees[0].CheckInTime)
	assert.Equal(t, dto.StatusPresent, resp.Employees[0].Status)
	assert.Equal(t, []string{"ABCD0286"}, resp.Employees[0].RFIDUIDs)
	assert.Equal(t, dto.StatusAbsent, resp.Employees[1].Status)
	assert.Equal(t, []string{}, resp.Employees[1].RFIDUIDs)

	w = s.do(t, http.MethodGet, "/v1/attendance/today?date=03/02/2026", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendance_ClearToday(t *testing.T) {
	s := newTestServer(t)
	s.control.replies[dto.ActionClearToday] = dto.ReaderReply{Success: true, Message: "Cleared 2 attendance records for 2026-03-02", Cleared: 2}

	w := s.do(t, http.MethodPost, "/v1/attendance/clear_today", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[dto.ClearTodayResponse](t, w).Cleared)

	s.control.replies[dto.ActionClearToday] = dto.ReaderReply{Success: false, Message: "archive day: bucket missing"}
	w = s.do(t, http.MethodPost, "/v1/attendance/clear_today", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLogs_List(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	emp, err := s.store.CreateEmployee(ctx, "E001", "Alice")
	require.NoError(t, err)
	base := time.Date(2026, 3, 2, 8, 50, 0, 0, time.UTC)
	require.NoError(t, s.store.AppendScanLog(ctx, &models.ScanLogEntry{
		RFIDUID: "ABCD0286", EmployeeID: &emp.ID, EmployeeName: &emp.Name, EmployeeCode: &emp.EmployeeCode, ScanTime: base,
		EventType: models.EventCheckIn, DeviceID: "MAIN_ENTRANCE", Status: models.ScanStatusSuccess,
	}))
	require.NoError(t, s.store.AppendScanLog(ctx, &models.ScanLogEntry{
		RFIDUID: "FFFF0000", ScanTime: base.Add(time.Minute),
		EventType: models.EventUnknownEmployee, DeviceID: "MAIN_ENTRANCE", Status: models.ScanStatusSuccess,
	}))

	w := s.do(t, http.MethodGet, "/v1/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.ScanLogListResponse](t, w)
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, "unknown_employee", resp.Logs[0].EventType)
	assert.Equal(t, dto.UnknownEmployeeName, resp.Logs[0].EmployeeName)
	assert.Equal(t, "Alice", resp.Logs[1].EmployeeName)
	assert.Equal(t, 100, resp.Limit)

	w = s.do(t, http.MethodGet, "/v1/logs?event_type=checkin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.ScanLogListResponse](t, w)
	require.Len(t, resp.Logs, 1)
	assert.Equal(t, "E001", resp.Logs[0].EmployeeCode)

	w = s.do(t, http.MethodGet, "/v1/logs?event_type=teleported", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfig_GetAndUpdate(t *testing.T) {
	s := newTestServer(t)
	s.control.replies[dto.ActionReloadPolicy] = dto.ReaderReply{Success: true, Message: "Policy version 2 active", PolicyVersion: 2}

	w := s.do(t, http.MethodGet, "/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[dto.PolicyConfigResponse](t, w)
	assert.Equal(t, "08:45", got.CheckinStart)
	require.NotNil(t, got.ScanCooldown)
	assert.Equal(t, 10, *got.ScanCooldown)

	cooldown := 30
	update := dto.PolicyConfig{
		CheckinStart: "08:00", CheckinEnd: "09:30",
		CheckoutStart: "17:00", CheckoutEnd: "18:30",
		ScanCooldown: &cooldown, ReaderID: "LOBBY",
	}
	w = s.do(t, http.MethodPut, "/v1/config", update)
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[dto.PolicyConfigResponse](t, w)
	assert.True(t, got.Reloaded)
	assert.Equal(t, "LOBBY", got.ReaderID)

	values, err := s.store.ConfigValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "08:00", values["checkin_start"])
	assert.Equal(t, "30", values["scan_cooldown"])

	w = s.do(t, http.MethodGet, "/v1/config", nil)
	assert.Equal(t, "17:00", decode[dto.PolicyConfigResponse](t, w).CheckoutStart)
}

func TestConfig_UpdateRejectsInvalidPolicy(t *testing.T) {
	s := newTestServer(t)
	cooldown := 10
	overlapping := dto.PolicyConfig{
		CheckinStart: "08:00", CheckinEnd: "18:00",
		CheckoutStart: "17:00", CheckoutEnd: "18:30",
		ScanCooldown: &cooldown, ReaderID: "LOBBY",
	}
	w := s.do(t, http.MethodPut, "/v1/config", overlapping)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	values, err := s.store.ConfigValues(context.Background())
	require.NoError(t, err)
	assert.Empty(t, values, "rejected policy is not stored")
	assert.Empty(t, s.control.sent)
}

func TestConfig_UpdateWithIngestorDown(t *testing.T) {
	s := newTestServer(t)
	s.control.err = nats.ErrNoResponders
	cooldown := 5
	w := s.do(t, http.MethodPut, "/v1/config", dto.PolicyConfig{
		CheckinStart: "08:00", CheckinEnd: "09:00",
		CheckoutStart: "17:00", CheckoutEnd: "18:00",
		ScanCooldown: &cooldown, ReaderID: "LOBBY",
	})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[dto.PolicyConfigResponse](t, w)
	assert.False(t, got.Reloaded)
	assert.NotEmpty(t, got.Message)
}

package handlers

import (
	"context"
	"net/http"
	"sync"

	"pvs_monitor/internal/models"
	"pvs_monitor/internal/poller"
	"pvs_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockMonitoring struct {
	snap       models.Snapshot
	devices    []service.DeviceView
	devicesErr error
	device     service.DeviceView
	deviceErr  error
	capability models.Capability
	capErr     error

	lastType   string
	lastSerial string
}

func (m *mockMonitoring) Devices(_ context.Context, deviceType string) ([]service.DeviceView, error) {
	m.lastType = deviceType
	return m.devices, m.devicesErr
}
func (m *mockMonitoring) Device(_ context.Context, serial string) (service.DeviceView, error) {
	m.lastSerial = serial
	return m.device, m.deviceErr
}
func (m *mockMonitoring) Capability() (models.Capability, error) { return m.capability, m.capErr }
func (m *mockMonitoring) Snapshot() models.Snapshot              { return m.snap }

type mockPolling struct {
	mu       sync.Mutex
	snap     models.Snapshot
	err      error
	status   poller.Status
	triggers int
	subs     []chan models.Snapshot
}

func (m *mockPolling) Trigger(context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers++
	return m.snap, m.err
}
func (m *mockPolling) Status() poller.Status { return m.status }
func (m *mockPolling) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch, func() {}
}

// push notifies every subscriber as a finished poll would.
func (m *mockPolling) push(s models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (m *mockPolling) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

type mockEventLog struct {
	resp []models.PollEvent
	err  error
	last service.LogFilter
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.PollEvent, error) {
	m.last = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"mount_modeling/internal/imaging"
	"mount_modeling/internal/models"
	"mount_modeling/internal/service"

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

type mockModeling struct {
	mu sync.Mutex

	startRun  models.ModelRun
	startErr  error
	lastStart service.RunRequest
	batchErr  error
	lastBatch string
	cancelErr error
	cancels   int

	progress models.Progress
	lines    []string

	runs    []models.ModelRun
	listErr error
	getErr  error
	lastGet string

	points    []models.TargetPoint
	pointsErr error
	saved     []models.TargetPoint
	saveErr   error
}

func (m *mockModeling) Start(_ context.Context, req service.RunRequest) (models.ModelRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastStart = req
	return m.startRun, m.startErr
}
func (m *mockModeling) RunBatch(_ context.Context, path string) (models.ModelRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBatch = path
	return m.startRun, m.batchErr
}
func (m *mockModeling) Cancel(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	return m.cancelErr
}
func (m *mockModeling) Progress() models.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}
func (m *mockModeling) ModelLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}
func (m *mockModeling) ListRuns(context.Context, int) ([]models.ModelRun, error) {
	return m.runs, m.listErr
}
func (m *mockModeling) GetRun(_ context.Context, id string) (models.ModelRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastGet = id
	return m.startRun, m.getErr
}
func (m *mockModeling) TargetPoints(context.Context) ([]models.TargetPoint, error) {
	return m.points, m.pointsErr
}
func (m *mockModeling) SaveTargetPoints(_ context.Context, points []models.TargetPoint) error {
	m.saved = points
	return m.saveErr
}

func (m *mockModeling) addLine(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

type mockMonitoring struct {
	status    models.MountStatus
	err       error
	alignment models.AlignmentModel
	imaging   imaging.DeviceStatus
	imgErr    error
}

func (m *mockMonitoring) GetStatus(context.Context) (models.MountStatus, error) {
	return m.status, m.err
}
func (m *mockMonitoring) GetAlignment(context.Context) (models.AlignmentModel, error) {
	return m.alignment, m.err
}
func (m *mockMonitoring) ImagingStatus(context.Context) (imaging.DeviceStatus, error) {
	return m.imaging, m.imgErr
}

type mockAlignment struct {
	err     error
	deleted []int
	loaded  []string
}

func (m *mockAlignment) DeletePoint(_ context.Context, index int) error {
	m.deleted = append(m.deleted, index)
	return m.err
}

func (m *mockAlignment) LoadModel(_ context.Context, name string) error {
	m.loaded = append(m.loaded, name)
	return m.err
}

type mockEventLog struct {
	resp     []models.ModelEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.ModelEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
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

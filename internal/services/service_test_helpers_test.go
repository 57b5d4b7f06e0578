package services

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/database/testutil"
	"github.com/charlesng35/blotter/internal/models"
	"github.com/charlesng35/blotter/internal/ratelimit"
	"github.com/charlesng35/blotter/pkg/mail"
)

const (
	testOfficerID = "officer-1"
	testPIN       = "482913"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

var pdfHeader = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func seedCase(t *testing.T, db *gorm.DB, status string) *models.BlotterCase {
	t.Helper()
	c := models.BlotterCase{
		CaseNumber:   "BLT-" + uuid.NewString()[:8],
		Title:        "Noise complaint",
		Status:       status,
		IncidentDate: time.Date(2025, 5, 30, 22, 0, 0, 0, time.UTC),
		CreatedBy:    testOfficerID,
	}
	require.NoError(t, db.Create(&c).Error)
	return &c
}

type linkFixture func(*models.GuestLink)

func linkExpiresAt(at time.Time) linkFixture {
	return func(l *models.GuestLink) { l.ExpiresAt = at }
}

func linkInactive() linkFixture {
	return func(l *models.GuestLink) { l.IsActive = false }
}

func seedLink(t *testing.T, db *gorm.DB, clock *testClock, caseID string, opts ...linkFixture) *models.GuestLink {
	t.Helper()
	link := models.GuestLink{
		Token:     "tok_" + uuid.NewString(),
		PIN:       testPIN,
		CaseID:    caseID,
		CreatedBy: testOfficerID,
		ExpiresAt: clock.Now().Add(72 * time.Hour),
		IsActive:  true,
	}
	for _, opt := range opts {
		opt(&link)
	}
	require.NoError(t, db.Create(&link).Error)
	if !link.IsActive {
		require.NoError(t, db.Model(&link).Update("is_active", false).Error)
	}
	return &link
}

func newAccessService(t *testing.T, db *gorm.DB, clock *testClock, points int) *GuestAccessService {
	t.Helper()
	limiter := ratelimit.NewMemoryLimiter(
		ratelimit.Config{Points: points, Duration: 10 * time.Minute},
		ratelimit.WithMemoryClock(clock.Now),
	)
	svc, err := NewGuestAccessService(db, limiter, WithAccessClock(clock.Now))
	require.NoError(t, err)
	return svc
}

// memoryObjectStore is an ObjectStore double that can be told to fail.
type memoryObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
	puts      int
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (m *memoryObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memoryObjectStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memoryObjectStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.err
}

func pngUpload(size int) UploadInput {
	body := make([]byte, size)
	copy(body, pngHeader)
	return UploadInput{
		FileName:    "photo.png",
		ContentType: "image/png",
		Size:        int64(size),
		Body:        bytes.NewReader(body),
		Description: "front door",
	}
}

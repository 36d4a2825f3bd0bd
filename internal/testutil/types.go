package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common test errors
var (
	ErrTest          = errors.New("test error")
	ErrIntentional   = errors.New("intentional error")
	ErrConstructor   = errors.New("constructor error")
	ErrAlreadyClosed = errors.New("already closed")
)

// TestService is a basic test service with a unique id.
type TestService struct {
	ID        string
	CreatedAt time.Time
}

// NewTestService creates a new test service.
func NewTestService() *TestService {
	return &TestService{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
}

// TestDatabase is a disposable test database.
type TestDatabase struct {
	Name string

	mu     sync.Mutex
	closed bool
}

func NewTestDatabase() *TestDatabase {
	return &TestDatabase{Name: "testdb"}
}

func (d *TestDatabase) Query(sql string) string {
	return fmt.Sprintf("%s: %s", d.Name, sql)
}

// Close implements bundi.Disposable.
func (d *TestDatabase) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrAlreadyClosed
	}
	d.closed = true
	return nil
}

func (d *TestDatabase) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// TestRepository depends on a TestDatabase.
type TestRepository struct {
	DB *TestDatabase
}

func NewTestRepository(db *TestDatabase) *TestRepository {
	return &TestRepository{DB: db}
}

// Recorder collects lifecycle calls in order. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// HookedService records every lifecycle hook it receives.
type HookedService struct {
	Name     string
	Recorder *Recorder
}

func (s *HookedService) OnModuleInit(context.Context) error {
	s.Recorder.Record("%s.OnModuleInit", s.Name)
	return nil
}

func (s *HookedService) OnApplicationBootstrap(context.Context) error {
	s.Recorder.Record("%s.OnApplicationBootstrap", s.Name)
	return nil
}

func (s *HookedService) OnModuleDestroy(context.Context) error {
	s.Recorder.Record("%s.OnModuleDestroy", s.Name)
	return nil
}

func (s *HookedService) BeforeApplicationShutdown(_ context.Context, signal string) error {
	s.Recorder.Record("%s.BeforeApplicationShutdown(%s)", s.Name, signal)
	return nil
}

func (s *HookedService) OnApplicationShutdown(_ context.Context, signal string) error {
	s.Recorder.Record("%s.OnApplicationShutdown(%s)", s.Name, signal)
	return nil
}

func (s *HookedService) Close() error {
	s.Recorder.Record("%s.Close", s.Name)
	return nil
}

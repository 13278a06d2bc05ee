package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/ortho-api/internal/archive"
	"github.com/phrazzld/ortho-api/internal/domain"
	"github.com/phrazzld/ortho-api/internal/platform/memory"
	"github.com/phrazzld/ortho-api/internal/platform/webodm"
	"github.com/phrazzld/ortho-api/internal/store"
)

// MockArchiveStore implements ArchiveStore with overridable behavior and
// records every deleted path.
type MockArchiveStore struct {
	mu      sync.Mutex
	deleted []string

	ExtractFn        func(ctx context.Context, id uuid.UUID, archivePath string) (string, error)
	DiscoverImagesFn func(root string) (archive.ImageSet, error)
}

func NewMockArchiveStore(imageCount int) *MockArchiveStore {
	m := &MockArchiveStore{}
	m.ExtractFn = func(ctx context.Context, id uuid.UUID, archivePath string) (string, error) {
		return m.ScratchDir(id), nil
	}
	m.DiscoverImagesFn = func(root string) (archive.ImageSet, error) {
		set := archive.ImageSet{Dir: root}
		for i := 0; i < imageCount; i++ {
			set.Paths = append(set.Paths, root+"/img.jpg")
		}
		return set, nil
	}
	return m
}

func (m *MockArchiveStore) Extract(ctx context.Context, id uuid.UUID, archivePath string) (string, error) {
	return m.ExtractFn(ctx, id, archivePath)
}

func (m *MockArchiveStore) DiscoverImages(root string) (archive.ImageSet, error) {
	return m.DiscoverImagesFn(root)
}

func (m *MockArchiveStore) OutputPath(id uuid.UUID) string {
	return "outputs/" + id.String() + ".zip"
}

func (m *MockArchiveStore) ScratchDir(id uuid.UUID) string {
	return "temp/" + id.String()
}

func (m *MockArchiveStore) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *MockArchiveStore) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// MockRemoteClient implements RemoteClient. Poll answers are served from a
// script; once it runs out the last answer repeats.
type MockRemoteClient struct {
	mu        sync.Mutex
	polls     []pollAnswer
	pollCount int
	submitted []string

	SubmitFn func(ctx context.Context, images []string, name string) (string, error)
	FetchFn  func(ctx context.Context, remoteID, dest string) error
}

type pollAnswer struct {
	info webodm.TaskInfo
	ok   bool
}

func answer(code int, progress float64) pollAnswer {
	return pollAnswer{info: webodm.TaskInfo{StatusCode: code, Progress: progress}, ok: true}
}

var absent = pollAnswer{}

func NewMockRemoteClient(polls ...pollAnswer) *MockRemoteClient {
	m := &MockRemoteClient{polls: polls}
	m.SubmitFn = func(ctx context.Context, images []string, name string) (string, error) {
		return "remote-1", nil
	}
	m.FetchFn = func(ctx context.Context, remoteID, dest string) error {
		return nil
	}
	return m
}

func (m *MockRemoteClient) Submit(ctx context.Context, images []string, name string) (string, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, name)
	m.mu.Unlock()
	return m.SubmitFn(ctx, images, name)
}

func (m *MockRemoteClient) Poll(ctx context.Context, remoteID string) (webodm.TaskInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.polls) == 0 {
		return webodm.TaskInfo{StatusCode: webodm.StatusRunning}, true
	}
	i := m.pollCount
	if i >= len(m.polls) {
		i = len(m.polls) - 1
	}
	m.pollCount++
	return m.polls[i].info, m.polls[i].ok
}

func (m *MockRemoteClient) Fetch(ctx context.Context, remoteID, dest string) error {
	return m.FetchFn(ctx, remoteID, dest)
}

func (m *MockRemoteClient) PollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollCount
}

// Submitted returns the remote task names in submission order.
func (m *MockRemoteClient) Submitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.submitted...)
}

func (m *MockRemoteClient) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted)
}

// RecordingStore wraps the in-memory registry and keeps every committed
// version of every task.
type RecordingStore struct {
	*memory.TaskStore

	mu      sync.Mutex
	history map[uuid.UUID][]domain.Task
}

func NewRecordingStore() *RecordingStore {
	return &RecordingStore{
		TaskStore: memory.NewTaskStore(),
		history:   make(map[uuid.UUID][]domain.Task),
	}
}

func (s *RecordingStore) Update(ctx context.Context, id uuid.UUID, fn store.TaskMutator) (*domain.Task, error) {
	task, err := s.TaskStore.Update(ctx, id, fn)
	if err == nil {
		s.mu.Lock()
		s.history[id] = append(s.history[id], *task)
		s.mu.Unlock()
	}
	return task, err
}

func (s *RecordingStore) Statuses(id uuid.UUID) []domain.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var statuses []domain.TaskStatus
	for _, task := range s.history[id] {
		if n := len(statuses); n == 0 || statuses[n-1] != task.Status {
			statuses = append(statuses, task.Status)
		}
	}
	return statuses
}

func (s *RecordingStore) Messages(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []string
	for _, task := range s.history[id] {
		messages = append(messages, task.Message)
	}
	return messages
}

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makeasinger/separator/internal/model"
)

// MockSeparator simulates the remote worker for development when no
// SEPARATOR_BASE_URL is configured. Jobs finish after a fixed duration.
type MockSeparator struct {
	mu       sync.Mutex
	jobs     map[string]mockJob
	duration time.Duration
}

type mockJob struct {
	audioURL  string
	startedAt time.Time
}

func NewMockSeparator(duration time.Duration) *MockSeparator {
	return &MockSeparator{
		jobs:     make(map[string]mockJob),
		duration: duration,
	}
}

func (m *MockSeparator) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	id := uuid.New().String()
	m.mu.Lock()
	m.jobs[id] = mockJob{audioURL: req.AudioURL, startedAt: time.Now()}
	m.mu.Unlock()
	return &SubmitResponse{RemoteJobID: id}, nil
}

func (m *MockSeparator) Status(ctx context.Context, remoteJobID string) (*RemoteStatus, error) {
	m.mu.Lock()
	job, ok := m.jobs[remoteJobID]
	m.mu.Unlock()
	if !ok {
		return nil, &APIError{StatusCode: 404, Body: "job not found"}
	}

	elapsed := time.Since(job.startedAt)
	if elapsed < m.duration {
		return &RemoteStatus{
			State:    model.RemoteRunning,
			Progress: int(elapsed * 100 / m.duration),
		}, nil
	}

	return &RemoteStatus{
		State:    model.RemoteSucceeded,
		Progress: 100,
		Outputs: map[string]string{
			"vocals":       fmt.Sprintf("https://cdn.makeasinger.com/separations/%s/vocals.wav", remoteJobID),
			"instrumental": fmt.Sprintf("https://cdn.makeasinger.com/separations/%s/instrumental.wav", remoteJobID),
		},
	}, nil
}

func (m *MockSeparator) Cancel(ctx context.Context, remoteJobID string) error {
	m.mu.Lock()
	delete(m.jobs, remoteJobID)
	m.mu.Unlock()
	return nil
}

package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/makeasinger/separator/internal/client"
	"github.com/makeasinger/separator/internal/model"
)

// inputURLExpiry must outlive queueing, retries and the remote download
const inputURLExpiry = 24 * time.Hour

// JobScheduler is the part of the scheduler the HTTP layer talks to
type JobScheduler interface {
	Submit(ctx context.Context, job *model.Job) (*model.Admission, error)
	GetStatus(ctx context.Context, jobID string) (*model.StatusSnapshot, error)
	Cancel(ctx context.Context, jobID string) (*model.StatusSnapshot, error)
}

// SeparationService turns HTTP requests into scheduler jobs
type SeparationService struct {
	scheduler JobScheduler
	storage   client.InputStorage
}

// NewSeparationService creates the service. A nil storage stores nothing
// and hands out mock CDN URLs, for development.
func NewSeparationService(scheduler JobScheduler, storage client.InputStorage) *SeparationService {
	return &SeparationService{
		scheduler: scheduler,
		storage:   storage,
	}
}

// SubmitURL admits a job for a remote audio URL (NORMAL priority)
func (s *SeparationService) SubmitURL(ctx context.Context, userID string, req *model.SeparateRequest) (*model.Admission, error) {
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	job := &model.Job{
		ID:          jobID,
		UserID:      userID,
		StorageKind: model.StorageURL,
		Payload:     req.URL,
		SizeHint:    req.SizeHint,
		CallbackURL: req.CallbackURL,
	}

	adm, err := s.scheduler.Submit(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to submit job: %w", err)
	}
	return adm, nil
}

// SubmitUpload stores an uploaded file and admits a job for it (HIGH priority)
func (s *SeparationService) SubmitUpload(ctx context.Context, userID, filename, contentType string, file io.Reader, size int64, callbackURL string) (*model.UploadResponse, *model.Admission, error) {
	jobID := uuid.New().String()
	key := fmt.Sprintf("inputs/%s/%s%s", userID, jobID, strings.ToLower(path.Ext(filename)))

	fileURL, err := s.store(ctx, key, file, size, contentType)
	if err != nil {
		return nil, nil, err
	}

	job := &model.Job{
		ID:          jobID,
		UserID:      userID,
		StorageKind: model.StorageUpload,
		Payload:     fileURL,
		SizeHint:    &size,
		CallbackURL: callbackURL,
	}

	adm, err := s.scheduler.Submit(ctx, job)
	if err != nil {
		s.discard(key)
		return nil, nil, fmt.Errorf("failed to submit job: %w", err)
	}
	if !adm.Accepted {
		s.discard(key)
		return nil, adm, nil
	}

	return &model.UploadResponse{
		JobID:     jobID,
		FileURL:   fileURL,
		Size:      size,
		Status:    adm.Snapshot.Status,
		Priority:  job.Priority,
		CreatedAt: adm.Snapshot.UpdatedAt,
	}, adm, nil
}

// Status returns the latest snapshot of a job
func (s *SeparationService) Status(ctx context.Context, jobID string) (*model.StatusSnapshot, error) {
	return s.scheduler.GetStatus(ctx, jobID)
}

// Cancel stops a job
func (s *SeparationService) Cancel(ctx context.Context, jobID string) (*model.CancelResponse, error) {
	snap, err := s.scheduler.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.CancelResponse{
		Success: snap.Status == model.JobStatusCancelled,
		JobID:   jobID,
		Status:  snap.Status,
	}, nil
}

func (s *SeparationService) store(ctx context.Context, key string, file io.Reader, size int64, contentType string) (string, error) {
	if s.storage == nil {
		return fmt.Sprintf("https://cdn.makeasinger.com/%s", key), nil
	}

	if err := s.storage.Put(ctx, key, file, size, contentType); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	url, err := s.storage.PresignGet(ctx, key, inputURLExpiry)
	if err != nil {
		s.discard(key)
		return "", fmt.Errorf("failed to sign upload URL: %w", err)
	}
	return url, nil
}

// discard removes an input that no job will read
func (s *SeparationService) discard(key string) {
	if s.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.storage.Delete(ctx, key); err != nil {
		log.Printf("[Separation] failed to delete %s: %v", key, err)
	}
}

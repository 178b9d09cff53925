package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/makeasinger/separator/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func waitSubscribers(t *testing.T, h *Hub, jobID string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.Subscribers(jobID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers for %s, got %d", want, jobID, h.Subscribers(jobID))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_OnStatusReachesSubscribers(t *testing.T) {
	h := startHub(t)
	client := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	other := &Client{JobID: "job-2", Send: make(chan []byte, 4)}
	h.Register(client)
	h.Register(other)
	waitSubscribers(t, h, "job-1", 1)

	h.OnStatus(context.Background(), &model.StatusSnapshot{JobID: "job-1", Status: model.JobStatusProcessing, Progress: 30}, nil)

	select {
	case data := <-client.Send:
		var msg model.WSStatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != model.WSMessageTypeStatus || msg.Snapshot.Status != model.JobStatusProcessing || msg.Snapshot.Progress != 30 {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a status message")
	}

	select {
	case <-other.Send:
		t.Error("subscriber of another job must not receive the update")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	h := startHub(t)
	client := &Client{JobID: "job-1", Send: make(chan []byte, 1)}
	h.Register(client)
	waitSubscribers(t, h, "job-1", 1)

	h.Unregister(client)
	waitSubscribers(t, h, "job-1", 0)

	if _, ok := <-client.Send; ok {
		t.Error("expected the send channel to be closed")
	}
}

func TestHub_OnStatusWithoutSubscribersIsNoop(t *testing.T) {
	h := NewHub()
	// hub loop not running: a send would block forever if it were attempted
	h.OnStatus(context.Background(), &model.StatusSnapshot{JobID: "job-1"}, nil)
	if len(h.broadcast) != 0 {
		t.Errorf("expected nothing queued, got %d", len(h.broadcast))
	}
}

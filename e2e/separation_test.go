package e2e

import (
	"net/http"
	"testing"

	"github.com/makeasinger/separator/internal/model"
)

const validSeparateBody = `{"url": "https://example.com/song.mp3"}`

func submitJob(t *testing.T, ta *testApp, userID, body string) map[string]interface{} {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, userID, http.MethodPost, "/api/separate", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	return parseJSON(t, resp)
}

func getStatus(t *testing.T, ta *testApp, jobID string) map[string]interface{} {
	t.Helper()
	resp, err := doRequest(ta.app, http.MethodGet, "/api/separate/status/"+jobID, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	return parseJSON(t, resp)
}

func TestSeparate_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/separate", validSeparateBody, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != string(model.JobStatusQueued) {
		t.Errorf("expected status QUEUED, got %v", result["status"])
	}
	if result["priority"] != string(model.PriorityNormal) {
		t.Errorf("expected priority normal, got %v", result["priority"])
	}
	if result["position"] != float64(1) {
		t.Errorf("expected position 1, got %v", result["position"])
	}
}

func TestSeparate_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/separate", `{"url": "not a url"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, parseJSON(t, resp)); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestSeparate_InvalidToken(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/separate", validSeparateBody, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestSeparate_DuplicateJobID(t *testing.T) {
	ta := setupApp(t)

	body := `{"jobId": "job-dup", "url": "https://example.com/song.mp3"}`
	first := submitJob(t, ta, "user-1", body)
	if first["jobId"] != "job-dup" {
		t.Fatalf("expected caller-supplied id, got %v", first["jobId"])
	}

	resp, err := doAuthRequest(t, ta.app, "user-1", http.MethodPost, "/api/separate", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, parseJSON(t, resp)); code != "INVALID_JOB" {
		t.Errorf("expected INVALID_JOB, got %s", code)
	}

	// the original job is untouched
	status := getStatus(t, ta, "job-dup")
	if status["status"] != string(model.JobStatusQueued) {
		t.Errorf("expected original job to stay QUEUED, got %v", status["status"])
	}
}

func TestSeparate_FinishedJobIDNotReused(t *testing.T) {
	ta := setupApp(t)

	body := `{"jobId": "job-done", "url": "https://example.com/song.mp3"}`
	submitJob(t, ta, "user-1", body)
	ta.dispatch(model.PriorityNormal)
	ta.monitor()

	resp, err := doAuthRequest(t, ta.app, "user-2", http.MethodPost, "/api/separate", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, parseJSON(t, resp)); code != "INVALID_JOB" {
		t.Errorf("expected INVALID_JOB, got %s", code)
	}

	status := getStatus(t, ta, "job-done")
	if status["status"] != string(model.JobStatusComplete) {
		t.Errorf("expected the job to stay COMPLETE, got %v", status["status"])
	}
}

func TestSeparate_UserConcurrentCap(t *testing.T) {
	ta := setupApp(t)

	submitJob(t, ta, "user-cap", validSeparateBody)
	submitJob(t, ta, "user-cap", validSeparateBody)

	resp, err := doAuthRequest(t, ta.app, "user-cap", http.MethodPost, "/api/separate", validSeparateBody)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusTooManyRequests)

	body := parseJSON(t, resp)
	if code := errorCode(t, body); code != "RATE_LIMITED" {
		t.Errorf("expected RATE_LIMITED, got %s", code)
	}
	details, ok := body["error"].(map[string]interface{})["details"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected quota details, got %v", body)
	}
	if details["concurrent"] != float64(2) {
		t.Errorf("expected concurrent 2, got %v", details["concurrent"])
	}

	// another user is not affected
	submitJob(t, ta, "user-other", validSeparateBody)
}

func TestStatus_Lifecycle(t *testing.T) {
	ta := setupApp(t)

	jobID := submitJob(t, ta, "user-1", validSeparateBody)["jobId"].(string)

	ta.dispatch(model.PriorityNormal)
	status := getStatus(t, ta, jobID)
	if status["status"] != string(model.JobStatusProcessing) {
		t.Fatalf("expected PROCESSING after dispatch, got %v", status["status"])
	}
	if status["startedAt"] == nil {
		t.Error("expected startedAt to be set")
	}

	ta.monitor()
	status = getStatus(t, ta, jobID)
	if status["status"] != string(model.JobStatusComplete) {
		t.Fatalf("expected COMPLETE after monitor sweep, got %v", status["status"])
	}
	if status["progress"] != float64(100) {
		t.Errorf("expected progress 100, got %v", status["progress"])
	}
	outputs, ok := status["outputs"].(map[string]interface{})
	if !ok || outputs["vocals"] == nil {
		t.Errorf("expected vocals output, got %v", status["outputs"])
	}
}

func TestStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/separate/status/nope", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestCancel_Queued(t *testing.T) {
	ta := setupApp(t)

	jobID := submitJob(t, ta, "user-1", validSeparateBody)["jobId"].(string)

	resp, err := doAuthRequest(t, ta.app, "user-1", http.MethodPost, "/api/separate/cancel/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["success"] != true {
		t.Errorf("expected success true, got %v", result["success"])
	}
	if result["status"] != string(model.JobStatusCancelled) {
		t.Errorf("expected status CANCELLED, got %v", result["status"])
	}

	// nothing left to dispatch
	ta.dispatch(model.PriorityNormal)
	if ta.sched.IsProcessing(jobID) {
		t.Error("cancelled job must not be dispatched")
	}

	resp, err = doAuthRequest(t, ta.app, "user-1", http.MethodPost, "/api/separate/cancel/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestCancel_Processing(t *testing.T) {
	ta := setupApp(t)

	jobID := submitJob(t, ta, "user-1", validSeparateBody)["jobId"].(string)
	ta.dispatch(model.PriorityNormal)

	resp, err := doAuthRequest(t, ta.app, "user-1", http.MethodPost, "/api/separate/cancel/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	status := getStatus(t, ta, jobID)
	if status["status"] != string(model.JobStatusCancelled) {
		t.Errorf("expected CANCELLED, got %v", status["status"])
	}
	if ta.sched.IsProcessing(jobID) {
		t.Error("cancelled job still in the processing set")
	}
}

func TestCancel_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/separate/cancel/nope", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestUpload_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(t, ta.app, "take.mp3", "audio/mpeg", []byte("fake audio"), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["priority"] != string(model.PriorityHigh) {
		t.Errorf("expected priority high, got %v", result["priority"])
	}
	if result["status"] != string(model.JobStatusQueued) {
		t.Errorf("expected status QUEUED, got %v", result["status"])
	}
	if result["fileUrl"] == nil || result["fileUrl"] == "" {
		t.Error("expected 'fileUrl' in response")
	}
	if result["size"] != float64(len("fake audio")) {
		t.Errorf("expected size %d, got %v", len("fake audio"), result["size"])
	}
}

func TestUpload_InvalidType(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(t, ta.app, "notes.txt", "text/plain", []byte("hello"), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestUpload_NoFile(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(t, ta.app, "", "", nil, map[string]string{"callbackUrl": "https://example.com/hook"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestUpload_InvalidCallback(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(t, ta.app, "take.wav", "audio/wav", []byte("fake audio"), map[string]string{"callbackUrl": "nope"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

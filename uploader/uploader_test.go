package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCapture(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "14-30.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testJob(path string) Job {
	return Job{
		FilePath:   path,
		UserID:     "user-1",
		DeviceID:   "device-1",
		RecordedAt: time.Date(2025, 7, 7, 14, 30, 0, 0, time.UTC),
		Timezone:   time.FixedZone("JST", 9*3600),
	}
}

func TestUploadSuccess(t *testing.T) {
	var gotPath, gotContentType string
	var gotMeta struct {
		DeviceID   string `json:"device_id"`
		RecordedAt string `json:"recorded_at"`
	}
	var gotUserID, gotDeviceID, gotFileType string
	var gotFile []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		json.Unmarshal([]byte(r.FormValue("metadata")), &gotMeta)
		gotUserID = r.FormValue("user_id")
		gotDeviceID = r.FormValue("device_id")
		file, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			gotFileType = hdr.Header.Get("Content-Type")
			gotFile, _ = io.ReadAll(file)
			file.Close()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := writeCapture(t, []byte("RIFFdata"))
	res, err := New(srv.URL).Upload(context.Background(), testJob(path))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Metrics == nil {
		t.Error("Result.Metrics = nil")
	}

	if gotPath != "/upload" {
		t.Errorf("path = %q, want /upload", gotPath)
	}
	if gotContentType == "" || gotContentType[:19] != "multipart/form-data" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotMeta.DeviceID != "device-1" {
		t.Errorf("metadata device_id = %q", gotMeta.DeviceID)
	}
	if gotMeta.RecordedAt != "2025-07-07T23:30:00.000+09:00" {
		t.Errorf("metadata recorded_at = %q", gotMeta.RecordedAt)
	}
	if gotUserID != "user-1" || gotDeviceID != "device-1" {
		t.Errorf("user_id = %q, device_id = %q", gotUserID, gotDeviceID)
	}
	if gotFileType != "audio/wav" {
		t.Errorf("file content type = %q, want audio/wav", gotFileType)
	}
	if string(gotFile) != "RIFFdata" {
		t.Errorf("file body = %q", gotFile)
	}
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"detail":"slot already ingested"}`)
	}))
	defer srv.Close()

	path := writeCapture(t, []byte("x"))
	_, err := New(srv.URL).Upload(context.Background(), testJob(path))

	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if ue.Kind != KindServer || ue.Status != http.StatusConflict {
		t.Errorf("Kind = %v, Status = %d", ue.Kind, ue.Status)
	}
	if ue.Detail != "slot already ingested" {
		t.Errorf("Detail = %q", ue.Detail)
	}
	if ue.Message() != "slot already ingested" {
		t.Errorf("Message() = %q", ue.Message())
	}
}

func TestUploadServerErrorNoDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	}))
	defer srv.Close()

	path := writeCapture(t, []byte("x"))
	_, err := New(srv.URL).Upload(context.Background(), testJob(path))

	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if ue.Detail != "" {
		t.Errorf("Detail = %q, want empty for non-JSON body", ue.Detail)
	}
	if ue.Message() != "server error (HTTP 500)" {
		t.Errorf("Message() = %q", ue.Message())
	}
}

func TestUploadMissingFile(t *testing.T) {
	_, err := New("http://unused").Upload(context.Background(),
		testJob(filepath.Join(t.TempDir(), "gone.wav")))
	var ue *Error
	if !errors.As(err, &ue) || ue.Kind != KindFile {
		t.Fatalf("error = %v, want KindFile", err)
	}
}

func TestUploadEmptyFile(t *testing.T) {
	path := writeCapture(t, nil)
	_, err := New("http://unused").Upload(context.Background(), testJob(path))
	var ue *Error
	if !errors.As(err, &ue) || ue.Kind != KindFile {
		t.Fatalf("error = %v, want KindFile", err)
	}
}

func TestUploadNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	path := writeCapture(t, []byte("x"))
	_, err := New(srv.URL).Upload(context.Background(), testJob(path))
	var ue *Error
	if !errors.As(err, &ue) || ue.Kind != KindNetwork {
		t.Fatalf("error = %v, want KindNetwork", err)
	}
}

func TestUploadProgressMilestone(t *testing.T) {
	reached := false
	var milestones []float64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := writeCapture(t, []byte("RIFFdata"))
	job := testJob(path)
	job.Progress = func(f float64) {
		if reached {
			t.Error("progress milestone after the request was sent")
		}
		milestones = append(milestones, f)
	}
	if _, err := New(srv.URL).Upload(context.Background(), job); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(milestones) != 1 || milestones[0] != 0.5 {
		t.Errorf("milestones = %v, want [0.5]", milestones)
	}
}

func TestUploadProgressSkippedOnValidationFailure(t *testing.T) {
	job := testJob(filepath.Join(t.TempDir(), "gone.wav"))
	job.Progress = func(float64) { t.Error("progress fired for an unbuildable payload") }
	if _, err := New("http://unused").Upload(context.Background(), job); err == nil {
		t.Fatal("Upload: err = nil")
	}
}

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

// Package uploader performs single-attempt multipart uploads of capture
// files to the ingestion endpoint. It is stateless: one job in, one typed
// result out, no retries and no knowledge of queues or session state.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"
)

// One attempt per call; generous because the operation is network-bound
// and half-hour WAV slots are large on slow links.
const uploadTimeout = 2 * time.Minute

// Job carries everything one attempt needs. It is built fresh per attempt
// from current session context so a stale job never outlives its account
// or device identity.
type Job struct {
	FilePath   string
	UserID     string
	DeviceID   string
	RecordedAt time.Time
	Timezone   *time.Location

	// Progress, when set, is called with 0.5 once the multipart payload
	// has been assembled, before the request goes out.
	Progress func(fraction float64)
}

// Result of a successful attempt.
type Result struct {
	Metrics *NetworkMetrics
}

// Uploader is the single-operation interface the controller consumes;
// Fake substitutes it in tests.
type Uploader interface {
	Upload(ctx context.Context, job Job) (*Result, error)
}

// Client uploads to POST <base>/upload.
type Client struct {
	baseURL string
	client  *TracedClient
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  NewTracedClient(uploadTimeout),
	}
}

// Warm pre-establishes the TLS connection so the first upload of a
// session does not pay the handshake. Best effort.
func (c *Client) Warm() time.Duration {
	return c.client.WarmConnection(c.baseURL + "/upload")
}

type metadata struct {
	DeviceID   string `json:"device_id"`
	RecordedAt string `json:"recorded_at"`
}

// Upload validates the source file, performs exactly one HTTP attempt and
// maps the outcome onto the error taxonomy. Success is any 2xx status.
func (c *Client) Upload(ctx context.Context, job Job) (*Result, error) {
	fi, err := os.Stat(job.FilePath)
	if err != nil {
		return nil, &Error{Kind: KindFile, Err: fmt.Errorf("capture file missing: %w", err)}
	}
	if fi.Size() == 0 {
		return nil, &Error{Kind: KindFile, Err: fmt.Errorf("capture file %s is empty", job.FilePath)}
	}

	body, contentType, err := c.multipartBody(job)
	if err != nil {
		return nil, &Error{Kind: KindFile, Err: err}
	}
	if job.Progress != nil {
		job.Progress(0.5)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:   KindServer,
			Status: resp.StatusCode,
			Detail: extractDetail(resp.Body),
		}
	}
	return &Result{Metrics: resp.Metrics}, nil
}

// multipartBody builds the fixed part set: a JSON metadata blob, plain
// user_id and device_id fields, and the audio file. recorded_at is
// rendered in the device's timezone, not the host's.
func (c *Client) multipartBody(job Job) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	tz := job.Timezone
	if tz == nil {
		tz = time.Local
	}
	meta, err := json.Marshal(metadata{
		DeviceID:   job.DeviceID,
		RecordedAt: job.RecordedAt.In(tz).Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return nil, "", err
	}

	metaHdr := textproto.MIMEHeader{}
	metaHdr.Set("Content-Disposition", `form-data; name="metadata"`)
	metaHdr.Set("Content-Type", "application/json")
	part, err := w.CreatePart(metaHdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(meta); err != nil {
		return nil, "", err
	}

	w.WriteField("user_id", job.UserID)
	w.WriteField("device_id", job.DeviceID)

	fileHdr := textproto.MIMEHeader{}
	fileHdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(job.FilePath)))
	fileHdr.Set("Content-Type", "audio/wav")
	filePart, err := w.CreatePart(fileHdr)
	if err != nil {
		return nil, "", err
	}
	audio, err := os.ReadFile(job.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("reading capture file: %w", err)
	}
	if _, err := filePart.Write(audio); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// extractDetail pulls the human-readable "detail" field from a JSON error
// body, if any.
func extractDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}

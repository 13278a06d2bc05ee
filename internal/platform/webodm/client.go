package webodm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/phrazzld/ortho-api/internal/config"
	"github.com/phrazzld/ortho-api/internal/redact"
)

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// Client talks to the remote photogrammetry service.
type Client struct {
	// logger is used for structured logging
	logger *slog.Logger

	host    *url.URL
	token   string
	options []option

	// transfer is used for uploads and downloads, api for short status calls
	transfer *http.Client
	api      *http.Client
}

// NewClient creates a Client from the remote configuration.
func NewClient(cfg config.RemoteConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	host, err := url.Parse(strings.TrimRight(cfg.Host, "/"))
	if err != nil || host.Scheme == "" || host.Host == "" {
		return nil, fmt.Errorf("%w: host %q is not an absolute URL", ErrInvalidConfig, cfg.Host)
	}
	if cfg.OrthophotoResolution <= 0 {
		return nil, fmt.Errorf("%w: orthophoto resolution must be positive", ErrInvalidConfig)
	}

	return &Client{
		logger: logger.With("component", "webodm_client"),
		host:   host,
		token:  cfg.Token,
		options: []option{
			{Name: "orthophoto-resolution", Value: cfg.OrthophotoResolution},
			{Name: "dsm", Value: true},
			{Name: "dtm", Value: true},
		},
		transfer: &http.Client{Timeout: cfg.SubmitTimeout},
		api:      &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// endpoint builds an absolute URL below the host with the token attached.
func (c *Client) endpoint(segments ...string) string {
	u := c.host.JoinPath(segments...)
	q := url.Values{}
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Submit uploads images as a new remote task named name and returns the
// remote task ID. There is no retry.
func (c *Client) Submit(ctx context.Context, images []string, name string) (string, error) {
	optionsJSON, err := json.Marshal(c.options)
	if err != nil {
		return "", &SubmitError{Reason: "Error: invalid processing options", Err: err}
	}

	pr, pw := io.Pipe()
	defer func() { _ = pr.Close() }()
	mw := multipart.NewWriter(pw)

	// The body is produced while the request is being sent, so large image sets
	// are never held in memory.
	go func() {
		_ = pw.CloseWithError(writeSubmitBody(mw, images, name, string(optionsJSON)))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("task", "new"), pr)
	if err != nil {
		return "", &SubmitError{Reason: "Error: " + redact.Error(err), Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Info("submitting images", "count", len(images), "name", name)

	resp, err := c.transfer.Do(req)
	if err != nil {
		safe := redact.Error(err)
		c.logger.Error("submit request failed", "error", safe)
		return "", &SubmitError{Reason: safe, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		c.logger.Warn("submit rejected", "status_code", resp.StatusCode)
		return "", &SubmitError{StatusCode: resp.StatusCode}
	}

	var body newTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &SubmitError{
			StatusCode: resp.StatusCode,
			Reason:     "Error: invalid response from remote service",
			Err:        err,
		}
	}
	if body.UUID == "" {
		reason := "Error: remote service returned no task id"
		if body.Error != "" {
			reason = "Error: " + redact.String(body.Error)
		}
		return "", &SubmitError{StatusCode: resp.StatusCode, Reason: reason}
	}

	c.logger.Info("remote task created", "remote_task_id", body.UUID)
	return body.UUID, nil
}

func writeSubmitBody(mw *multipart.Writer, images []string, name, options string) error {
	for _, path := range images {
		if err := writeImagePart(mw, path); err != nil {
			return err
		}
	}
	if err := mw.WriteField("name", name); err != nil {
		return err
	}
	if err := mw.WriteField("options", options); err != nil {
		return err
	}
	return mw.Close()
}

func writeImagePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	contentType, ok := imageContentTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Poll reads the status of a remote task. The boolean is false when no usable
// answer was obtained; callers treat that as "try again later".
func (c *Client) Poll(ctx context.Context, remoteID string) (TaskInfo, bool) {
	log := c.logger.With("remote_task_id", remoteID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("task", remoteID, "info"), nil)
	if err != nil {
		log.Warn("failed to build status request", "error", redact.Error(err))
		return TaskInfo{}, false
	}

	resp, err := c.api.Do(req)
	if err != nil {
		log.Warn("status request failed", "error", redact.Error(err))
		return TaskInfo{}, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Warn("status request rejected", "status_code", resp.StatusCode)
		return TaskInfo{}, false
	}

	var body taskInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Warn("invalid status response", "error", err)
		return TaskInfo{}, false
	}

	return TaskInfo{StatusCode: body.Status.Code, Progress: body.Progress}, true
}

// Fetch downloads the results archive of a remote task to dest. The file is
// written under a temporary name and renamed into place, so dest either holds
// the complete archive or does not exist.
func (c *Client) Fetch(ctx context.Context, remoteID, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint("task", remoteID, "download", "all.zip"), nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFetchFailed, redact.Error(err))
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		safe := redact.Error(err)
		c.logger.Error("download request failed", "remote_task_id", remoteID, "error", safe)
		return fmt.Errorf("%w: %s", ErrFetchFailed, safe)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("download rejected", "remote_task_id", remoteID, "status_code", resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, dest)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		c.logger.Error("download write failed", "remote_task_id", remoteID, "error", redact.Error(err))
		return fmt.Errorf("%w: %s", ErrFetchFailed, redact.Error(err))
	}

	c.logger.Info("results downloaded", "remote_task_id", remoteID, "bytes", written)
	return nil
}

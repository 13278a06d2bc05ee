package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/ortho-api/internal/api"
	"github.com/phrazzld/ortho-api/internal/api/shared"
	"github.com/phrazzld/ortho-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const remoteID = "5a1b7c3e-remote"

// fakeWebODM answers the three remote endpoints the pipeline uses. The task
// reports running on the first status query and completed afterwards.
func fakeWebODM(t *testing.T) *httptest.Server {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /task/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-token", r.URL.Query().Get("token"))
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Len(t, r.MultipartForm.File["images"], 2)
		_ = json.NewEncoder(w).Encode(map[string]string{"uuid": remoteID})
	})
	mux.HandleFunc("GET /task/"+remoteID+"/info", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":{"code":20},"progress":42.5}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":{"code":40},"progress":100}`))
	})
	mux.HandleFunc("GET /task/"+remoteID+"/download/all.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ortho-result"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, remoteHost string) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Port:            0,
			LogLevel:        "debug",
			MaxUploadBytes:  1 << 20,
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: config.StorageConfig{
			UploadDir:  filepath.Join(base, "uploads"),
			OutputDir:  filepath.Join(base, "outputs"),
			ScratchDir: filepath.Join(base, "temp"),
			UnrarPath:  "unrar",
		},
		Remote: config.RemoteConfig{
			Host:                 remoteHost,
			Token:                "secret-token",
			OrthophotoResolution: 5,
			SubmitTimeout:        5 * time.Second,
			RequestTimeout:       5 * time.Second,
		},
		Task: config.TaskConfig{
			PollInterval: 10 * time.Millisecond,
		},
	}
}

func newTestApp(t *testing.T) *application {
	t.Helper()
	cfg := testConfig(t, fakeWebODM(t).URL)
	app, err := newApplication(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(app.cleanup)
	return app
}

func zipOfImages(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"flight/IMG_0001.JPG": "jpeg-1",
		"flight/IMG_0002.jpg": "jpeg-2",
		"flight/notes.txt":    "not an image",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEndToEndOrthomosaic(t *testing.T) {
	app := newTestApp(t)
	router := app.setupRouter()

	rec := do(router, uploadRequest(t, "flight.zip", zipOfImages(t)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var upload api.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))
	assert.Equal(t, "queued", upload.Status)

	var status api.StatusResponse
	require.Eventually(t, func() bool {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/status/"+upload.TaskID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		status = api.StatusResponse{}
		_ = json.Unmarshal(rec.Body.Bytes(), &status)
		return status.Status == "completed" || status.Status == "failed"
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, "completed", status.Status, status.Message)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, "Complete!", status.Message)
	assert.Equal(t, "/download/"+upload.TaskID, status.DownloadURL)

	rec = do(router, httptest.NewRequest(http.MethodGet, status.DownloadURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ortho-result", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "orthomosaic_"+upload.TaskID+".zip")

	// The upload and the extracted images are gone once the pipeline ends
	require.Eventually(t, func() bool { return app.taskManager.Running() == 0 }, 2*time.Second, 10*time.Millisecond)
	uploads, err := os.ReadDir(app.config.Storage.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, uploads)
	_, err = os.Stat(filepath.Join(app.config.Storage.ScratchDir, upload.TaskID))
	assert.True(t, os.IsNotExist(err))

	rec = do(router, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list api.TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	rec = do(router, httptest.NewRequest(http.MethodDelete, "/task/"+upload.TaskID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = os.Stat(filepath.Join(app.config.Storage.OutputDir, upload.TaskID+".zip"))
	assert.True(t, os.IsNotExist(err), "result archive is removed with the task")

	rec = do(router, httptest.NewRequest(http.MethodGet, "/download/"+upload.TaskID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var downloadErr shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &downloadErr))
	assert.Equal(t, "Task not found", downloadErr.Error)

	rec = do(router, httptest.NewRequest(http.MethodGet, "/status/"+upload.TaskID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadWithoutImagesFails(t *testing.T) {
	app := newTestApp(t)
	router := app.setupRouter()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("nothing to see"))
	require.NoError(t, zw.Close())

	rec := do(router, uploadRequest(t, "empty.zip", buf.Bytes()))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var upload api.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))

	require.Eventually(t, func() bool {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/status/"+upload.TaskID, nil))
		var status api.StatusResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &status)
		return status.Status == "failed" && status.Message == "No images found"
	}, 5*time.Second, 10*time.Millisecond)

	rec = do(router, httptest.NewRequest(http.MethodGet, "/download/"+upload.TaskID, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter(t *testing.T) {
	app := newTestApp(t)
	router := app.setupRouter()

	t.Run("health", func(t *testing.T) {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("service info", func(t *testing.T) {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"name":"WebODM Orthomosaic API","version":"1.0.0","docs":"/docs"}`, rec.Body.String())
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
		req.Header.Set("Origin", "https://viewer.example.org")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := do(router, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.MethodPost, rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("trace id on errors", func(t *testing.T) {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/status/not-a-task", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		traceID := rec.Header().Get(shared.TraceIDHeader)
		assert.NotEmpty(t, traceID)

		var body shared.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, traceID, body.TraceID)
	})

	t.Run("unsupported archive", func(t *testing.T) {
		rec := do(router, uploadRequest(t, "images.7z", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Only ZIP and RAR files are supported")
	})
}

func TestStartHTTPServerStopsOnContextCancel(t *testing.T) {
	app := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewApplicationRejectsBadRemoteHost(t *testing.T) {
	cfg := testConfig(t, "not a url")
	_, err := newApplication(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

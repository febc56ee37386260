package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// WebDAV uploads and downloads the backup blob against a WebDAV
// collection using plain HTTP PUT/GET with basic auth.
type WebDAV struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

func NewWebDAV(baseURL, username, password string) *WebDAV {
	return &WebDAV{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
	}
}

func (w *WebDAV) Name() string { return "webdav" }

func (w *WebDAV) fileURL() string {
	return w.baseURL + "/" + BackupFilename
}

func (w *WebDAV) do(req *http.Request) (*http.Response, error) {
	if w.username != "" {
		req.SetBasicAuth(w.username, w.password)
	}
	return w.httpClient.Do(req)
}

func (w *WebDAV) Upload(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, w.fileURL(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webdav put: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.do(req)
	if err != nil {
		return fmt.Errorf("webdav put: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webdav put returned %d", resp.StatusCode)
	}
	return nil
}

func (w *WebDAV) Download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.fileURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build webdav get: %w", err)
	}

	resp, err := w.do(req)
	if err != nil {
		return nil, fmt.Errorf("webdav get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoBackup
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webdav get returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read webdav body: %w", err)
	}
	return data, nil
}

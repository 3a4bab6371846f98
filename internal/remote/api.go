package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/stillgrab/stillgrab/internal/domain"
)

const statusSuccess = "success"

// apiBase returns the root of the companion app's HTTP API.
func (c *Client) apiBase() string {
	return c.baseURL + "/index.php/apps/" + c.app + "/api/v1"
}

// doAPI performs an authenticated request and returns the response body.
func (c *Client) doAPI(ctx context.Context, method, reqURL, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.decorate(req)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("api request", "method", method, "url", reqURL)

	resp, err := c.api.Do(req)
	if err != nil {
		c.logger.Error("api request failed", "url", reqURL, "error", err)
		return 0, nil, domain.ErrServerOffline
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, data, domain.ErrAuthFailed
	}
	return resp.StatusCode, data, nil
}

// Exists asks the server whether a thumbnail already exists for one path.
func (c *Client) Exists(ctx context.Context, relPath string) (bool, error) {
	reqURL := c.apiBase() + "/exists?path=" + url.QueryEscape(relPath)
	status, body, err := c.doAPI(ctx, http.MethodGet, reqURL, "", nil)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("exists check: unexpected status code: %d", status)
	}
	var out existsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("exists check: failed to parse response: %w", err)
	}
	return out.Exists, nil
}

// BatchExists asks the server for thumbnail existence of many paths at once.
func (c *Client) BatchExists(ctx context.Context, relPaths []string) (map[string]bool, error) {
	payload, err := json.Marshal(batchExistsRequest{Paths: relPaths})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	status, body, err := c.doAPI(ctx, http.MethodPost, c.apiBase()+"/batch_exists", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("batch exists: failed to parse response: %w", err)
	}
	if status != http.StatusOK || out.Status != statusSuccess {
		return nil, fmt.Errorf("batch exists: server error: %s", out.Message)
	}
	return out.Results, nil
}

// Upload submits a thumbnail for a relative path as a multipart form.
// Any response without an explicit success status is an error.
func (c *Client) Upload(ctx context.Context, relPath, thumbPath string) error {
	f, err := os.Open(thumbPath)
	if err != nil {
		return fmt.Errorf("failed to open thumbnail: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("path", relPath); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	part, err := mw.CreateFormFile("thumbnail", filepath.Base(thumbPath))
	if err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read thumbnail: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}

	status, body, err := c.doAPI(ctx, http.MethodPost, c.apiBase()+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return err
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("upload: failed to parse response: %w", err)
	}
	if status != http.StatusOK || out.Status != statusSuccess {
		return fmt.Errorf("%w: %s", domain.ErrUploadRejected, out.Message)
	}
	return nil
}

// SupportsBatchExists queries the OCS capabilities document once at startup.
// Any failure, including a malformed body, disables batch mode.
func (c *Client) SupportsBatchExists(ctx context.Context) bool {
	reqURL := c.baseURL + "/ocs/v2.php/cloud/capabilities?format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false
	}
	c.decorate(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OCS-APIRequest", "true")

	resp, err := c.api.Do(req)
	if err != nil {
		c.logger.Warn("capabilities query failed, batch mode disabled", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("capabilities query rejected, batch mode disabled", "status", resp.StatusCode)
		return false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}

	var caps ocsCapabilities
	if err := json.Unmarshal(body, &caps); err != nil {
		c.logger.Warn("capabilities response malformed, batch mode disabled", "error", err)
		return false
	}
	app, ok := caps.OCS.Data.Capabilities[c.app]
	if !ok {
		return false
	}
	return app.Features.BatchExists
}

// Package remote speaks to the cloud server: WebDAV listing/stat for the
// file tree, authenticated transfers, and the companion app's thumbnail API.
package remote

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stillgrab/stillgrab/internal/config"
	"github.com/stillgrab/stillgrab/internal/domain"
	"github.com/studio-b12/gowebdav"
)

const (
	apiTimeout   = 30 * time.Second
	secretHeader = "X-Thumbnail-Secret"
	userAgent    = "Stillgrab/1.0"
)

// Client is an authenticated client for one server.
type Client struct {
	baseURL  string
	username string
	password string
	secret   string
	app      string

	dav *gowebdav.Client
	// api has a request timeout; transfer does not, downloads can be long.
	api      *http.Client
	transfer *http.Client
	logger   *slog.Logger
}

// NewClient creates a client from server configuration.
func NewClient(cfg *config.ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.URL, "/")

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
	}

	dav := gowebdav.NewClient(baseURL+davPrefix(cfg.Username), cfg.Username, cfg.Password)
	dav.SetTransport(transport)
	dav.SetTimeout(apiTimeout)
	if cfg.Secret != "" {
		dav.SetHeader(secretHeader, cfg.Secret)
	}

	return &Client{
		baseURL:  baseURL,
		username: cfg.Username,
		password: cfg.Password,
		secret:   cfg.Secret,
		app:      cfg.App,
		dav:      dav,
		api:      &http.Client{Transport: transport, Timeout: apiTimeout},
		transfer: &http.Client{Transport: transport},
		logger:   logger,
	}
}

func davPrefix(username string) string {
	return "/remote.php/dav/files/" + url.PathEscape(username)
}

// Stat fetches the modification marker for one remote path.
func (c *Client) Stat(path string) (domain.Entry, error) {
	fi, err := c.dav.Stat(path)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return domain.Entry{
		Name:     fi.Name(),
		Path:     path,
		Size:     fi.Size(),
		IsDir:    fi.IsDir(),
		Modified: fi.ModTime().UTC().Format(time.RFC3339),
	}, nil
}

// List returns the children of a remote directory.
func (c *Client) List(path string) ([]domain.Entry, error) {
	infos, err := c.dav.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	entries := make([]domain.Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, domain.Entry{
			Name:     fi.Name(),
			Path:     joinPath(path, fi.Name()),
			Size:     fi.Size(),
			IsDir:    fi.IsDir(),
			Modified: fi.ModTime().UTC().Format(time.RFC3339),
		})
	}
	return entries, nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return strings.TrimRight(dir, "/") + "/" + name
}

// FileURL returns the direct authenticated URL for a remote file, suitable
// for handing to ffprobe/ffmpeg together with AuthHeader.
func (c *Client) FileURL(absPath string) string {
	escaped := (&url.URL{Path: davPrefix(c.username) + absPath}).EscapedPath()
	return c.baseURL + escaped
}

// AuthHeader returns the Basic authorization header value for direct access.
func (c *Client) AuthHeader() string {
	creds := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
	return "Basic " + creds
}

// DownloadRange streams up to maxBytes of a remote file into dst. A
// maxBytes of 0 downloads the whole file. One attempt; retrying is the
// caller's policy.
func (c *Client) DownloadRange(absPath string, maxBytes int64, dst io.Writer) error {
	req, err := http.NewRequest(http.MethodGet, c.FileURL(absPath), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.decorate(req)
	if maxBytes > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", maxBytes-1))
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", absPath, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusUnauthorized:
		return domain.ErrAuthFailed
	default:
		return fmt.Errorf("download %s: unexpected status code: %d", absPath, resp.StatusCode)
	}

	// Some servers ignore Range and reply 200 with the whole file; the
	// bound has to be enforced on this side too.
	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes)
	}
	if _, err := io.Copy(dst, body); err != nil {
		return fmt.Errorf("download %s: %w", absPath, err)
	}
	return nil
}

// decorate applies the authentication headers used on every request.
func (c *Client) decorate(req *http.Request) {
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("User-Agent", userAgent)
	if c.secret != "" {
		req.Header.Set(secretHeader, c.secret)
	}
}

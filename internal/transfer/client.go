// Package transfer implements the session client for the WinCloud archive
// server: health probe, authentication, single-shot and chunked upload,
// download, and delete, with bounded retries for transient failures.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	gocache "github.com/patrickmn/go-cache"

	"github.com/wincloud/wincloud/internal/common"
	"github.com/wincloud/wincloud/internal/logging"
)

const (
	defaultAPIVersion = "v1"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultChunkSize  = 5 * 1024 * 1024

	healthTimeout = 5 * time.Second

	tokenCacheKey = "bearer_token"
)

// Config holds transfer client settings. Zero values fall back to defaults.
type Config struct {
	ServerURL  string
	APIVersion string
	Timeout    time.Duration
	MaxRetries int
	ChunkSize  int64
	// DataDir is where the per-install identifier is persisted.
	DataDir string
}

// UploadResult is the server's acknowledgement of a stored cloud blob.
type UploadResult struct {
	ArchiveID string   `json:"archive_id"`
	FileIDs   []string `json:"file_ids"`
}

// uploadSession tracks one chunked upload: the server-assigned id arrives
// with the first chunk acknowledgement and must be echoed on every
// subsequent chunk and on finalize.
type uploadSession struct {
	id        string
	nextIndex int
	totalSize int64
}

// Client talks to the archive server. One Client reuses a single underlying
// connection pool and in-memory token cache for its lifetime.
type Client struct {
	cfg      Config
	http     *retryablehttp.Client
	probe    *http.Client
	tokens   *gocache.Cache
	deviceID string
	log      logging.Logger
}

// New builds a Client. The device identifier is derived once and reused for
// every authentication exchange.
func New(cfg Config, log logging.Logger) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("transfer: server URL is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}

	id, err := deviceID(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("transfer: derive device id: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.CheckRetry = checkRetry
	rc.Logger = nil

	return &Client{
		cfg:      cfg,
		http:     rc,
		probe:    &http.Client{Timeout: healthTimeout},
		tokens:   gocache.New(gocache.NoExpiration, time.Minute),
		deviceID: id,
		log:      log.With("component", "transfer"),
	}, nil
}

func (c *Client) apiURL(parts ...string) string {
	base := strings.TrimRight(c.cfg.ServerURL, "/")
	return base + "/api/" + c.cfg.APIVersion + "/" + strings.Join(parts, "/")
}

// Health probes server liveness with a short timeout. It never returns an
// error; unreachable simply means false.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("health"), nil)
	if err != nil {
		return false
	}

	resp, err := c.probe.Do(req)
	if err != nil {
		c.log.Warn(ctx, "health probe failed", "error", err)
		return false
	}
	drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.log.Warn(ctx, "health probe returned non-ok status", "status", resp.StatusCode)
		return false
	}
	return true
}

// Authenticate exchanges the device identifier for a bearer token. Callers
// rarely need this directly: every operation re-authenticates lazily when no
// live token is cached.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.authenticate(ctx)
	return err
}

type authRequest struct {
	UserID        string `json:"user_id"`
	ClientVersion string `json:"client_version"`
}

type authResponse struct {
	Token string `json:"token"`
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{UserID: c.deviceID, ClientVersion: common.ClientVersion})
	if err != nil {
		return "", fmt.Errorf("encode auth request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(nonIdempotent(ctx), http.MethodPost, c.apiURL("auth"), body)
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrServerUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", c.statusErr(resp)
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if ar.Token == "" {
		return "", fmt.Errorf("%w: empty token in auth response", common.ErrPermanentServer)
	}

	ttl := tokenTTL(ar.Token)
	c.tokens.Set(tokenCacheKey, ar.Token, ttl)
	c.log.Debug(ctx, "authenticated", "token_ttl", ttl)

	return ar.Token, nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if v, ok := c.tokens.Get(tokenCacheKey); ok {
		return v.(string), nil
	}
	return c.authenticate(ctx)
}

// Upload ships the encrypted cloud blob. Payloads under the chunk threshold
// go in one request; larger ones use a chunked session closed by a finalize
// call.
func (c *Client) Upload(ctx context.Context, data []byte) (*UploadResult, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Info(ctx, "uploading cloud data", "bytes", len(data))

	if int64(len(data)) < c.cfg.ChunkSize {
		return c.uploadSingle(ctx, token, data)
	}
	return c.uploadChunked(ctx, token, data)
}

func (c *Client) uploadSingle(ctx context.Context, token string, data []byte) (*UploadResult, error) {
	req, err := retryablehttp.NewRequestWithContext(nonIdempotent(ctx), http.MethodPost, c.apiURL("archives", "upload"), data)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	c.setUploadHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrServerUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusErr(resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	c.log.Info(ctx, "upload complete", "archive_id", result.ArchiveID)
	return &result, nil
}

func (c *Client) uploadChunked(ctx context.Context, token string, data []byte) (*UploadResult, error) {
	sess := &uploadSession{totalSize: int64(len(data))}
	uploadURL := c.apiURL("archives", "upload")

	for off := int64(0); off < sess.totalSize; {
		end := off + c.cfg.ChunkSize
		if end > sess.totalSize {
			end = sess.totalSize
		}
		chunk := data[off:end]

		req, err := retryablehttp.NewRequestWithContext(nonIdempotent(ctx), http.MethodPost, uploadURL, chunk)
		if err != nil {
			return nil, fmt.Errorf("build chunk request: %w", err)
		}
		c.setUploadHeaders(req, token)
		req.Header.Set("X-Chunk-Index", strconv.Itoa(sess.nextIndex))
		req.Header.Set("X-Total-Size", strconv.FormatInt(sess.totalSize, 10))
		req.Header.Set("X-Chunk-Size", strconv.Itoa(len(chunk)))
		if sess.id != "" {
			req.Header.Set("X-Upload-Id", sess.id)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", common.ErrServerUnavailable, sess.nextIndex, err)
		}

		if resp.StatusCode != http.StatusOK {
			err := c.statusErr(resp)
			drainAndClose(resp.Body)
			return nil, fmt.Errorf("chunk %d: %w", sess.nextIndex, err)
		}

		var ack struct {
			UploadID string `json:"upload_id"`
		}
		err = json.NewDecoder(resp.Body).Decode(&ack)
		drainAndClose(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decode chunk %d response: %w", sess.nextIndex, err)
		}

		if sess.id == "" {
			if ack.UploadID == "" {
				return nil, fmt.Errorf("%w: server assigned no upload session id", common.ErrPermanentServer)
			}
			sess.id = ack.UploadID
		}

		off = end
		sess.nextIndex++
		c.log.Debug(ctx, "chunk uploaded", "index", sess.nextIndex, "sent", off, "total", sess.totalSize)
	}

	return c.finalize(ctx, token, uploadURL, sess)
}

func (c *Client) finalize(ctx context.Context, token, uploadURL string, sess *uploadSession) (*UploadResult, error) {
	req, err := retryablehttp.NewRequestWithContext(nonIdempotent(ctx), http.MethodPost, uploadURL+"/finalize/"+sess.id, nil)
	if err != nil {
		return nil, fmt.Errorf("build finalize request: %w", err)
	}
	req.Header.Set("Authorization", common.AuthScheme+" "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: finalize: %v", common.ErrServerUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("finalize: %w", c.statusErr(resp))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode finalize response: %w", err)
	}

	c.log.Info(ctx, "chunked upload complete",
		"archive_id", result.ArchiveID, "chunks", sess.nextIndex)
	return &result, nil
}

func (c *Client) setUploadHeaders(req *retryablehttp.Request, token string) {
	req.Header.Set("Authorization", common.AuthScheme+" "+token)
	req.Header.Set("Content-Type", "application/octet-stream")
}

// Download retrieves the full encrypted blob for an archive id.
func (c *Client) Download(ctx context.Context, archiveID string) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(idempotent(ctx), http.MethodGet,
		c.apiURL("archives", archiveID, "download"), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", common.AuthScheme+" "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrServerUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusErr(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read download stream: %v", common.ErrServerUnavailable, err)
	}

	c.log.Info(ctx, "download complete", "archive_id", archiveID, "bytes", len(data))
	return data, nil
}

// Delete removes a remote archive.
func (c *Client) Delete(ctx context.Context, archiveID string) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(idempotent(ctx), http.MethodDelete,
		c.apiURL("archives", archiveID), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", common.AuthScheme+" "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrServerUnavailable, err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		c.log.Info(ctx, "archive deleted", "archive_id", archiveID)
		return nil
	default:
		return c.statusErr(resp)
	}
}

// statusErr classifies a non-success response into the error taxonomy.
// Transient statuses land here only after the retry budget is spent.
func (c *Client) statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", common.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", common.ErrServerUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", common.ErrPermanentServer, resp.StatusCode)
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

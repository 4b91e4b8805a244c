package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wincloud/wincloud/internal/common"
	"github.com/wincloud/wincloud/internal/logging"
)

// fakeServer implements the archive server wire contract in memory.
type fakeServer struct {
	mu sync.Mutex

	authCalls int
	tokenTTL  time.Duration

	archives map[string][]byte
	sessions map[string]*fakeSession

	// failures lets tests inject transient errors: statuses popped per path
	// prefix before normal handling resumes.
	failures map[string][]int
}

type fakeSession struct {
	chunks     [][]byte
	totalSizes []string
	indices    []int
	declared   int64
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		tokenTTL: time.Hour,
		archives: make(map[string][]byte),
		sessions: make(map[string]*fakeSession),
		failures: make(map[string][]int),
	}
}

func (f *fakeServer) failNext(pathPrefix string, statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[pathPrefix] = append(f.failures[pathPrefix], statuses...)
}

func (f *fakeServer) popFailure(path string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for prefix, statuses := range f.failures {
		if strings.HasPrefix(path, prefix) && len(statuses) > 0 {
			f.failures[prefix] = statuses[1:]
			return statuses[0], true
		}
	}
	return 0, false
}

func (f *fakeServer) mintToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": jwt.NewNumericDate(time.Now().Add(f.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	t.Helper()

	health := func(w http.ResponseWriter, r *http.Request) {
		if status, ok := f.popFailure(r.URL.Path); ok {
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}

	auth := func(w http.ResponseWriter, r *http.Request) {
		if status, ok := f.popFailure(r.URL.Path); ok {
			w.WriteHeader(status)
			return
		}

		var req authRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.ClientVersion == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.authCalls++
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(authResponse{Token: f.mintToken(t, req.UserID)})
	}

	requireBearer := func(w http.ResponseWriter, r *http.Request) bool {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	upload := func(w http.ResponseWriter, r *http.Request) {
		if status, ok := f.popFailure(r.URL.Path); ok {
			w.WriteHeader(status)
			return
		}
		if !requireBearer(w, r) {
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// single-shot upload
		if r.Header.Get("X-Chunk-Index") == "" {
			id := uuid.NewString()
			f.mu.Lock()
			f.archives[id] = body
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(UploadResult{ArchiveID: id, FileIDs: []string{uuid.NewString()}})
			return
		}

		// chunked upload
		index, err := strconv.Atoi(r.Header.Get("X-Chunk-Index"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		sessID := r.Header.Get("X-Upload-Id")
		if sessID == "" {
			if index != 0 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			sessID = uuid.NewString()
			declared, _ := strconv.ParseInt(r.Header.Get("X-Total-Size"), 10, 64)
			f.sessions[sessID] = &fakeSession{declared: declared}
		}

		sess, ok := f.sessions[sessID]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sess.chunks = append(sess.chunks, body)
		sess.totalSizes = append(sess.totalSizes, r.Header.Get("X-Total-Size"))
		sess.indices = append(sess.indices, index)

		_ = json.NewEncoder(w).Encode(map[string]string{"upload_id": sessID})
	}

	finalize := func(w http.ResponseWriter, r *http.Request, sessID string) {
		if !requireBearer(w, r) {
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		sess, ok := f.sessions[sessID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var received int64
		for _, chunk := range sess.chunks {
			received += int64(len(chunk))
		}
		// finalize succeeds only once every declared byte arrived
		if received != sess.declared {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		id := uuid.NewString()
		f.archives[id] = bytes.Join(sess.chunks, nil)
		_ = json.NewEncoder(w).Encode(UploadResult{ArchiveID: id, FileIDs: []string{uuid.NewString()}})
	}

	download := func(w http.ResponseWriter, r *http.Request, id string) {
		if status, ok := f.popFailure(r.URL.Path); ok {
			w.WriteHeader(status)
			return
		}
		if !requireBearer(w, r) {
			return
		}

		f.mu.Lock()
		data, ok := f.archives[id]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	}

	del := func(w http.ResponseWriter, r *http.Request, id string) {
		if !requireBearer(w, r) {
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.archives[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.archives, id)
		w.WriteHeader(http.StatusOK)
	}

	// Go 1.21's ServeMux has no method or wildcard patterns, so dispatch
	// the same routes by hand.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case r.Method == http.MethodGet && path == "/api/v1/health":
			health(w, r)
		case r.Method == http.MethodPost && path == "/api/v1/auth":
			auth(w, r)
		case r.Method == http.MethodPost && path == "/api/v1/archives/upload":
			upload(w, r)
		case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/v1/archives/upload/finalize/"):
			finalize(w, r, strings.TrimPrefix(path, "/api/v1/archives/upload/finalize/"))
		case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v1/archives/") && strings.HasSuffix(path, "/download"):
			download(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/archives/"), "/download"))
		case r.Method == http.MethodDelete && strings.HasPrefix(path, "/api/v1/archives/"):
			del(w, r, strings.TrimPrefix(path, "/api/v1/archives/"))
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestClient(t *testing.T, srv *httptest.Server, chunkSize int64) *Client {
	t.Helper()
	c, err := New(Config{
		ServerURL: srv.URL,
		Timeout:   5 * time.Second,
		ChunkSize: chunkSize,
		DataDir:   t.TempDir(),
	}, logging.NewDefault(false))
	require.NoError(t, err)

	// keep retry tests fast
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = 5 * time.Millisecond
	return c
}

func startServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fake := newFakeServer()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return fake, srv
}

func TestNew_RequiresServerURL(t *testing.T) {
	_, err := New(Config{}, logging.NewDefault(false))
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	_, srv := startServer(t)
	c := newTestClient(t, srv, 0)

	assert.True(t, c.Health(context.Background()))

	srv.Close()
	assert.False(t, c.Health(context.Background()))
}

func TestHealth_NonOKStatus(t *testing.T) {
	fake, srv := startServer(t)
	c := newTestClient(t, srv, 0)

	fake.failNext("/api/v1/health", http.StatusServiceUnavailable)
	assert.False(t, c.Health(context.Background()))
}

func TestAuthenticate_TokenCachedAcrossOperations(t *testing.T) {
	fake, srv := startServer(t)
	c := newTestClient(t, srv, 0)
	ctx := context.Background()

	_, err := c.Upload(ctx, []byte("first"))
	require.NoError(t, err)
	_, err = c.Upload(ctx, []byte("second"))
	require.NoError(t, err)

	assert.Equal(t, 1, fake.authCalls)
}

func TestAuthenticate_ShortLivedTokenTriggersReauth(t *testing.T) {
	fake, srv := startServer(t)
	fake.tokenTTL = 2 * time.Second // below the expiry slack
	c := newTestClient(t, srv, 0)
	ctx := context.Background()

	_, err := c.Upload(ctx, []byte("first"))
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond) // minimum cache lifetime is one second

	_, err = c.Upload(ctx, []byte("second"))
	require.NoError(t, err)

	assert.Equal(t, 2, fake.authCalls)
}

func TestUpload_SingleShotRoundTrip(t *testing.T) {
	fake, srv := startServer(t)
	c := newTestClient(t, srv, 1024)
	ctx := context.Background()

	payload := []byte("small payload under the chunk threshold")
	res, err := c.Upload(ctx, payload)
	require.NoError(t, err)
	require.NotEmpty(t, res.ArchiveID)
	require.NotEmpty(t, res.FileIDs)
	assert.Empty(t, fake.sessions, "small payload must not open a session")

	got, err := c.Download(ctx, res.ArchiveID)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestUpload_Chunked(t *testing.T) {
	const chunkSize = 1024
	fake, srv := startServer(t)
	c := newTestClient(t, srv, chunkSize)
	ctx := context.Background()

	// 2.5 chunks -> 3 chunk requests
	payload := bytes.Repeat([]byte{0xA5}, chunkSize*2+chunkSize/2)
	res, err := c.Upload(ctx, payload)
	require.NoError(t, err)
	require.NotEmpty(t, res.ArchiveID)

	require.Len(t, fake.sessions, 1)
	var sess *fakeSession
	for _, s := range fake.sessions {
		sess = s
	}

	require.Len(t, sess.chunks, 3)
	assert.Equal(t, []int{0, 1, 2}, sess.indices)

	// every chunk in the session declared the same total size
	want := strconv.Itoa(len(payload))
	for _, ts := range sess.totalSizes {
		assert.Equal(t, want, ts)
	}

	got, err := c.Download(ctx, res.ArchiveID)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestUpload_FinalizeRequiresAllChunks(t *testing.T) {
	fake, srv := startServer(t)
	c := newTestClient(t, srv, 1024)
	ctx := context.Background()

	token, err := c.ensureToken(ctx)
	require.NoError(t, err)

	// upload only the first chunk of a two-chunk payload by hand
	payload := bytes.Repeat([]byte{1}, 2048)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/archives/upload", bytes.NewReader(payload[:1024]))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Chunk-Index", "0")
	req.Header.Set("X-Total-Size", strconv.Itoa(len(payload)))
	req.Header.Set("X-Chunk-Size", "1024")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var ack map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	resp.Body.Close()

	_, err = c.finalize(ctx, token, srv.URL+"/api/v1/archives/upload",
		&uploadSession{id: ack["upload_id"], nextIndex: 1, totalSize: int64(len(payload))})
	require.Error(t, err)
	assert.Len(t, fake.archives, 0)
}

func TestUpload_RetriesTransientStatus(t *testing.T) {
	fake, srv := startServer(t)
	c := newTestClient(t, srv, 0)

	fake.failNext("/api/v1/archives/upload", http.StatusServiceUnavailable, http.StatusInternalServerError)

	res, err := c.Upload(context.Background(), []byte("eventually accepted"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ArchiveID)
}

func TestUpload_PermanentStatusNotRetried(t *testing.T) {
	fake, srv := startServer(t)
	c := newTestClient(t, srv, 0)

	fake.failNext("/api/v1/archives/upload", http.StatusUnprocessableEntity)

	_, err := c.Upload(context.Background(), []byte("rejected"))
	require.ErrorIs(t, err, common.ErrPermanentServer)

	// the injected failure was consumed exactly once: no retry happened,
	// so a follow-up upload succeeds without another failure popping.
	_, err = c.Upload(context.Background(), []byte("accepted"))
	require.NoError(t, err)
}

func TestAuthenticate_RejectionSurfacesImmediately(t *testing.T) {
	fake, srv := startServer(t)
	c := newTestClient(t, srv, 0)

	fake.failNext("/api/v1/auth", http.StatusUnauthorized)

	_, err := c.Upload(context.Background(), []byte("data"))
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestDownload_Missing(t *testing.T) {
	_, srv := startServer(t)
	c := newTestClient(t, srv, 0)

	_, err := c.Download(context.Background(), "no-such-archive")
	require.ErrorIs(t, err, common.ErrPermanentServer)
}

func TestDelete(t *testing.T) {
	fake, srv := startServer(t)
	c := newTestClient(t, srv, 0)
	ctx := context.Background()

	res, err := c.Upload(ctx, []byte("to be removed"))
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, res.ArchiveID))
	assert.Empty(t, fake.archives)

	err = c.Delete(ctx, res.ArchiveID)
	require.ErrorIs(t, err, common.ErrPermanentServer)
}

func TestCheckRetry_Policy(t *testing.T) {
	bg := context.Background()
	timeoutErr := fmt.Errorf("wrapped: %w", context.DeadlineExceeded)

	tests := []struct {
		name string
		ctx  context.Context
		resp *http.Response
		err  error
		want bool
	}{
		{name: "retryable status", ctx: bg, resp: &http.Response{StatusCode: 503}, want: true},
		{name: "rate limited", ctx: bg, resp: &http.Response{StatusCode: 429}, want: true},
		{name: "success", ctx: bg, resp: &http.Response{StatusCode: 200}, want: false},
		{name: "client error", ctx: bg, resp: &http.Response{StatusCode: 404}, want: false},
		{name: "auth rejection", ctx: bg, resp: &http.Response{StatusCode: 401}, want: false},
		{name: "connection failure", ctx: bg, err: fmt.Errorf("connection refused"), want: true},
		{name: "timeout on idempotent", ctx: idempotent(bg), err: timeoutErr, want: true},
		{name: "timeout on non-idempotent", ctx: nonIdempotent(bg), err: timeoutErr, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := checkRetry(tc.ctx, tc.resp, tc.err)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTokenTTL(t *testing.T) {
	fake := newFakeServer()

	ttl := tokenTTL(fake.mintToken(t, "user"))
	assert.Greater(t, ttl, 50*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	// opaque token falls back to the default
	assert.Equal(t, defaultTokenTTL, tokenTTL("opaque-session-token"))

	// expired token is cached only briefly
	fake.tokenTTL = -time.Hour
	assert.Equal(t, time.Second, tokenTTL(fake.mintToken(t, "user")))
}

func TestDeviceID_StableAcrossClients(t *testing.T) {
	dir := t.TempDir()

	id1, err := deviceID(dir)
	require.NoError(t, err)
	id2, err := deviceID(dir)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 16)

	other, err := deviceID(t.TempDir())
	require.NoError(t, err)
	assert.NotEqual(t, id1, other)
}

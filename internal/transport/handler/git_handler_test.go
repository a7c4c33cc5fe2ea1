package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sourcehub/sourcehub/internal/config"
	"github.com/sourcehub/sourcehub/internal/gitwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGitRouter(e *env, cfg config.GitConfig) http.Handler {
	r := chi.NewRouter()
	NewGitHandler(e.git, e.store, e.auth, e.access, cfg, zap.NewNop()).Register(r)
	return r
}

func defaultGitConfig() config.GitConfig {
	return config.GitConfig{UploadPackLimit: 10 << 20, ReceivePackLimit: 500 << 20}
}

func pkt(s string) string {
	return fmt.Sprintf("%04x%s", len(s)+4, s)
}

func TestGitHandler_InfoRefs_UnknownService(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())

	req := httptest.NewRequest(http.MethodGet, "/repo/"+e.repoId+"/info/refs?service=git-evil-pack", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGitHandler_InfoRefs_UnknownRepo(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())

	req := httptest.NewRequest(http.MethodGet, "/repo/nope/info/refs?service=git-upload-pack", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGitHandler_InfoRefs_NoCredentials(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())

	req := httptest.NewRequest(http.MethodGet, "/repo/"+e.repoId+"/info/refs?service=git-upload-pack", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
}

func TestGitHandler_InfoRefs_ViewerCannotReceivePack(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())

	req := httptest.NewRequest(http.MethodGet, "/repo/"+e.repoId+"/info/refs?service=git-receive-pack", nil)
	req.Header.Set("Authorization", "Bearer viewer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGitHandler_InfoRefs_Advertisement(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())

	req := httptest.NewRequest(http.MethodGet, "/repo/"+e.repoId+"/info/refs?service=git-upload-pack", nil)
	req.SetBasicAuth("alice", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-git-upload-pack-advertisement", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, pkt("# service=git-upload-pack\n")+"0000"), body)
	assert.Contains(t, body, "refs/heads/main")
	assert.Contains(t, body, "symref=HEAD:refs/heads/main")
	assert.True(t, strings.HasSuffix(body, "0000"))
}

func TestGitHandler_ReceivePack_DeclaredLengthTooLarge(t *testing.T) {
	e := newEnv()
	cfg := defaultGitConfig()
	cfg.ReceivePackLimit = 64
	router := newGitRouter(e, cfg)

	req := httptest.NewRequest(http.MethodPost, "/repo/"+e.repoId+"/git-receive-pack", strings.NewReader(strings.Repeat("x", 65)))
	req.Header.Set("Authorization", "Bearer member-token")
	req.ContentLength = 65
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGitHandler_UploadPack_DeclaredLengthTooLarge(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())

	// declared length over the 10 MiB ceiling, rejected before any read
	req := httptest.NewRequest(http.MethodPost, "/repo/"+e.repoId+"/git-upload-pack", strings.NewReader("x"))
	req.Header.Set("Authorization", "Bearer viewer-token")
	req.ContentLength = 10<<20 + 1
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGitHandler_ReceivePack_CreateBranchReport(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())

	// the pushed tip must already exist in the graph
	commit, err := e.store.Commit(context.Background(), e.repoId, "main", map[string]string{"a.txt": "1\n"}, "one", "u1")
	require.NoError(t, err)

	line := fmt.Sprintf("%s %s refs/heads/copy\x00report-status", gitwire.ZeroHash, commit.Hash)
	body := pkt(line) + "0000"

	req := httptest.NewRequest(http.MethodPost, "/repo/"+e.repoId+"/git-receive-pack", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer member-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-git-receive-pack-result", rec.Header().Get("Content-Type"))

	report := rec.Body.String()
	assert.Contains(t, report, "unpack ok")
	assert.Contains(t, report, "ok refs/heads/copy")

	branch, err := e.branches.GetByName(context.Background(), e.repoId, "copy")
	require.NoError(t, err)
	assert.Equal(t, commit.Hash, branch.HeadCommit)
}

func TestGitHandler_ReceivePack_NonFastForwardReported(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())
	ctx := context.Background()

	c1, err := e.store.Commit(ctx, e.repoId, "main", map[string]string{"a.txt": "1\n"}, "one", "u1")
	require.NoError(t, err)
	c2, err := e.store.Commit(ctx, e.repoId, "main", map[string]string{"a.txt": "2\n"}, "two", "u1")
	require.NoError(t, err)

	line := fmt.Sprintf("%s %s refs/heads/main\x00report-status", c2.Hash, c1.Hash)
	body := pkt(line) + "0000"

	req := httptest.NewRequest(http.MethodPost, "/repo/"+e.repoId+"/git-receive-pack", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer member-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// per-ref failures still answer 200 with an ng entry
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ng refs/heads/main non-fast-forward")

	branch, err := e.branches.GetByName(ctx, e.repoId, "main")
	require.NoError(t, err)
	assert.Equal(t, c2.Hash, branch.HeadCommit)
}

func TestGitHandler_UploadPack_Snapshot(t *testing.T) {
	e := newEnv()
	router := newGitRouter(e, defaultGitConfig())

	commit, err := e.store.Commit(context.Background(), e.repoId, "main", map[string]string{"a.txt": "1\n"}, "one", "u1")
	require.NoError(t, err)

	body := pkt("want "+commit.Hash) + "0000" + pkt("done")
	req := httptest.NewRequest(http.MethodPost, "/repo/"+e.repoId+"/git-upload-pack", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer viewer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-git-upload-pack-result", rec.Header().Get("Content-Type"))

	resp := rec.Body.String()
	assert.True(t, strings.HasPrefix(resp, pkt("NAK\n")), resp)
	assert.Contains(t, resp, commit.Hash)
}

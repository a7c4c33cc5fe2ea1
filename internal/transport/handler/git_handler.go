package handler

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sourcehub/sourcehub/internal/config"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/gitwire"
	"github.com/sourcehub/sourcehub/internal/usecase"
	"go.uber.org/zap"
)

// GitHandler serves the Smart HTTP endpoints. Unlike the JSON API these
// speak plain text and pkt-line, and accept Basic auth alongside Bearer
// because git clients only know Basic.
type GitHandler struct {
	git    *usecase.GitService
	store  *usecase.RepoService
	auth   *usecase.AuthService
	access *usecase.AccessService
	cfg    config.GitConfig
	log    *zap.Logger
}

func NewGitHandler(
	git *usecase.GitService,
	store *usecase.RepoService,
	auth *usecase.AuthService,
	access *usecase.AccessService,
	cfg config.GitConfig,
	log *zap.Logger,
) *GitHandler {
	return &GitHandler{
		git:    git,
		store:  store,
		auth:   auth,
		access: access,
		cfg:    cfg,
		log:    log,
	}
}

func (h *GitHandler) Register(r chi.Router) {
	r.Get("/repo/{repoId}/info/refs", h.InfoRefs)
	r.Post("/repo/{repoId}/git-upload-pack", h.UploadPack)
	r.Post("/repo/{repoId}/git-receive-pack", h.ReceivePack)
}

func (h *GitHandler) InfoRefs(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service != gitwire.ServiceUploadPack && service != gitwire.ServiceReceivePack {
		h.gitError(w, usecase.ErrBadService)
		return
	}

	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	minRole := domain.RoleViewer
	if service == gitwire.ServiceReceivePack {
		minRole = domain.RoleMember
	}
	if _, ok := h.authorize(w, r, repo.ProjectId, minRole); !ok {
		return
	}

	adv, err := h.git.Advertisement(r.Context(), repo.Id)
	if err != nil {
		h.gitError(w, err)
		return
	}

	w.Header().Set("Content-Type", gitwire.AdvertisementContentType(service))
	w.Header().Set("Cache-Control", "no-cache")

	pw := gitwire.NewPacketLineWriter(w)
	pw.WriteLine("# service=" + service)
	pw.WriteFlush()
	writeRefs(pw, service, adv)
	pw.WriteFlush()
	if err := pw.Flush(); err != nil {
		h.log.Error("writing ref advertisement", zap.Error(err))
	}
}

func (h *GitHandler) UploadPack(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}
	if _, ok := h.authorize(w, r, repo.ProjectId, domain.RoleViewer); !ok {
		return
	}
	if !h.checkBodySize(w, r, h.cfg.UploadPackLimit) {
		return
	}

	wants, err := gitwire.ParseUploadPackWants(http.MaxBytesReader(w, r.Body, h.cfg.UploadPackLimit))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snapshot, err := h.git.PackSnapshot(r.Context(), repo.Id, wants)
	if err != nil {
		h.gitError(w, err)
		return
	}

	w.Header().Set("Content-Type", gitwire.ResultContentType(gitwire.ServiceUploadPack))
	w.Header().Set("Cache-Control", "no-cache")

	pw := gitwire.NewPacketLineWriter(w)
	pw.WriteLine("NAK")
	if err := pw.Flush(); err != nil {
		h.log.Error("writing upload-pack response", zap.Error(err))
		return
	}
	if _, err := w.Write(snapshot); err != nil {
		h.log.Error("writing pack payload", zap.Error(err))
	}
}

func (h *GitHandler) ReceivePack(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}
	if _, ok := h.authorize(w, r, repo.ProjectId, domain.RoleMember); !ok {
		return
	}
	if !h.checkBodySize(w, r, h.cfg.ReceivePackLimit) {
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.cfg.ReceivePackLimit)
	reader := io.Reader(body)
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			http.Error(w, "bad gzip body", http.StatusBadRequest)
			return
		}
		defer gz.Close()
		reader = gz
	}

	commands, _, err := gitwire.ParseReceivePackCommands(reader)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(commands) == 0 {
		http.Error(w, "no commands", http.StatusBadRequest)
		return
	}

	results := h.git.ApplyCommands(r.Context(), repo.ProjectId, repo.Id, commands)

	w.Header().Set("Content-Type", gitwire.ResultContentType(gitwire.ServiceReceivePack))
	w.Header().Set("Cache-Control", "no-cache")

	pw := gitwire.NewPacketLineWriter(w)
	pw.WriteLine("unpack ok")
	for _, res := range results {
		if res.Ok {
			pw.WriteLine("ok " + res.Ref)
		} else {
			pw.WriteLine(fmt.Sprintf("ng %s %s", res.Ref, res.Reason))
		}
	}
	pw.WriteFlush()
	if err := pw.Flush(); err != nil {
		h.log.Error("writing receive-pack report", zap.Error(err))
	}
}

func (h *GitHandler) lookupRepo(w http.ResponseWriter, r *http.Request) (*domain.Repository, bool) {
	repo, err := h.store.GetRepository(r.Context(), chi.URLParam(r, "repoId"))
	if err != nil {
		h.gitError(w, err)
		return nil, false
	}
	return repo, true
}

// authorize resolves the request's credentials and checks the effective
// role against the minimum the service needs. Git routes accept Basic
// (password or token as password) and Bearer.
func (h *GitHandler) authorize(w http.ResponseWriter, r *http.Request, projectId string, min domain.Role) (string, bool) {
	creds, ok := h.credentials(r)
	if !ok {
		h.challenge(w)
		return "", false
	}

	principal, err := h.auth.Authenticate(r.Context(), creds)
	if err != nil {
		h.challenge(w)
		return "", false
	}

	role, err := h.access.EffectiveRole(r.Context(), principal, projectId)
	if err != nil {
		h.gitError(w, err)
		return "", false
	}
	if role == "" || !role.AtLeast(min) {
		http.Error(w, "access denied", http.StatusForbidden)
		return "", false
	}
	return principal, true
}

func (h *GitHandler) credentials(r *http.Request) (usecase.Credentials, bool) {
	if username, password, ok := r.BasicAuth(); ok {
		return usecase.Credentials{Username: username, Password: password}, true
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return usecase.Credentials{Token: token}, true
	}
	return usecase.Credentials{}, false
}

func (h *GitHandler) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="sourcehub"`)
	http.Error(w, "authentication required", http.StatusUnauthorized)
}

// checkBodySize rejects from the declared Content-Length before any body
// bytes are read. Chunked requests pass here and hit the MaxBytesReader.
func (h *GitHandler) checkBodySize(w http.ResponseWriter, r *http.Request, limit int64) bool {
	if r.ContentLength > limit {
		h.gitError(w, usecase.ErrPayloadTooLarge)
		return false
	}
	return true
}

// gitError writes plain-text errors; git clients show the body verbatim.
func (h *GitHandler) gitError(w http.ResponseWriter, err error) {
	var domainErr *usecase.DomainError
	if errors.As(err, &domainErr) {
		status, ok := statusByCode[domainErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		http.Error(w, domainErr.Message, status)
		return
	}
	h.log.Error("git endpoint error", zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func writeRefs(pw *gitwire.PacketLineWriter, service string, adv *usecase.RefAdvertisement) {
	caps := "report-status delete-refs"
	if service == gitwire.ServiceUploadPack {
		caps = "symref=HEAD:refs/heads/" + adv.DefaultBranch
	}

	if len(adv.Branches) == 0 {
		pw.WriteLine(gitwire.ZeroHash + " capabilities^{}\x00" + caps)
		return
	}

	for i, b := range adv.Branches {
		line := b.HeadCommit + " refs/heads/" + b.Name
		if i == 0 {
			line += "\x00" + caps
		}
		pw.WriteLine(line)
	}
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/transport/dto/request"
	"github.com/sourcehub/sourcehub/internal/transport/dto/response"
	"github.com/sourcehub/sourcehub/internal/transport/middleware"
	"github.com/sourcehub/sourcehub/internal/usecase"
	"go.uber.org/zap"
)

type BranchHandler struct {
	store  *usecase.RepoService
	access *usecase.AccessService
	log    *zap.Logger
}

func NewBranchHandler(store *usecase.RepoService, access *usecase.AccessService, log *zap.Logger) *BranchHandler {
	return &BranchHandler{
		store:  store,
		access: access,
		log:    log,
	}
}

func (h *BranchHandler) Register(r chi.Router) {
	r.Get("/projects/{projectId}/branches", h.List)
	r.Post("/projects/{projectId}/branches", h.Create)
	r.Delete("/projects/{projectId}/branches/*", h.Delete)
	r.Post("/projects/{projectId}/commits", h.Commit)
	r.Get("/projects/{projectId}/diff", h.Diff)
}

func (h *BranchHandler) List(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleViewer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	repo, err := h.store.GetRepositoryByProject(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	branches, err := h.store.ListBranches(r.Context(), repo.Id)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	out := make([]*response.BranchResponse, 0, len(branches))
	for _, b := range branches {
		out = append(out, response.NewBranchResponse(b))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *BranchHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleMember); err != nil {
		HandleError(w, h.log, err)
		return
	}

	var req request.CreateBranchRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	repo, err := h.store.GetRepositoryByProject(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	from := req.FromCommit
	if from == "" {
		from = repo.DefaultBranch
	}
	commit, err := h.store.ResolveRef(r.Context(), repo.Id, from)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	branch, err := h.store.CreateBranch(r.Context(), repo.Id, req.Name, commit.Hash)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, response.NewBranchResponse(branch))
}

func (h *BranchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleMember); err != nil {
		HandleError(w, h.log, err)
		return
	}

	repo, err := h.store.GetRepositoryByProject(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	name := chi.URLParam(r, "*")
	if err := h.store.DeleteBranch(r.Context(), projectId, repo.Id, name); err != nil {
		HandleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BranchHandler) Commit(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleMember); err != nil {
		HandleError(w, h.log, err)
		return
	}

	var req request.CommitRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}
	if req.Branch == "" || len(req.Changes) == 0 {
		HandleError(w, h.log, usecase.ErrInvalidInput)
		return
	}

	repo, err := h.store.GetRepositoryByProject(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	commit, err := h.store.Commit(r.Context(), repo.Id, req.Branch, req.Changes, req.Message, middleware.Principal(r.Context()))
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, response.NewCommitResponse(commit))
}

func (h *BranchHandler) Diff(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleViewer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		HandleError(w, h.log, usecase.ErrInvalidInput)
		return
	}

	repo, err := h.store.GetRepositoryByProject(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	diff, err := h.store.Diff(r.Context(), repo.Id, from, to)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, diff)
}

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

type IssueHandler struct {
	issues *usecase.IssueService
	access *usecase.AccessService
	log    *zap.Logger
}

func NewIssueHandler(issues *usecase.IssueService, access *usecase.AccessService, log *zap.Logger) *IssueHandler {
	return &IssueHandler{
		issues: issues,
		access: access,
		log:    log,
	}
}

func (h *IssueHandler) Register(r chi.Router) {
	r.Post("/issues", h.Create)
	r.Get("/issues/{issueId}", h.GetById)
	r.Post("/issues/{issueId}/close", h.Close)
	r.Get("/projects/{projectId}/issues", h.ListByProject)
}

func (h *IssueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateIssueRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	// Anyone who can see the project can open issues on it.
	principal, err := requireRole(r.Context(), h.access, req.ProjectId, domain.RoleViewer)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	issue, err := h.issues.Create(r.Context(), req.ProjectId, principal, req.Title, req.Body)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, response.NewIssueResponse(issue))
}

func (h *IssueHandler) GetById(w http.ResponseWriter, r *http.Request) {
	issue, err := h.issues.GetById(r.Context(), chi.URLParam(r, "issueId"))
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	if _, err := requireRole(r.Context(), h.access, issue.ProjectId, domain.RoleViewer); err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, response.NewIssueResponse(issue))
}

func (h *IssueHandler) Close(w http.ResponseWriter, r *http.Request) {
	issue, err := h.issues.GetById(r.Context(), chi.URLParam(r, "issueId"))
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	principal := middleware.Principal(r.Context())
	if principal != issue.AuthorId {
		if _, err := requireRole(r.Context(), h.access, issue.ProjectId, domain.RoleMaintainer); err != nil {
			HandleError(w, h.log, err)
			return
		}
	}

	closed, err := h.issues.Close(r.Context(), issue.Id)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, response.NewIssueResponse(closed))
}

func (h *IssueHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleViewer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	issues, err := h.issues.ListByProject(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	out := make([]*response.IssueResponse, 0, len(issues))
	for _, issue := range issues {
		out = append(out, response.NewIssueResponse(issue))
	}
	WriteJSON(w, http.StatusOK, out)
}

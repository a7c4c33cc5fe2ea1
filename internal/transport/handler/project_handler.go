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

type ProjectHandler struct {
	projects *usecase.ProjectService
	access   *usecase.AccessService
	log      *zap.Logger
}

func NewProjectHandler(projects *usecase.ProjectService, access *usecase.AccessService, log *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		access:   access,
		log:      log,
	}
}

func (h *ProjectHandler) Register(r chi.Router) {
	r.Post("/projects", h.Create)
	r.Get("/projects/{projectId}", h.GetById)
	r.Patch("/projects/{projectId}/settings", h.UpdateSettings)
	r.Put("/projects/{projectId}/members", h.AddMember)
	r.Delete("/projects/{projectId}/members/{userId}", h.RemoveMember)
	r.Put("/projects/{projectId}/team-grants", h.SetTeamGrant)
	r.Delete("/projects/{projectId}/team-grants/{teamId}", h.RemoveTeamGrant)
	r.Post("/projects/{projectId}/protection-rules", h.CreateProtectionRule)
	r.Get("/projects/{projectId}/protection-rules", h.ListProtectionRules)
	r.Delete("/projects/{projectId}/protection-rules", h.DeleteProtectionRule)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateProjectRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	visibility := domain.Visibility(req.Visibility)
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}
	if visibility != domain.VisibilityPublic && visibility != domain.VisibilityPrivate {
		HandleError(w, h.log, usecase.ErrInvalidInput)
		return
	}

	project, err := h.projects.Create(r.Context(), req.Name, middleware.Principal(r.Context()), visibility, req.DefaultBranch)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, response.NewProjectResponse(project))
}

func (h *ProjectHandler) GetById(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleViewer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	project, err := h.projects.GetById(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, response.NewProjectResponse(project))
}

func (h *ProjectHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleMaintainer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	var req request.UpdateSettingsRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	project, err := h.projects.GetById(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	if req.Visibility != "" {
		visibility := domain.Visibility(req.Visibility)
		if visibility != domain.VisibilityPublic && visibility != domain.VisibilityPrivate {
			HandleError(w, h.log, usecase.ErrInvalidInput)
			return
		}
		project.Visibility = visibility
	}
	if req.DefaultBranch != "" {
		project.DefaultBranch = req.DefaultBranch
	}
	if req.RequireApprovals < 0 {
		HandleError(w, h.log, usecase.ErrInvalidInput)
		return
	}
	project.RequireApprovals = req.RequireApprovals
	project.AllowSelfMerge = req.AllowSelfMerge
	project.RequireReviewFromOwner = req.RequireReviewFromOwner

	if err := h.projects.UpdateSettings(r.Context(), project); err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, response.NewProjectResponse(project))
}

func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleMaintainer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	var req request.AddMemberRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	role := domain.Role(req.Role)
	if !role.Valid() {
		HandleError(w, h.log, usecase.ErrInvalidInput)
		return
	}

	if err := h.projects.AddMember(r.Context(), projectId, req.UserId, role); err != nil {
		HandleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleMaintainer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	if err := h.projects.RemoveMember(r.Context(), projectId, chi.URLParam(r, "userId")); err != nil {
		HandleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) SetTeamGrant(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleOwner); err != nil {
		HandleError(w, h.log, err)
		return
	}

	var req request.TeamGrantRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	role := domain.Role(req.Role)
	if !role.Valid() {
		HandleError(w, h.log, usecase.ErrInvalidInput)
		return
	}

	if err := h.projects.SetTeamGrant(r.Context(), req.TeamId, projectId, role); err != nil {
		HandleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) RemoveTeamGrant(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleOwner); err != nil {
		HandleError(w, h.log, err)
		return
	}

	if err := h.projects.RemoveTeamGrant(r.Context(), chi.URLParam(r, "teamId"), projectId); err != nil {
		HandleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) CreateProtectionRule(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleMaintainer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	var req request.ProtectionRuleRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	rule := &domain.BranchProtectionRule{
		ProjectId:                projectId,
		BranchPattern:            req.BranchPattern,
		RequirePullRequest:       req.RequirePullRequest,
		RequiredApprovingReviews: req.RequiredApprovingReviews,
		DismissStaleReviews:      req.DismissStaleReviews,
		RequireCodeOwnerReview:   req.RequireCodeOwnerReview,
		AllowForcePushes:         req.AllowForcePushes,
		AllowDeletions:           req.AllowDeletions,
		RequireStatusChecks:      req.RequireStatusChecks,
		RequiredStatusChecks:     req.RequiredStatusChecks,
	}
	if err := h.projects.CreateProtectionRule(r.Context(), rule); err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, response.NewProtectionRuleResponse(rule))
}

func (h *ProjectHandler) ListProtectionRules(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleViewer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	rules, err := h.projects.ListProtectionRules(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	out := make([]*response.ProtectionRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, response.NewProtectionRuleResponse(rule))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *ProjectHandler) DeleteProtectionRule(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleMaintainer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		HandleError(w, h.log, usecase.ErrInvalidInput)
		return
	}

	if err := h.projects.DeleteProtectionRule(r.Context(), projectId, pattern); err != nil {
		HandleError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

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

type PrHandler struct {
	prs     *usecase.PrService
	reviews *usecase.ReviewService
	merges  *usecase.MergeService
	access  *usecase.AccessService
	log     *zap.Logger
}

func NewPrHandler(
	prs *usecase.PrService,
	reviews *usecase.ReviewService,
	merges *usecase.MergeService,
	access *usecase.AccessService,
	log *zap.Logger,
) *PrHandler {
	return &PrHandler{
		prs:     prs,
		reviews: reviews,
		merges:  merges,
		access:  access,
		log:     log,
	}
}

func (h *PrHandler) Register(r chi.Router) {
	r.Post("/pull-requests", h.Create)
	r.Get("/pull-requests/{prId}", h.GetById)
	r.Get("/pull-requests/{prId}/diff", h.GetDiff)
	r.Get("/pull-requests/{prId}/merge-check", h.MergeCheck)
	r.Post("/pull-requests/{prId}/reviews", h.SubmitReview)
	r.Post("/pull-requests/{prId}/merge", h.Merge)
	r.Post("/pull-requests/{prId}/close", h.Close)
	r.Get("/projects/{projectId}/pull-requests", h.ListByProject)
}

func (h *PrHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreatePrRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	principal, err := requireRole(r.Context(), h.access, req.ProjectId, domain.RoleMember)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	pr, err := h.prs.Create(r.Context(), req.ProjectId, principal, req.Title, req.Body, req.SourceBranch, req.TargetBranch)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, response.NewPrResponse(pr))
}

func (h *PrHandler) GetById(w http.ResponseWriter, r *http.Request) {
	pr, ok := h.readablePr(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, response.NewPrResponse(pr))
}

func (h *PrHandler) GetDiff(w http.ResponseWriter, r *http.Request) {
	pr, ok := h.readablePr(w, r)
	if !ok {
		return
	}

	diff, err := h.prs.GetDiff(r.Context(), pr)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	resp := response.NewPrResponse(pr)
	resp.Diff = diff
	WriteJSON(w, http.StatusOK, resp)
}

func (h *PrHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectId := chi.URLParam(r, "projectId")
	if _, err := requireRole(r.Context(), h.access, projectId, domain.RoleViewer); err != nil {
		HandleError(w, h.log, err)
		return
	}

	prs, err := h.prs.ListByProject(r.Context(), projectId)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	out := make([]*response.PrResponse, 0, len(prs))
	for _, pr := range prs {
		out = append(out, response.NewPrResponse(pr))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *PrHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	pr, err := h.prs.GetById(r.Context(), chi.URLParam(r, "prId"))
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	principal, err := requireRole(r.Context(), h.access, pr.ProjectId, domain.RoleMember)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	var req request.ReviewRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	review, err := h.reviews.Submit(r.Context(), pr.Id, principal, domain.ReviewState(req.State), req.Body)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, response.NewReviewResponse(review))
}

func (h *PrHandler) MergeCheck(w http.ResponseWriter, r *http.Request) {
	pr, err := h.prs.GetById(r.Context(), chi.URLParam(r, "prId"))
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	principal, err := requireRole(r.Context(), h.access, pr.ProjectId, domain.RoleMember)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	verdict, err := h.merges.CanMerge(r.Context(), pr, principal)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, response.VerdictResponse{
		Allowed: verdict.Allowed,
		Reasons: verdict.Reasons,
	})
}

func (h *PrHandler) Merge(w http.ResponseWriter, r *http.Request) {
	pr, err := h.prs.GetById(r.Context(), chi.URLParam(r, "prId"))
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	principal, err := requireRole(r.Context(), h.access, pr.ProjectId, domain.RoleMember)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	var req request.MergeRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, h.log, err)
		return
	}

	strategy := domain.MergeStrategy(req.Strategy)
	switch strategy {
	case domain.StrategyMerge, domain.StrategySquash, domain.StrategyRebase:
	default:
		HandleError(w, h.log, usecase.ErrInvalidInput)
		return
	}

	merged, err := h.merges.Merge(r.Context(), pr.Id, strategy, principal)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, response.NewPrResponse(merged))
}

func (h *PrHandler) Close(w http.ResponseWriter, r *http.Request) {
	pr, err := h.prs.GetById(r.Context(), chi.URLParam(r, "prId"))
	if err != nil {
		HandleError(w, h.log, err)
		return
	}

	principal := middleware.Principal(r.Context())
	if principal != pr.AuthorId {
		if _, err := requireRole(r.Context(), h.access, pr.ProjectId, domain.RoleMaintainer); err != nil {
			HandleError(w, h.log, err)
			return
		}
	}

	closed, err := h.prs.Close(r.Context(), pr.Id)
	if err != nil {
		HandleError(w, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, response.NewPrResponse(closed))
}

// readablePr loads a PR and checks read access on its project.
func (h *PrHandler) readablePr(w http.ResponseWriter, r *http.Request) (*domain.PullRequest, bool) {
	pr, err := h.prs.GetById(r.Context(), chi.URLParam(r, "prId"))
	if err != nil {
		HandleError(w, h.log, err)
		return nil, false
	}
	if _, err := requireRole(r.Context(), h.access, pr.ProjectId, domain.RoleViewer); err != nil {
		HandleError(w, h.log, err)
		return nil, false
	}
	return pr, true
}

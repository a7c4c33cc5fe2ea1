package response

import (
	"time"

	"github.com/sourcehub/sourcehub/internal/domain"
	"github.com/sourcehub/sourcehub/internal/usecase"
)

type ProjectResponse struct {
	Id                     string `json:"project_id"`
	Name                   string `json:"name"`
	OwnerId                string `json:"owner_id"`
	Visibility             string `json:"visibility"`
	DefaultBranch          string `json:"default_branch"`
	RequireApprovals       int    `json:"require_approvals"`
	AllowSelfMerge         bool   `json:"allow_self_merge"`
	RequireReviewFromOwner bool   `json:"require_review_from_owner"`
	CreatedAt              string `json:"created_at"`
}

func NewProjectResponse(p *domain.Project) *ProjectResponse {
	return &ProjectResponse{
		Id:                     p.Id,
		Name:                   p.Name,
		OwnerId:                p.OwnerId,
		Visibility:             string(p.Visibility),
		DefaultBranch:          p.DefaultBranch,
		RequireApprovals:       p.RequireApprovals,
		AllowSelfMerge:         p.AllowSelfMerge,
		RequireReviewFromOwner: p.RequireReviewFromOwner,
		CreatedAt:              p.CreatedAt.Format(time.RFC3339),
	}
}

type PrResponse struct {
	Id           string            `json:"pull_request_id"`
	ProjectId    string            `json:"project_id"`
	Number       int               `json:"number"`
	Title        string            `json:"title"`
	Body         string            `json:"body,omitempty"`
	AuthorId     string            `json:"author_id"`
	SourceBranch string            `json:"source_branch"`
	TargetBranch string            `json:"target_branch"`
	State        string            `json:"state"`
	Strategy     *string           `json:"merge_strategy,omitempty"`
	MergedAt     *string           `json:"merged_at,omitempty"`
	MergedBy     *string           `json:"merged_by,omitempty"`
	MergeCommit  *string           `json:"merge_commit,omitempty"`
	Diff         []domain.DiffFile `json:"diff,omitempty"`
}

func NewPrResponse(pr *domain.PullRequest) *PrResponse {
	resp := &PrResponse{
		Id:           pr.Id,
		ProjectId:    pr.ProjectId,
		Number:       pr.Number,
		Title:        pr.Title,
		Body:         pr.Body,
		AuthorId:     pr.AuthorId,
		SourceBranch: pr.SourceBranch,
		TargetBranch: pr.TargetBranch,
		State:        string(pr.State),
		MergedBy:     pr.MergedBy,
		MergeCommit:  pr.MergeCommit,
	}
	if pr.MergeStrategy != nil {
		strategy := string(*pr.MergeStrategy)
		resp.Strategy = &strategy
	}
	if pr.MergedAt != nil {
		mergedAt := pr.MergedAt.Format(time.RFC3339)
		resp.MergedAt = &mergedAt
	}
	return resp
}

type ReviewResponse struct {
	Id            string `json:"review_id"`
	PullRequestId string `json:"pull_request_id"`
	ReviewerId    string `json:"reviewer_id"`
	State         string `json:"state"`
	CreatedAt     string `json:"created_at"`
}

func NewReviewResponse(review *domain.Review) *ReviewResponse {
	return &ReviewResponse{
		Id:            review.Id,
		PullRequestId: review.PullRequestId,
		ReviewerId:    review.ReviewerId,
		State:         string(review.State),
		CreatedAt:     review.CreatedAt.Format(time.RFC3339),
	}
}

type IssueResponse struct {
	Id        string `json:"issue_id"`
	ProjectId string `json:"project_id"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
	AuthorId  string `json:"author_id"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
}

func NewIssueResponse(issue *domain.Issue) *IssueResponse {
	return &IssueResponse{
		Id:        issue.Id,
		ProjectId: issue.ProjectId,
		Number:    issue.Number,
		Title:     issue.Title,
		AuthorId:  issue.AuthorId,
		State:     string(issue.State),
		CreatedAt: issue.CreatedAt.Format(time.RFC3339),
	}
}

type BranchResponse struct {
	Name       string `json:"name"`
	HeadCommit string `json:"head_commit"`
}

func NewBranchResponse(b *domain.Branch) *BranchResponse {
	return &BranchResponse{Name: b.Name, HeadCommit: b.HeadCommit}
}

type CommitResponse struct {
	Hash       string  `json:"hash"`
	Message    string  `json:"message"`
	AuthorId   string  `json:"author_id"`
	ParentHash *string `json:"parent_hash,omitempty"`
}

func NewCommitResponse(c *domain.Commit) *CommitResponse {
	return &CommitResponse{
		Hash:       c.Hash,
		Message:    c.Message,
		AuthorId:   c.AuthorId,
		ParentHash: c.ParentHash,
	}
}

type ProtectionRuleResponse struct {
	Id                       string   `json:"rule_id"`
	BranchPattern            string   `json:"branch_pattern"`
	RequirePullRequest       bool     `json:"require_pull_request"`
	RequiredApprovingReviews int      `json:"required_approving_reviews"`
	DismissStaleReviews      bool     `json:"dismiss_stale_reviews"`
	RequireCodeOwnerReview   bool     `json:"require_code_owner_review"`
	AllowForcePushes         bool     `json:"allow_force_pushes"`
	AllowDeletions           bool     `json:"allow_deletions"`
	RequireStatusChecks      bool     `json:"require_status_checks"`
	RequiredStatusChecks     []string `json:"required_status_checks,omitempty"`
}

func NewProtectionRuleResponse(rule *domain.BranchProtectionRule) *ProtectionRuleResponse {
	return &ProtectionRuleResponse{
		Id:                       rule.Id,
		BranchPattern:            rule.BranchPattern,
		RequirePullRequest:       rule.RequirePullRequest,
		RequiredApprovingReviews: rule.RequiredApprovingReviews,
		DismissStaleReviews:      rule.DismissStaleReviews,
		RequireCodeOwnerReview:   rule.RequireCodeOwnerReview,
		AllowForcePushes:         rule.AllowForcePushes,
		AllowDeletions:           rule.AllowDeletions,
		RequireStatusChecks:      rule.RequireStatusChecks,
		RequiredStatusChecks:     rule.RequiredStatusChecks,
	}
}

type VerdictResponse struct {
	Allowed bool                  `json:"allowed"`
	Reasons []usecase.MergeReason `json:"reasons,omitempty"`
}

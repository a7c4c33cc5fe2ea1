package request

type CreateProjectRequest struct {
	Name          string `json:"name"`
	Visibility    string `json:"visibility"`
	DefaultBranch string `json:"default_branch"`
}

type UpdateSettingsRequest struct {
	Visibility             string `json:"visibility"`
	DefaultBranch          string `json:"default_branch"`
	RequireApprovals       int    `json:"require_approvals"`
	AllowSelfMerge         bool   `json:"allow_self_merge"`
	RequireReviewFromOwner bool   `json:"require_review_from_owner"`
}

type AddMemberRequest struct {
	UserId string `json:"user_id"`
	Role   string `json:"role"`
}

type TeamGrantRequest struct {
	TeamId string `json:"team_id"`
	Role   string `json:"role"`
}

type ProtectionRuleRequest struct {
	BranchPattern            string   `json:"branch_pattern"`
	RequirePullRequest       bool     `json:"require_pull_request"`
	RequiredApprovingReviews int      `json:"required_approving_reviews"`
	DismissStaleReviews      bool     `json:"dismiss_stale_reviews"`
	RequireCodeOwnerReview   bool     `json:"require_code_owner_review"`
	AllowForcePushes         bool     `json:"allow_force_pushes"`
	AllowDeletions           bool     `json:"allow_deletions"`
	RequireStatusChecks      bool     `json:"require_status_checks"`
	RequiredStatusChecks     []string `json:"required_status_checks"`
}

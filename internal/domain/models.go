package domain

import "time"

type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

type PrState string

const (
	PrStateOpen   PrState = "OPEN"
	PrStateMerged PrState = "MERGED"
	PrStateClosed PrState = "CLOSED"
)

type MergeStrategy string

const (
	StrategyMerge  MergeStrategy = "MERGE"
	StrategySquash MergeStrategy = "SQUASH"
	StrategyRebase MergeStrategy = "REBASE"
)

type ReviewState string

const (
	ReviewApproved         ReviewState = "APPROVED"
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewCommented        ReviewState = "COMMENTED"
)

type IssueState string

const (
	IssueStateOpen   IssueState = "OPEN"
	IssueStateClosed IssueState = "CLOSED"
)

type User struct {
	Id           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Project struct {
	Id                     string
	Name                   string
	OwnerId                string
	Visibility             Visibility
	DefaultBranch          string
	RequireApprovals       int
	AllowSelfMerge         bool
	RequireReviewFromOwner bool
	NextIssueNumber        int
	NextPrNumber           int
	CreatedAt              time.Time
}

type Repository struct {
	Id            string
	ProjectId     string
	DefaultBranch string
	StorageUsage  int64
	Initialized   bool
}

type Team struct {
	Id        string
	Name      string
	CreatedAt time.Time
}

type ProjectMember struct {
	ProjectId string
	UserId    string
	Role      Role
	AddedAt   time.Time
}

type TeamProjectGrant struct {
	TeamId    string
	ProjectId string
	Role      Role
}

type Branch struct {
	Id           string
	RepositoryId string
	Name         string
	HeadCommit   string
	CreatedAt    time.Time
}

type Commit struct {
	Hash         string
	RepositoryId string
	BranchId     string
	AuthorId     string
	Message      string
	ContentHash  string
	ParentHash   *string
	SecondParent *string
	Files        map[string]string
	CreatedAt    time.Time
}

type PullRequest struct {
	Id            string
	ProjectId     string
	Number        int
	Title         string
	Body          string
	AuthorId      string
	SourceBranch  string
	TargetBranch  string
	State         PrState
	MergeStrategy *MergeStrategy
	MergedAt      *time.Time
	MergedBy      *string
	MergeCommit   *string
	CreatedAt     time.Time
}

type Review struct {
	Id            string
	PullRequestId string
	ReviewerId    string
	State         ReviewState
	Body          string
	CreatedAt     time.Time
}

type BranchProtectionRule struct {
	Id                       string
	ProjectId                string
	BranchPattern            string
	RequirePullRequest       bool
	RequiredApprovingReviews int
	DismissStaleReviews      bool
	RequireCodeOwnerReview   bool
	AllowForcePushes         bool
	AllowDeletions           bool
	RequireStatusChecks      bool
	RequiredStatusChecks     []string
}

type Issue struct {
	Id        string
	ProjectId string
	Number    int
	Title     string
	Body      string
	AuthorId  string
	State     IssueState
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// LineRange is a half-open [Start, End) range of line numbers within a file.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// DiffFile describes the changed line ranges of a single file between two refs.
type DiffFile struct {
	Path    string      `json:"path"`
	Added   []LineRange `json:"added"`
	Removed []LineRange `json:"removed"`
}

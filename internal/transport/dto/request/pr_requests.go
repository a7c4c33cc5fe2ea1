package request

type CreatePrRequest struct {
	ProjectId    string `json:"project_id"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
}

type MergeRequest struct {
	Strategy string `json:"strategy"`
}

type ReviewRequest struct {
	State string `json:"state"`
	Body  string `json:"body"`
}

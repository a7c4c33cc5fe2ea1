package request

type CreateBranchRequest struct {
	Name       string `json:"name"`
	FromCommit string `json:"from_commit"`
}

type CommitRequest struct {
	Branch  string            `json:"branch"`
	Message string            `json:"message"`
	Changes map[string]string `json:"changes"`
}

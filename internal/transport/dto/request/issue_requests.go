package request

type CreateIssueRequest struct {
	ProjectId string `json:"project_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

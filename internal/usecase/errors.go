package usecase

import (
	"fmt"
	"strings"
)

type DomainError struct {
	Code    string
	Message string
	Err     error
}

func WrapError(domainError *DomainError, err error) error {
	return &DomainError{
		Code:    domainError.Code,
		Message: domainError.Message,
		Err:     err,
	}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

var (
	// AUTHENTICATION_REQUIRED
	ErrAuthenticationRequired = &DomainError{
		Code:    "AUTHENTICATION_REQUIRED",
		Message: "authentication required",
	}

	// FORBIDDEN
	ErrForbidden = &DomainError{
		Code:    "FORBIDDEN",
		Message: "insufficient role",
	}

	// NOT_FOUND
	ErrProjectNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "project not found",
	}
	ErrRepositoryNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "repository not found or not initialized",
	}
	ErrBranchNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "branch not found",
	}
	ErrPrNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "pull request not found",
	}
	ErrIssueNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "issue not found",
	}
	ErrUserNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "user not found",
	}

	// BAD_REQUEST
	ErrBadService = &DomainError{
		Code:    "BAD_REQUEST",
		Message: "unknown git service",
	}
	ErrBadBranchName = &DomainError{
		Code:    "BAD_REQUEST",
		Message: "invalid branch name",
	}
	ErrInvalidInput = &DomainError{
		Code:    "BAD_REQUEST",
		Message: "invalid input",
	}
	ErrPrNotOpen = &DomainError{
		Code:    "BAD_REQUEST",
		Message: "pull request is not open",
	}

	// PAYLOAD_TOO_LARGE
	ErrPayloadTooLarge = &DomainError{
		Code:    "PAYLOAD_TOO_LARGE",
		Message: "request body exceeds limit",
	}

	// CONFLICT
	ErrBranchExists = &DomainError{
		Code:    "CONFLICT",
		Message: "branch already exists",
	}
	ErrNonFastForward = &DomainError{
		Code:    "CONFLICT",
		Message: "non-fast-forward ref update",
	}
	ErrRuleExists = &DomainError{
		Code:    "CONFLICT",
		Message: "protection rule already exists for pattern",
	}
	ErrAlreadyExists = &DomainError{
		Code:    "CONFLICT",
		Message: "resource already exists",
	}
)

// Merge block reason codes, enumerable so callers can render them.
const (
	ReasonPrNotOpen             = "pr-not-open"
	ReasonInsufficientApprovals = "insufficient-approvals"
	ReasonChangesRequested      = "changes-requested"
	ReasonSelfMergeDisallowed   = "self-merge-disallowed"
	ReasonOwnerReviewRequired   = "owner-review-required"
)

// MergeReason is a single blocking condition reported by the merge engine.
type MergeReason struct {
	Code      string `json:"code"`
	Approvals int    `json:"approvals,omitempty"`
	Required  int    `json:"required,omitempty"`
}

// MergeBlockedError carries the full reason list for a blocked merge.
type MergeBlockedError struct {
	Reasons []MergeReason
}

func (e *MergeBlockedError) Error() string {
	codes := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		codes = append(codes, r.Code)
	}
	return "merge blocked: " + strings.Join(codes, ", ")
}

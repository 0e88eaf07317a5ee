package audit

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that are recorded inline instead of aborting a batch.
type ErrorKind string

const (
	ErrorMalformedRecord       ErrorKind = "MALFORMED_RECORD"
	ErrorRetrievalFailure      ErrorKind = "RETRIEVAL_FAILURE"
	ErrorJudgeTransportFailure ErrorKind = "JUDGE_TRANSPORT_FAILURE"
	ErrorJudgeParseFailure     ErrorKind = "JUDGE_PARSE_FAILURE"
	ErrorPolicyParseFailure    ErrorKind = "POLICY_PARSE_FAILURE"
	ErrorConfiguration         ErrorKind = "CONFIGURATION_ERROR"
)

type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("audit: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("audit: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a classified error.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// RejectedRecord is an input row that failed validation.
type RejectedRecord struct {
	Row            int
	ConversationID string
	Err            error
}

package agent

import (
	"errors"
	"fmt"
)

// Error codes surfaced in API error payloads.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeFetchTimeout   = "FETCH_TIMEOUT"
	CodeFetchNetwork   = "FETCH_NETWORK"
	CodeFetchStatus    = "FETCH_STATUS"
	CodeFetchBlocked   = "FETCH_BLOCKED"
	CodeParseFailed    = "PARSE_FAILED"
	CodeRateLimited    = "RATE_LIMITED"
	CodeCircuitOpen    = "CIRCUIT_OPEN"
	CodeResearchFailed = "RESEARCH_FAILED"
	CodeExportFailed   = "EXPORT_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
)

// AgentError carries a stable code alongside the underlying cause. It is the
// only error type the API layer renders to clients; everything else maps to
// CodeInternal.
type AgentError struct {
	Code    string
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewError builds an AgentError with the given code.
func NewError(code, message string, err error) *AgentError {
	return &AgentError{Code: code, Message: message, Err: err}
}

// FetchError marks a failure while retrieving the target URL. StatusCode is
// zero for transport-level failures.
type FetchError struct {
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Code maps the failure to a stable error code.
func (e *FetchError) Code() string {
	switch {
	case e.Timeout:
		return CodeFetchTimeout
	case e.StatusCode != 0:
		return CodeFetchStatus
	default:
		return CodeFetchNetwork
	}
}

// ParseError marks input that could not be interpreted as HTML at all.
// Merely malformed markup degrades to best-effort extraction instead.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CodeFor resolves the public error code for any error returned by an agent
// operation.
func CodeFor(err error) string {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Code
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Code()
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return CodeParseFailed
	}
	return CodeInternal
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrAgentNotFound      = fmt.Errorf("agent not found")
	ErrAgentExecution     = fmt.Errorf("agent execution failed")
	ErrMaxDelegationDepth = fmt.Errorf("max delegation depth exceeded")
	ErrPredictionParse    = fmt.Errorf("routing prediction could not be parsed")
	ErrRoutingFailure     = fmt.Errorf("no agent could answer")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrSessionNotFound    = fmt.Errorf("session not found")
	ErrHistoryStore       = fmt.Errorf("history store operation failed")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrUpstream        = fmt.Errorf("upstream service failed")

	// Embedding / vector errors.
	ErrEmbeddingFailed = fmt.Errorf("embedding generation failed")
	ErrVectorStore     = fmt.Errorf("vector store operation failed")
	ErrVectorSearch    = fmt.Errorf("vector search failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Registry.Call")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "agent", "history"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrTimeout)
}

// AgentNotFoundError is returned by the registry's chained-call path when the
// requested agent has no registered handler. Known lists the names that were
// registered at the time of the call.
type AgentNotFoundError struct {
	Name  string
	Known []string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Is lets errors.Is(err, ErrAgentNotFound) match.
func (e *AgentNotFoundError) Is(target error) bool { return target == ErrAgentNotFound }

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeDuplicate          ErrorCode = "DUPLICATE"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeProviderError      ErrorCode = "PROVIDER_ERROR"
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate     ErrorCode = "AGENT_DUPLICATE"
	CodeAgentExecution     ErrorCode = "AGENT_EXECUTION"
	CodeAgentTimeout       ErrorCode = "AGENT_TIMEOUT"
	CodeMaxDelegationDepth ErrorCode = "MAX_DELEGATION_DEPTH"
	CodePredictionParse    ErrorCode = "PREDICTION_PARSE"
	CodeRoutingFailure     ErrorCode = "ROUTING_FAILURE"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	CodeHistoryStore       ErrorCode = "HISTORY_STORE"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeUpstream           ErrorCode = "UPSTREAM"
	CodeEmbeddingFailed    ErrorCode = "EMBEDDING_FAILED"
	CodeVectorStore        ErrorCode = "VECTOR_STORE"
	CodeVectorSearch       ErrorCode = "VECTOR_SEARCH"
)

// errorCodeMap maps each sentinel error to its ErrorCode.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:           CodeNotFound,
	ErrDuplicate:          CodeDuplicate,
	ErrTimeout:            CodeTimeout,
	ErrInvalidInput:       CodeInvalidInput,
	ErrProviderError:      CodeProviderError,
	ErrAgentNotFound:      CodeAgentNotFound,
	ErrAgentExecution:     CodeAgentExecution,
	ErrMaxDelegationDepth: CodeMaxDelegationDepth,
	ErrPredictionParse:    CodePredictionParse,
	ErrRoutingFailure:     CodeRoutingFailure,
	ErrConfigLoad:         CodeConfigLoad,
	ErrSessionNotFound:    CodeSessionNotFound,
	ErrHistoryStore:       CodeHistoryStore,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrUpstream:           CodeUpstream,
	ErrEmbeddingFailed:    CodeEmbeddingFailed,
	ErrVectorStore:        CodeVectorStore,
	ErrVectorSearch:       CodeVectorSearch,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":   CodeAgentNotFound,
		"session": CodeSessionNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrTimeout: {
		"agent": CodeAgentTimeout,
	},
	ErrProviderError: {
		"embedding": CodeEmbeddingFailed,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}

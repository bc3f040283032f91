package detect

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for scan failures.
var (
	// ErrNoTargets indicates that no scan targets were supplied.
	ErrNoTargets = errors.New("no scan targets specified")

	// ErrInvalidTarget indicates a target that cannot be turned into a URL.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrTargetUnreachable indicates the initial response for a target could
	// not be captured. Rule level fetch failures never surface as this error.
	ErrTargetUnreachable = errors.New("target unreachable")

	// ErrSignaturePanic is wrapped by SignatureError when evaluation panicked.
	ErrSignaturePanic = errors.New("signature evaluation panicked")
)

// Error codes used by the CLI suggestion system.
const (
	errorCodeInvalidTarget = "INVALID_TARGET"
	errorCodeUnreachable   = "TARGET_UNREACHABLE"
	errorCodeCancelled     = "SCAN_CANCELLED"
	errorCodeScanFailure   = "SCAN_FAILURE"
)

// SignatureError records a signature that failed to evaluate. The signature
// contributes no findings to the result.
type SignatureError struct {
	Signature string
	Err       error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature %s: %v", e.Signature, e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error message instead of the opaque error value.
func (e *SignatureError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Signature string `json:"signature"`
		Error     string `json:"error"`
	}{e.Signature, e.Err.Error()})
}

// ErrorCode resolves a scan error into a CLI error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNoTargets), errors.Is(err, ErrInvalidTarget):
		return errorCodeInvalidTarget
	case errors.Is(err, ErrTargetUnreachable):
		return errorCodeUnreachable
	case isCancellation(err):
		return errorCodeCancelled
	}

	return errorCodeScanFailure
}

// ExitCode maps scan errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case errorCodeInvalidTarget:
		return 2
	case errorCodeUnreachable:
		return 7
	default:
		return 1
	}
}

// Suggestions provides CLI hints for scan errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeInvalidTarget:
		return []string{
			"Provide a target:           webscope scan mg.example.com",
			"Scan multiple hosts:        webscope scan https://a.example http://10.0.0.2:8080",
		}
	case errorCodeUnreachable:
		return []string{
			"Check the host answers:     curl -sI <target>",
			"Raise the fetch timeout:    webscope scan <target> --scan.fetch_timeout 30s",
			"Allow self-signed TLS:      webscope scan <target> --scan.insecure_skip_verify",
		}
	case errorCodeCancelled:
		return nil
	default:
		return []string{
			"Retry with verbose logs:    webscope scan <target> --debug",
		}
	}
}

package metrics

import (
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Error type constants for metrics labels.
const (
	ErrorTypeAuth        = "auth"
	ErrorTypeConflict    = "conflict"
	ErrorTypeNotFound    = "not_found"
	ErrorTypeRateLimit   = "rate_limit"
	ErrorTypeServerError = "server_error"
	ErrorTypeClientError = "client_error"
	ErrorTypeTimeout     = "timeout"
	ErrorTypeNetwork     = "network"
	ErrorTypeUnknown     = "unknown"
)

// ClassifyAPIError classifies a Kubernetes API error for metrics labeling.
// Returns an empty string for nil errors.
func ClassifyAPIError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err):
		return ErrorTypeAuth
	case apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err):
		return ErrorTypeConflict
	case apierrors.IsNotFound(err):
		return ErrorTypeNotFound
	case apierrors.IsTooManyRequests(err):
		return ErrorTypeRateLimit
	case apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err):
		return ErrorTypeTimeout
	case apierrors.IsInternalError(err) || apierrors.IsServiceUnavailable(err):
		return ErrorTypeServerError
	case apierrors.IsInvalid(err) || apierrors.IsBadRequest(err):
		return ErrorTypeClientError
	}

	return classifyByErrorMessage(err.Error())
}

func classifyByErrorMessage(errStr string) string {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(errLower, "connection refused") || strings.Contains(errLower, "no such host"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}

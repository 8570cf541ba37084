package metrics

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestClassifyAPIError(t *testing.T) {
	t.Parallel()

	svcResource := schema.GroupResource{Group: "", Resource: "services"}

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "unauthorized",
			err:      apierrors.NewUnauthorized("bad token"),
			expected: ErrorTypeAuth,
		},
		{
			name:     "forbidden",
			err:      apierrors.NewForbidden(svcResource, "web-service", errors.New("rbac")),
			expected: ErrorTypeAuth,
		},
		{
			name:     "not found",
			err:      apierrors.NewNotFound(svcResource, "web-service"),
			expected: ErrorTypeNotFound,
		},
		{
			name:     "already exists",
			err:      apierrors.NewAlreadyExists(svcResource, "web-service"),
			expected: ErrorTypeConflict,
		},
		{
			name:     "conflict",
			err:      apierrors.NewConflict(svcResource, "web-service", errors.New("stale")),
			expected: ErrorTypeConflict,
		},
		{
			name:     "too many requests",
			err:      apierrors.NewTooManyRequests("slow down", 5),
			expected: ErrorTypeRateLimit,
		},
		{
			name:     "server timeout",
			err:      apierrors.NewServerTimeout(svcResource, "list", 3),
			expected: ErrorTypeTimeout,
		},
		{
			name:     "service unavailable",
			err:      apierrors.NewServiceUnavailable("down"),
			expected: ErrorTypeServerError,
		},
		{
			name:     "bad request",
			err:      apierrors.NewBadRequest("nope"),
			expected: ErrorTypeClientError,
		},
		{
			name:     "wrapped api error",
			err:      errors.Wrap(apierrors.NewUnauthorized("bad token"), "reconcile failed"),
			expected: ErrorTypeAuth,
		},
		{
			name:     "plain timeout message",
			err:      errors.New("context deadline exceeded"),
			expected: ErrorTypeTimeout,
		},
		{
			name:     "network message",
			err:      errors.New("dial tcp: connection refused"),
			expected: ErrorTypeNetwork,
		},
		{
			name:     "unknown",
			err:      errors.New("something odd"),
			expected: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, ClassifyAPIError(tt.err))
		})
	}
}

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mthaddon/k8s-ingress-operator/internal/config"
	"github.com/mthaddon/k8s-ingress-operator/internal/relation"
)

func TestResolve_LocalConfigWins(t *testing.T) {
	t.Parallel()

	local := config.Settings{
		ServiceHostname: "local.example.com",
		ServiceName:     "local",
		ServicePort:     9090,
	}
	cached := relation.Payload{
		"service-hostname": "relation.example.com",
		"service-name":     "relation",
		"service-port":     "8080",
	}

	resolved := config.Resolve(local, cached, "model")

	assert.Equal(t, "local.example.com", resolved.ServiceHostname)
	assert.Equal(t, "local", resolved.ServiceName)
	assert.Equal(t, 9090, resolved.ServicePort)
}

func TestResolve_RelationDataFillsGaps(t *testing.T) {
	t.Parallel()

	cached := relation.Payload{
		"service-hostname": "relation.example.com",
		"service-name":     "relation",
		"service-port":     "8080",
		"tls-secret-name":  "relation-tls",
	}

	resolved := config.Resolve(config.Settings{}, cached, "model")

	assert.Equal(t, "relation.example.com", resolved.ServiceHostname)
	assert.Equal(t, "relation", resolved.ServiceName)
	assert.Equal(t, 8080, resolved.ServicePort)
	assert.Equal(t, "relation-tls", resolved.TLSSecretName)
}

func TestResolve_NamespaceFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		local    config.Settings
		cached   relation.Payload
		expected string
	}{
		{
			name:     "local namespace wins",
			local:    config.Settings{ServiceNamespace: "local-ns"},
			cached:   relation.Payload{"service-namespace": "relation-ns"},
			expected: "local-ns",
		},
		{
			name:     "relation namespace next",
			cached:   relation.Payload{"service-namespace": "relation-ns"},
			expected: "relation-ns",
		},
		{
			name:     "model namespace last",
			expected: "model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolved := config.Resolve(tt.local, tt.cached, "model")
			assert.Equal(t, tt.expected, resolved.Namespace)
		})
	}
}

func TestResolve_MaxBodySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		local    string
		cached   string
		expected string
	}{
		{name: "unset", expected: ""},
		{name: "zero is treated as absent", local: "0", expected: ""},
		{name: "zero from relation is absent", cached: "0", expected: ""},
		{name: "unparsable is absent", local: "lots", expected: ""},
		{name: "local value gains suffix", local: "20", expected: "20m"},
		{name: "relation value gains suffix", cached: "10", expected: "10m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			local := config.Settings{MaxBodySize: tt.local}
			cached := relation.Payload{"max-body-size": tt.cached}

			resolved := config.Resolve(local, cached, "model")
			assert.Equal(t, tt.expected, resolved.MaxBodySize)
		})
	}
}

func TestResolve_SessionCookieMaxAge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		local    string
		cached   string
		expected string
	}{
		{name: "unset", expected: ""},
		{name: "zero suppressed", local: "0", expected: ""},
		{name: "local value kept without suffix", local: "3600", expected: "3600"},
		{name: "relation fallback", cached: "600", expected: "600"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			local := config.Settings{SessionCookieMaxAge: tt.local}
			cached := relation.Payload{"session-cookie-max-age": tt.cached}

			resolved := config.Resolve(local, cached, "model")
			assert.Equal(t, tt.expected, resolved.SessionCookieMaxAge)
		})
	}
}

func TestResolve_DerivedNames(t *testing.T) {
	t.Parallel()

	resolved := config.Resolve(config.Settings{ServiceName: "web"}, nil, "model")

	assert.Equal(t, "web-service", resolved.ServiceResourceName())
	assert.Equal(t, "web-ingress", resolved.IngressResourceName())
}

func TestResolve_IngressNameFallsBackToRelationData(t *testing.T) {
	t.Parallel()

	cached := relation.Payload{"service-name": "cached-app"}

	resolved := config.Resolve(config.Settings{}, cached, "model")

	assert.Equal(t, "cached-app-ingress", resolved.IngressResourceName())
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()

	local := config.Settings{
		ServiceHostname:     "web.example.com",
		ServiceName:         "web",
		ServicePort:         8080,
		MaxBodySize:         "20",
		SessionCookieMaxAge: "3600",
	}
	cached := relation.Payload{"service-namespace": "apps"}

	first := config.Resolve(local, cached, "model")
	second := config.Resolve(local, cached, "model")

	require.Equal(t, first, second)
}

// Package config resolves the canonical desired state from local operator
// configuration and cached relation data.
package config

// Settings holds the local operator configuration values. Empty strings and
// zero ports mean "not set"; the resolver then falls back to relation data.
type Settings struct {
	// ServiceHostname is the external hostname the ingress should answer on.
	ServiceHostname string

	// ServiceName is the logical name of the backend service. It doubles as
	// the pod selector value and the base for generated resource names.
	ServiceName string

	// ServicePort is the backend port, 1-65535. Zero means unset.
	ServicePort int

	// ServiceNamespace is the namespace the Service and Ingress are managed
	// in. Empty falls back to relation data, then to the operator's own
	// namespace.
	ServiceNamespace string

	// MaxBodySize is the proxy body size limit in megabytes, without unit.
	MaxBodySize string

	// SessionCookieMaxAge enables cookie-based session affinity when set to
	// a non-zero number of seconds.
	SessionCookieMaxAge string

	// TLSSecretName points at an existing TLS secret for the hostname.
	TLSSecretName string

	// KubeConfig is raw kubeconfig text. When set it overrides in-cluster
	// credentials.
	KubeConfig string
}

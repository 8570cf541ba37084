package config

import (
	"strconv"

	"github.com/mthaddon/k8s-ingress-operator/internal/relation"
)

const (
	serviceNameSuffix = "-service"
	ingressNameSuffix = "-ingress"
)

// Resolved is the canonical desired state: one value per attribute after
// merging local settings, cached relation data, and defaults. All generated
// cluster resources derive from it and nothing else.
type Resolved struct {
	ServiceHostname string
	ServiceName     string
	ServicePort     int
	Namespace       string

	// MaxBodySize carries the "m" unit suffix already applied, or "" when
	// the limit is unset or zero.
	MaxBodySize string

	// SessionCookieMaxAge is the affinity cookie lifetime in seconds, or ""
	// when affinity is disabled.
	SessionCookieMaxAge string

	TLSSecretName string
}

// ServiceResourceName is the deterministic name of the managed Service.
// Kept distinct from ServiceName to avoid colliding with services other
// tooling creates for the application itself.
func (r Resolved) ServiceResourceName() string {
	return r.ServiceName + serviceNameSuffix
}

// IngressResourceName is the deterministic name of the managed Ingress.
func (r Resolved) IngressResourceName() string {
	return r.ServiceName + ingressNameSuffix
}

// Resolve merges local settings with the cached relation payload into the
// canonical desired state. It is a pure function: local values win when
// present, relation data fills the gaps, and defaultNamespace backs the
// namespace. Numeric optional fields that resolve to zero are treated as
// absent so they cannot accidentally switch their annotations on.
func Resolve(local Settings, cached relation.Payload, defaultNamespace string) Resolved {
	resolved := Resolved{
		ServiceHostname: firstOf(local.ServiceHostname, cached.Get(relation.KeyServiceHostname)),
		ServiceName:     firstOf(local.ServiceName, cached.Get(relation.KeyServiceName)),
		TLSSecretName:   firstOf(local.TLSSecretName, cached.Get(relation.KeyTLSSecretName)),
	}

	resolved.ServicePort = local.ServicePort
	if resolved.ServicePort == 0 {
		resolved.ServicePort = atoiOrZero(cached.Get(relation.KeyServicePort))
	}

	resolved.Namespace = firstOf(
		local.ServiceNamespace,
		cached.Get(relation.KeyServiceNamespace),
		defaultNamespace,
	)

	if size := positiveNumber(firstOf(local.MaxBodySize, cached.Get(relation.KeyMaxBodySize))); size != "" {
		resolved.MaxBodySize = size + "m"
	}

	resolved.SessionCookieMaxAge = positiveNumber(
		firstOf(local.SessionCookieMaxAge, cached.Get(relation.KeySessionCookieMaxAge)),
	)

	return resolved
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}

// positiveNumber normalizes a numeric string, mapping zero, negatives, and
// unparsable input to "" so zero never reads as "set".
func positiveNumber(s string) string {
	n := atoiOrZero(s)
	if n <= 0 {
		return ""
	}

	return strconv.Itoa(n)
}

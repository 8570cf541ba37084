// Package relation models the peer-supplied ingress relation payload: the
// flat string-keyed record a related application publishes to describe the
// service it wants exposed.
package relation

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Recognized payload keys.
const (
	KeyServiceHostname     = "service-hostname"
	KeyServiceName         = "service-name"
	KeyServicePort         = "service-port"
	KeyMaxBodySize         = "max-body-size"
	KeyServiceNamespace    = "service-namespace"
	KeySessionCookieMaxAge = "session-cookie-max-age"
	KeyTLSSecretName       = "tls-secret-name"
)

// RequiredFields are the keys a payload must carry before any cluster
// resource is derived from it.
//
//nolint:gochecknoglobals // fixed key sets
var RequiredFields = []string{
	KeyServiceHostname,
	KeyServiceName,
	KeyServicePort,
}

// OptionalFields are recognized but not mandatory.
//
//nolint:gochecknoglobals // fixed key sets
var OptionalFields = []string{
	KeyMaxBodySize,
	KeyServiceNamespace,
	KeySessionCookieMaxAge,
	KeyTLSSecretName,
}

// Payload is a flat relation data record as published by the peer.
type Payload map[string]string

// Get returns the value for key, or "" when absent.
func (p Payload) Get(key string) string {
	if p == nil {
		return ""
	}

	return p[key]
}

// Normalize returns a copy of p restricted to the recognized key set.
// Unknown keys are dropped; recognized keys are carried over even when empty
// so validation sees the full picture.
func (p Payload) Normalize() Payload {
	normalized := make(Payload, len(RequiredFields)+len(OptionalFields))

	for _, key := range RequiredFields {
		normalized[key] = p.Get(key)
	}

	for _, key := range OptionalFields {
		normalized[key] = p.Get(key)
	}

	return normalized
}

// MissingFieldsError reports required payload fields with no value.
type MissingFieldsError struct {
	// Fields is sorted alphabetically.
	Fields []string
}

// Error returns the sorted, comma-joined field list.
func (e *MissingFieldsError) Error() string {
	return "missing required relation fields: " + strings.Join(e.Fields, ", ")
}

// FieldList returns the sorted fields joined with ", " for status messages.
func (e *MissingFieldsError) FieldList() string {
	return strings.Join(e.Fields, ", ")
}

// Validate checks that every required field has a non-empty value. It
// returns a *MissingFieldsError naming the absent fields, or nil when the
// payload is complete. The payload itself is never modified.
func Validate(p Payload) error {
	var missing []string

	for _, field := range RequiredFields {
		if p.Get(field) == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)

	return errors.WithStack(&MissingFieldsError{Fields: missing})
}

// First selects the payload to use when one or more peers published data.
// Only the first peer is honored; additional peers are reported with a
// warning and otherwise ignored.
func First(payloads []Payload) (Payload, bool) {
	if len(payloads) == 0 {
		return nil, false
	}

	if len(payloads) > 1 {
		slog.Warn("multiple ingress relations detected, using only the first one for relation data",
			"count", len(payloads),
		)
	}

	return payloads[0], true
}

// Package operator holds the event-driven core: the handlers that turn
// configuration and relation changes into reconciled cluster state and a
// status report. Handlers assume the single-threaded, run-to-completion
// execution the Dispatcher provides; no internal locking is needed.
package operator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mthaddon/k8s-ingress-operator/internal/config"
	"github.com/mthaddon/k8s-ingress-operator/internal/metrics"
	"github.com/mthaddon/k8s-ingress-operator/internal/relation"
	"github.com/mthaddon/k8s-ingress-operator/internal/state"
)

// Reconciler converges cluster state and reports the managed service's
// cluster IPs. Satisfied by *reconciler.Reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, res config.Resolved) ([]string, error)
}

// Operator wires the reconciliation core together. All collaborators are
// injected; Operator itself holds no cluster or persistence specifics.
type Operator struct {
	// Settings snapshots the current local configuration. Called fresh on
	// every event so config file edits are picked up.
	Settings func() config.Settings

	// Namespace is the operator's own namespace, the final namespace
	// fallback (the "model name").
	Namespace string

	// Store caches the last validated relation payload across restarts.
	Store state.Store

	// Reconciler applies the desired state to the cluster.
	Reconciler Reconciler

	// IsLeader gates every mutating path. Non-leaders observe only.
	IsLeader func() bool

	// SetStatus publishes the operator status. May be nil.
	SetStatus func(Status)

	// Metrics may be nil.
	Metrics metrics.Collector

	logger *slog.Logger
}

// New creates an Operator and validates the required collaborators.
func New(op Operator) (*Operator, error) {
	if op.Settings == nil {
		return nil, errors.New("operator requires a settings source")
	}

	if op.Store == nil {
		return nil, errors.New("operator requires a state store")
	}

	if op.Reconciler == nil {
		return nil, errors.New("operator requires a reconciler")
	}

	if op.IsLeader == nil {
		return nil, errors.New("operator requires a leadership predicate")
	}

	op.logger = slog.Default().With("component", "operator")

	return &op, nil
}

// HandleConfigChanged recomputes the canonical desired state and, when this
// instance is the leader and a service name is known, converges the cluster
// and reports the assigned service IPs. Reconcile errors propagate to the
// dispatcher; validation never runs here because cached payloads were
// validated before being stored.
func (o *Operator) HandleConfigChanged(ctx context.Context) error {
	message := ""

	if o.IsLeader() {
		cached, err := o.Store.Load(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to load cached relation data")
		}

		resolved := config.Resolve(o.Settings(), cached, o.Namespace)

		if resolved.ServiceName != "" {
			ips, err := o.Reconciler.Reconcile(ctx, resolved)
			if err != nil {
				return err
			}

			message = "Ingress with service IP(s): " + strings.Join(ips, ", ")
		}
	}

	o.publish(Active(message))

	return nil
}

// HandleRelationChanged validates the freshly received relation data,
// caches it, and runs a full reconcile. Invalid payloads leave the cache
// untouched and surface only as a blocked status plus a log line.
func (o *Operator) HandleRelationChanged(ctx context.Context, payloads []relation.Payload) error {
	if !o.IsLeader() {
		return nil
	}

	payload, ok := relation.First(payloads)
	if !ok {
		return nil
	}

	normalized := payload.Normalize()

	if err := relation.Validate(normalized); err != nil {
		var missing *relation.MissingFieldsError
		if errors.As(err, &missing) {
			o.logger.Error("missing required data fields for ingress relation",
				"fields", missing.FieldList(),
			)
			o.publish(Blocked("Missing fields for ingress: " + missing.FieldList()))

			if o.Metrics != nil {
				o.Metrics.RecordValidationFailure(ctx, len(missing.Fields))
			}

			return nil
		}

		return err
	}

	if err := o.Store.Save(ctx, normalized); err != nil {
		return errors.Wrap(err, "failed to cache relation data")
	}

	return o.HandleConfigChanged(ctx)
}

// HandleUpgrade re-reads the cached relation payload after the restart that
// accompanies an upgrade, so the canonical state can be re-derived from the
// cache alone. Reconciliation itself waits for the config-changed signal
// that follows.
func (o *Operator) HandleUpgrade(ctx context.Context) error {
	cached, err := o.Store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to reload cached relation data")
	}

	o.logger.Info("reloaded relation data cache", "fields", len(cached))

	return nil
}

func (o *Operator) publish(status Status) {
	if o.SetStatus != nil {
		o.SetStatus(status)
	}
}

// Package controller wires the operator together and runs it: state store,
// Kubernetes client bootstrap, leader election, event dispatch, and the
// observability endpoints.
package controller

import (
	"context"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mthaddon/k8s-ingress-operator/internal/config"
	"github.com/mthaddon/k8s-ingress-operator/internal/kube"
	"github.com/mthaddon/k8s-ingress-operator/internal/leader"
	"github.com/mthaddon/k8s-ingress-operator/internal/metrics"
	"github.com/mthaddon/k8s-ingress-operator/internal/operator"
	"github.com/mthaddon/k8s-ingress-operator/internal/reconciler"
	"github.com/mthaddon/k8s-ingress-operator/internal/relation"
	"github.com/mthaddon/k8s-ingress-operator/internal/server"
	"github.com/mthaddon/k8s-ingress-operator/internal/state"
)

const eventQueueSize = 16

// Config holds all configuration options for the operator runtime. Values
// are typically populated from CLI flags or environment variables.
type Config struct {
	// Namespace is the operator's own namespace, used as the namespace
	// fallback and for the leader election lease. Empty triggers
	// auto-detection from the pod environment.
	Namespace string

	// StateDB is the SQLite DSN for the relation data cache.
	StateDB string

	// RelationDataPath is the YAML file the relation transport delivers
	// payloads through. Empty disables the relation source.
	RelationDataPath string

	// KubeconfigPath is the fixed path explicit kubeconfig text is written
	// to before loading.
	KubeconfigPath string

	// LeaderElect enables Lease-based leader election. Required when
	// running multiple replicas; without it every instance mutates.
	LeaderElect bool

	// LeaderElectionNamespace and LeaderElectionName locate the lease.
	LeaderElectionNamespace string
	LeaderElectionName      string

	// MetricsAddr and HealthAddr are the observability listen addresses.
	MetricsAddr string
	HealthAddr  string

	// Settings snapshots the current local operator configuration.
	Settings func() config.Settings

	// ConfigChanges signals local configuration changes. May be nil.
	ConfigChanges <-chan struct{}
}

// Run starts the operator and blocks until ctx is cancelled or startup
// fails. Event handling is strictly serial; the startup sequence replays an
// upgrade event, any present relation data, and one config-changed event so
// a restarted operator converges without waiting for external signals.
//
//nolint:funlen // startup wiring is sequential by nature
func Run(ctx context.Context, cfg *Config) error {
	logger := slog.Default().With("component", "controller")

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = detectNamespace()
		logger.Info("detected operator namespace", "namespace", namespace)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	srv := server.New(cfg.HealthAddr, cfg.MetricsAddr, registry)

	store, err := state.OpenSQLiteStore(cfg.StateDB)
	if err != nil {
		return err
	}

	clients := &kube.Provider{
		KubeConfig:     func() string { return cfg.Settings().KubeConfig },
		KubeconfigPath: cfg.KubeconfigPath,
	}

	isLeader, err := setupLeadership(ctx, cfg, namespace, clients, collector)
	if err != nil {
		return err
	}

	op, err := operator.New(operator.Operator{
		Settings:   cfg.Settings,
		Namespace:  namespace,
		Store:      store,
		Reconciler: reconciler.New(clients, collector),
		IsLeader:   isLeader,
		SetStatus: func(status operator.Status) {
			logger.Info("status", "state", string(status.State), "message", status.Message)
			srv.SetStatus(status)
		},
		Metrics: collector,
	})
	if err != nil {
		return err
	}

	dispatcher := operator.NewDispatcher(op, collector, eventQueueSize)

	serverErr := make(chan error, 1)

	go func() {
		serverErr <- srv.Run(ctx)
	}()

	var source *relation.FileSource
	if cfg.RelationDataPath != "" {
		source = relation.NewFileSource(cfg.RelationDataPath)
	}

	if err := enqueueStartupEvents(ctx, dispatcher, source); err != nil {
		return err
	}

	if err := watchInputs(ctx, cfg, dispatcher, source); err != nil {
		return err
	}

	srv.SetReady(true)
	logger.Info("operator started", "namespace", namespace, "leaderElect", cfg.LeaderElect)

	go dispatcher.Run(ctx)

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// setupLeadership returns the leadership predicate: a Lease-backed elector
// when enabled, a constant-true predicate otherwise.
func setupLeadership(
	ctx context.Context,
	cfg *Config,
	namespace string,
	clients kube.ClientSource,
	collector metrics.Collector,
) (func() bool, error) {
	if !cfg.LeaderElect {
		collector.SetLeader(ctx, true)

		return leader.Always(), nil
	}

	clientset, err := clients.Clientset()
	if err != nil {
		return nil, errors.Wrap(err, "failed to authenticate for leader election")
	}

	leaseNamespace := cfg.LeaderElectionNamespace
	if leaseNamespace == "" {
		leaseNamespace = namespace
	}

	elector := leader.NewElector(clientset, leaseNamespace, cfg.LeaderElectionName, collector)

	go func() {
		if err := elector.Run(ctx); err != nil {
			slog.Error("leader election failed", "error", err)
		}
	}()

	return elector.IsLeader, nil
}

// enqueueStartupEvents replays the post-restart sequence: reload the cache,
// resync relation data when the transport already has some, then one full
// reconcile pass.
func enqueueStartupEvents(ctx context.Context, dispatcher *operator.Dispatcher, source *relation.FileSource) error {
	if err := dispatcher.Enqueue(ctx, operator.Event{Type: operator.EventUpgrade}); err != nil {
		return errors.Wrap(err, "failed to enqueue upgrade event")
	}

	if source != nil {
		payloads, err := source.Fetch(ctx)
		if err != nil {
			return err
		}

		if len(payloads) > 0 {
			event := operator.Event{Type: operator.EventRelationChanged, Payloads: payloads}
			if err := dispatcher.Enqueue(ctx, event); err != nil {
				return errors.Wrap(err, "failed to enqueue relation event")
			}
		}
	}

	if err := dispatcher.Enqueue(ctx, operator.Event{Type: operator.EventConfigChanged}); err != nil {
		return errors.Wrap(err, "failed to enqueue config event")
	}

	return nil
}

// watchInputs feeds config and relation data changes into the dispatcher.
func watchInputs(ctx context.Context, cfg *Config, dispatcher *operator.Dispatcher, source *relation.FileSource) error {
	if cfg.ConfigChanges != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-cfg.ConfigChanges:
					if !ok {
						return
					}

					event := operator.Event{Type: operator.EventConfigChanged}
					if err := dispatcher.Enqueue(ctx, event); err != nil {
						return
					}
				}
			}
		}()
	}

	if source == nil {
		return nil
	}

	changes, err := source.Watch(ctx)
	if err != nil {
		return err
	}

	go func() {
		for range changes {
			payloads, err := source.Fetch(ctx)
			if err != nil {
				slog.Warn("failed to read relation data", "error", err)

				continue
			}

			event := operator.Event{Type: operator.EventRelationChanged, Payloads: payloads}
			if err := dispatcher.Enqueue(ctx, event); err != nil {
				return
			}
		}
	}()

	return nil
}

// detectNamespace resolves the operator's own namespace from the pod
// environment, falling back to "default" outside a cluster.
func detectNamespace() string {
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}

	data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace")
	if err == nil && len(data) > 0 {
		return string(data)
	}

	return "default"
}

// Package leader provides the leadership predicate gating cluster
// mutations. With leader election enabled it is backed by a Kubernetes
// Lease; otherwise a single instance is assumed and the predicate is
// constantly true.
package leader

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/mthaddon/k8s-ingress-operator/internal/metrics"
)

const (
	leaseDuration = 15 * time.Second
	renewDeadline = 10 * time.Second
	retryPeriod   = 2 * time.Second
)

// Elector tracks whether this instance currently holds the leadership
// lease. The zero value reports "not leading" until Run acquires the lease.
type Elector struct {
	clientset kubernetes.Interface
	namespace string
	leaseName string
	identity  string
	metrics   metrics.Collector
	logger    *slog.Logger

	leading atomic.Bool
}

// NewElector creates an Elector using the given lease coordinates. Identity
// is derived from the hostname plus a random suffix so replicas never clash.
func NewElector(clientset kubernetes.Interface, namespace, leaseName string, collector metrics.Collector) *Elector {
	hostname, _ := os.Hostname()

	return &Elector{
		clientset: clientset,
		namespace: namespace,
		leaseName: leaseName,
		identity:  hostname + "_" + uuid.NewString(),
		metrics:   collector,
		logger:    slog.Default().With("component", "leader-elector"),
	}
}

// IsLeader reports whether this instance holds the lease right now.
func (e *Elector) IsLeader() bool {
	return e.leading.Load()
}

// Run participates in the election until ctx ends. It blocks, re-entering
// the election whenever leadership is lost.
func (e *Elector) Run(ctx context.Context) error {
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      e.leaseName,
			Namespace: e.namespace,
		},
		Client: e.clientset.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: e.identity,
		},
	}

	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		ReleaseOnCancel: true,
		LeaseDuration:   leaseDuration,
		RenewDeadline:   renewDeadline,
		RetryPeriod:     retryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				e.leading.Store(true)
				e.setLeaderMetric(ctx, true)
				e.logger.Info("acquired leadership", "lease", e.leaseName, "identity", e.identity)
			},
			OnStoppedLeading: func() {
				e.leading.Store(false)
				e.setLeaderMetric(context.Background(), false)
				e.logger.Info("lost leadership", "lease", e.leaseName, "identity", e.identity)
			},
			OnNewLeader: func(identity string) {
				if identity != e.identity {
					e.logger.Info("observed new leader", "leader", identity)
				}
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to configure leader election")
	}

	for {
		elector.Run(ctx)

		select {
		case <-ctx.Done():
			return nil
		default:
			// Leadership lost; rejoin the election.
		}
	}
}

func (e *Elector) setLeaderMetric(ctx context.Context, leading bool) {
	if e.metrics != nil {
		e.metrics.SetLeader(ctx, leading)
	}
}

// Always returns a predicate that always reports leadership. Used when
// leader election is disabled (single-instance deployments).
func Always() func() bool {
	return func() bool { return true }
}

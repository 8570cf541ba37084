// Package reconciler converges the managed Service and Ingress to the
// canonical desired state: list what exists, patch it when present, create
// it when not. The list-then-write sequence is not transactional against
// concurrent external mutation; that race is accepted.
package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"github.com/mthaddon/k8s-ingress-operator/internal/config"
	"github.com/mthaddon/k8s-ingress-operator/internal/kube"
	"github.com/mthaddon/k8s-ingress-operator/internal/metrics"
	"github.com/mthaddon/k8s-ingress-operator/internal/resources"
)

// ReconcileStatusSuccess and ReconcileStatusError label reconcile metrics.
const (
	ReconcileStatusSuccess = "success"
	ReconcileStatusError   = "error"
)

// Reconciler issues the cluster mutations deriving from a Resolved state.
type Reconciler struct {
	Clients kube.ClientSource
	Metrics metrics.Collector

	logger *slog.Logger
}

// New creates a Reconciler using the given client source and metrics sink.
func New(clients kube.ClientSource, collector metrics.Collector) *Reconciler {
	return &Reconciler{
		Clients: clients,
		Metrics: collector,
		logger:  slog.Default().With("component", "reconciler"),
	}
}

// Reconcile converges the Service and then the Ingress, and returns the
// cluster IPs assigned to the managed Service. Both flows re-list live state
// first and choose create or patch per resource; there are no retries and no
// timeouts beyond what the API client imposes.
func (r *Reconciler) Reconcile(ctx context.Context, res config.Resolved) ([]string, error) {
	startTime := time.Now()

	ips, err := r.reconcile(ctx, res)
	if r.Metrics != nil {
		status := ReconcileStatusSuccess
		if err != nil {
			status = ReconcileStatusError
		}

		r.Metrics.RecordReconcileDuration(ctx, status, time.Since(startTime))
	}

	return ips, err
}

func (r *Reconciler) reconcile(ctx context.Context, res config.Resolved) ([]string, error) {
	clientset, err := r.Clients.Clientset()
	if err != nil {
		return nil, errors.Wrap(err, "failed to authenticate to the cluster")
	}

	if err := r.defineService(ctx, clientset, res); err != nil {
		return nil, err
	}

	if err := r.defineIngress(ctx, clientset, res); err != nil {
		return nil, err
	}

	return r.serviceIPs(ctx, clientset, res)
}

// defineService creates or updates the managed Service.
func (r *Reconciler) defineService(ctx context.Context, clientset kubernetes.Interface, res config.Resolved) error {
	body := resources.BuildService(res)
	services := clientset.CoreV1().Services(res.Namespace)

	existing, err := services.List(ctx, metav1.ListOptions{})
	if err != nil {
		r.recordAPIError(ctx, "list", err)

		return errors.Wrapf(err, "failed to list services in namespace %s", res.Namespace)
	}

	found := false

	for i := range existing.Items {
		if existing.Items[i].Name == res.ServiceResourceName() {
			found = true

			break
		}
	}

	if found {
		patch, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode service patch")
		}

		_, err = services.Patch(ctx, res.ServiceResourceName(), types.MergePatchType, patch, metav1.PatchOptions{})
		if err != nil {
			r.recordAPIError(ctx, "patch", err)

			return errors.Wrapf(err, "failed to patch service %s", res.ServiceResourceName())
		}

		r.recordResourceOp(ctx, "service", "patch")
		r.logger.Info("service updated", "namespace", res.Namespace, "service", res.ServiceName)

		return nil
	}

	_, err = services.Create(ctx, body, metav1.CreateOptions{})
	if err != nil {
		r.recordAPIError(ctx, "create", err)

		return errors.Wrapf(err, "failed to create service %s", res.ServiceResourceName())
	}

	r.recordResourceOp(ctx, "service", "create")
	r.logger.Info("service created", "namespace", res.Namespace, "service", res.ServiceName)

	return nil
}

// defineIngress creates or updates the managed Ingress.
func (r *Reconciler) defineIngress(ctx context.Context, clientset kubernetes.Interface, res config.Resolved) error {
	body := resources.BuildIngress(res)
	ingresses := clientset.NetworkingV1().Ingresses(res.Namespace)

	existing, err := ingresses.List(ctx, metav1.ListOptions{})
	if err != nil {
		r.recordAPIError(ctx, "list", err)

		return errors.Wrapf(err, "failed to list ingresses in namespace %s", res.Namespace)
	}

	found := false

	for i := range existing.Items {
		if existing.Items[i].Name == res.IngressResourceName() {
			found = true

			break
		}
	}

	if found {
		patch, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode ingress patch")
		}

		_, err = ingresses.Patch(ctx, res.IngressResourceName(), types.MergePatchType, patch, metav1.PatchOptions{})
		if err != nil {
			r.recordAPIError(ctx, "patch", err)

			return errors.Wrapf(err, "failed to patch ingress %s", res.IngressResourceName())
		}

		r.recordResourceOp(ctx, "ingress", "patch")
		r.logger.Info("ingress updated", "namespace", res.Namespace, "service", res.ServiceName)

		return nil
	}

	_, err = ingresses.Create(ctx, body, metav1.CreateOptions{})
	if err != nil {
		r.recordAPIError(ctx, "create", err)

		return errors.Wrapf(err, "failed to create ingress %s", res.IngressResourceName())
	}

	r.recordResourceOp(ctx, "ingress", "create")
	r.logger.Info("ingress created", "namespace", res.Namespace, "service", res.ServiceName)

	return nil
}

// serviceIPs re-lists live Services and reports the cluster IPs assigned to
// the managed one. The result is what the caller surfaces as status.
func (r *Reconciler) serviceIPs(ctx context.Context, clientset kubernetes.Interface, res config.Resolved) ([]string, error) {
	services, err := clientset.CoreV1().Services(res.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.recordAPIError(ctx, "list", err)

		return nil, errors.Wrapf(err, "failed to list services in namespace %s", res.Namespace)
	}

	var ips []string

	for i := range services.Items {
		if services.Items[i].Name == res.ServiceResourceName() {
			ips = append(ips, services.Items[i].Spec.ClusterIP)
		}
	}

	return ips, nil
}

func (r *Reconciler) recordResourceOp(ctx context.Context, kind, op string) {
	if r.Metrics != nil {
		r.Metrics.RecordResourceOp(ctx, kind, op)
	}
}

func (r *Reconciler) recordAPIError(ctx context.Context, verb string, err error) {
	if r.Metrics != nil {
		r.Metrics.RecordAPIError(ctx, verb, metrics.ClassifyAPIError(err))
	}
}

// Package kube constructs the Kubernetes clientset behind a once-only
// initialization barrier so repeated reconciles within one process never
// redo the credential bootstrap.
package kube

import (
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// DefaultKubeconfigPath is where explicitly supplied kubeconfig text is
// written before being loaded.
const DefaultKubeconfigPath = "/kube-config"

// ClientSource yields the clientset to talk to the cluster with. The
// reconciler depends on this rather than on a concrete provider so tests can
// substitute a fake clientset.
type ClientSource interface {
	Clientset() (kubernetes.Interface, error)
}

// Provider is the production ClientSource. Two credential modes exist:
// kubeconfig text supplied via configuration (written to KubeconfigPath and
// loaded from there) or ambient in-cluster service-account credentials.
// Explicit configuration always wins. The first successful Clientset call
// caches its result for the process lifetime.
type Provider struct {
	// KubeConfig returns raw kubeconfig text, "" for in-cluster
	// credentials. Read once, at first use.
	KubeConfig func() string

	// KubeconfigPath is the fixed path explicit credentials are written to.
	// Defaults to DefaultKubeconfigPath.
	KubeconfigPath string

	clientset kubernetes.Interface
}

// Clientset implements ClientSource. It is idempotent: after the first
// successful call the cached clientset is returned without touching
// credentials again.
func (p *Provider) Clientset() (kubernetes.Interface, error) {
	if p.clientset != nil {
		return p.clientset, nil
	}

	cfg, err := p.restConfig()
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build clientset")
	}

	p.clientset = clientset

	return p.clientset, nil
}

func (p *Provider) restConfig() (*rest.Config, error) {
	text := ""
	if p.KubeConfig != nil {
		text = p.KubeConfig()
	}

	if text == "" {
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load in-cluster credentials")
		}

		slog.Debug("authenticated with in-cluster credentials")

		return cfg, nil
	}

	path := p.KubeconfigPath
	if path == "" {
		path = DefaultKubeconfigPath
	}

	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return nil, errors.Wrapf(err, "failed to write kubeconfig to %s", path)
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load kubeconfig from %s", path)
	}

	slog.Debug("authenticated with configured kubeconfig", "path", path)

	return cfg, nil
}

// StaticSource wraps an existing clientset as a ClientSource.
type StaticSource struct {
	Client kubernetes.Interface
}

// Clientset implements ClientSource.
func (s StaticSource) Clientset() (kubernetes.Interface, error) {
	return s.Client, nil
}

// Package resources builds the managed cluster objects from the canonical
// desired state. Builders are pure: the same Resolved input always yields
// the same specs, and every field is re-derived fresh on each call.
package resources

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/mthaddon/k8s-ingress-operator/internal/config"
)

// SelectorLabel is the pod label the managed Service selects on.
const SelectorLabel = "app.kubernetes.io/name"

// BuildService returns the Service spec for the desired state: a single
// named TCP port forwarding to the same target port, selecting pods by the
// logical service name.
func BuildService(res config.Resolved) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Service",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: res.ServiceResourceName(),
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{
				SelectorLabel: res.ServiceName,
			},
			Ports: []corev1.ServicePort{
				{
					Name:       fmt.Sprintf("tcp-%d", res.ServicePort),
					Port:       int32(res.ServicePort),
					TargetPort: intstr.FromInt(res.ServicePort),
				},
			},
		},
	}
}

package resources

import (
	"strings"

	netv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/mthaddon/k8s-ingress-operator/internal/config"
)

// nginx ingress controller annotation keys.
const (
	annRewriteTarget         = "nginx.ingress.kubernetes.io/rewrite-target"
	annProxyBodySize         = "nginx.ingress.kubernetes.io/proxy-body-size"
	annAffinity              = "nginx.ingress.kubernetes.io/affinity"
	annAffinityMode          = "nginx.ingress.kubernetes.io/affinity-mode"
	annCookieChangeOnFailure = "nginx.ingress.kubernetes.io/session-cookie-change-on-failure"
	annCookieMaxAge          = "nginx.ingress.kubernetes.io/session-cookie-max-age"
	annCookieName            = "nginx.ingress.kubernetes.io/session-cookie-name"
	annCookieSameSite        = "nginx.ingress.kubernetes.io/session-cookie-samesite"
	annSSLRedirect           = "nginx.ingress.kubernetes.io/ssl-redirect"
)

// BuildIngress returns the Ingress spec for the desired state: one rule for
// the service hostname with a single "/" prefix path whose backend is the
// managed Service. Annotations and the TLS block are derived from scratch on
// every call; there is no incremental patching of previous annotations.
func BuildIngress(res config.Resolved) *netv1.Ingress {
	pathType := netv1.PathTypePrefix

	spec := netv1.IngressSpec{
		Rules: []netv1.IngressRule{
			{
				Host: res.ServiceHostname,
				IngressRuleValue: netv1.IngressRuleValue{
					HTTP: &netv1.HTTPIngressRuleValue{
						Paths: []netv1.HTTPIngressPath{
							{
								Path:     "/",
								PathType: &pathType,
								Backend: netv1.IngressBackend{
									Service: &netv1.IngressServiceBackend{
										Name: res.ServiceResourceName(),
										Port: netv1.ServiceBackendPort{
											Number: int32(res.ServicePort),
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}

	annotations := map[string]string{
		annRewriteTarget: "/",
	}

	if res.MaxBodySize != "" {
		annotations[annProxyBodySize] = res.MaxBodySize
	}

	if res.SessionCookieMaxAge != "" {
		annotations[annAffinity] = "cookie"
		annotations[annAffinityMode] = "balanced"
		annotations[annCookieChangeOnFailure] = "true"
		annotations[annCookieMaxAge] = res.SessionCookieMaxAge
		annotations[annCookieName] = strings.ToUpper(res.ServiceName) + "_AFFINITY"
		annotations[annCookieSameSite] = "Lax"
	}

	if res.TLSSecretName != "" {
		spec.TLS = []netv1.IngressTLS{
			{
				Hosts:      []string{res.ServiceHostname},
				SecretName: res.TLSSecretName,
			},
		}
	} else {
		annotations[annSSLRedirect] = "false"
	}

	return &netv1.Ingress{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "networking.k8s.io/v1",
			Kind:       "Ingress",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:        res.IngressResourceName(),
			Annotations: annotations,
		},
		Spec: spec,
	}
}

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/mthaddon/k8s-ingress-operator/internal/config"
	"github.com/mthaddon/k8s-ingress-operator/internal/controller"
	"github.com/mthaddon/k8s-ingress-operator/internal/kube"
)

//nolint:gochecknoglobals // set by SetVersion from main
var (
	version = "development"
	gitsha  = "development"
)

func SetVersion(ver, sha string) {
	version = ver
	gitsha = sha
}

//nolint:gochecknoglobals // cobra command pattern
var rootCmd = &cobra.Command{
	Use:   "k8s-ingress-operator",
	Short: "Kubernetes operator managing a Service/Ingress pair for one application",
	Long: `An operator that exposes a single application through Kubernetes.
It merges local configuration with relation data supplied by the application,
and reconciles a Service and an nginx-annotated Ingress to match.`,
	RunE:          runOperator,
	SilenceUsage:  true,
	SilenceErrors: true,
}

//nolint:gochecknoinits // cobra command pattern
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	rootCmd.Flags().String("config", "", "Path to an operator config file (watched for changes)")

	// Local configuration keys; relation data can fill any of them.
	rootCmd.Flags().String("service-hostname", "", "External hostname the ingress answers on")
	rootCmd.Flags().String("service-name", "", "Logical name of the backend service")
	rootCmd.Flags().Int("service-port", 0, "Backend service port (1-65535)")
	rootCmd.Flags().String("service-namespace", "", "Namespace to manage resources in")
	rootCmd.Flags().String("max-body-size", "", "Proxy body size limit in megabytes")
	rootCmd.Flags().String("session-cookie-max-age", "", "Session affinity cookie lifetime in seconds")
	rootCmd.Flags().String("tls-secret-name", "", "TLS secret name for the ingress hostname")
	rootCmd.Flags().String("kube-config", "", "Raw kubeconfig text (in-cluster credentials when empty)")

	rootCmd.Flags().String("namespace", "", "Operator's own namespace (auto-detected when empty)")
	rootCmd.Flags().String("state-db", "./ingress-operator.db", "SQLite DSN for the relation data cache")
	rootCmd.Flags().String("relation-data", "", "YAML file delivering relation payloads")
	rootCmd.Flags().String("kubeconfig-path", kube.DefaultKubeconfigPath, "Path explicit kubeconfig text is written to")

	rootCmd.Flags().String("metrics-addr", ":8080", "Address for metrics endpoint")
	rootCmd.Flags().String("health-addr", ":8081", "Address for health probe endpoint")

	// Leader election flags
	rootCmd.Flags().Bool("leader-elect", false, "Enable leader election for high availability")
	rootCmd.Flags().String("leader-election-namespace", "", "Namespace for leader election lease (defaults to operator namespace)")
	rootCmd.Flags().String("leader-election-name", "k8s-ingress-operator-leader", "Name of the leader election lease")

	_ = viper.BindPFlags(rootCmd.Flags())
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	viper.SetEnvPrefix("INGRESS")
	viper.AutomaticEnv()

	viper.SetDefault("state-db", "./ingress-operator.db")
	viper.SetDefault("kubeconfig-path", kube.DefaultKubeconfigPath)
	viper.SetDefault("metrics-addr", ":8080")
	viper.SetDefault("health-addr", ":8081")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "json")
	viper.SetDefault("leader-elect", false)
	viper.SetDefault("leader-election-name", "k8s-ingress-operator-leader")
}

func Execute() error {
	return errors.Wrap(rootCmd.Execute(), "command execution failed")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo

	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if viper.GetString("log-format") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// settingsSnapshot reads the current local configuration from viper. Called
// on every event so watched config file edits take effect.
func settingsSnapshot() config.Settings {
	return config.Settings{
		ServiceHostname:     viper.GetString("service-hostname"),
		ServiceName:         viper.GetString("service-name"),
		ServicePort:         viper.GetInt("service-port"),
		ServiceNamespace:    viper.GetString("service-namespace"),
		MaxBodySize:         viper.GetString("max-body-size"),
		SessionCookieMaxAge: viper.GetString("session-cookie-max-age"),
		TLSSecretName:       viper.GetString("tls-secret-name"),
		KubeConfig:          viper.GetString("kube-config"),
	}
}

//nolint:noinlineerr // inline error handling is fine here
func runOperator(_ *cobra.Command, _ []string) error {
	logger := setupLogger()
	slog.SetDefault(logger)

	klog.SetLogger(logr.FromSlogHandler(logger.Handler()))

	logger.Info("starting k8s-ingress-operator",
		"version", version,
		"gitsha", gitsha,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configChanges := make(chan struct{}, 1)

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)

		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", configFile)
		}

		viper.OnConfigChange(func(_ fsnotify.Event) {
			select {
			case configChanges <- struct{}{}:
			default:
				// A change signal is already pending.
			}
		})
		viper.WatchConfig()
	}

	cfg := controller.Config{
		Namespace:               viper.GetString("namespace"),
		StateDB:                 viper.GetString("state-db"),
		RelationDataPath:        viper.GetString("relation-data"),
		KubeconfigPath:          viper.GetString("kubeconfig-path"),
		LeaderElect:             viper.GetBool("leader-elect"),
		LeaderElectionNamespace: viper.GetString("leader-election-namespace"),
		LeaderElectionName:      viper.GetString("leader-election-name"),
		MetricsAddr:             viper.GetString("metrics-addr"),
		HealthAddr:              viper.GetString("health-addr"),
		Settings:                settingsSnapshot,
		ConfigChanges:           configChanges,
	}

	if err := controller.Run(ctx, &cfg); err != nil {
		return errors.Wrap(err, "failed to run operator")
	}

	return nil
}

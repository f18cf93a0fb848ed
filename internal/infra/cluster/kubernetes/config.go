package kubernetes

import "time"

// Config selects the lease used for planner leader election.
type Config struct {
	Namespace string `mapstructure:"namespace" validate:"required"`
	LeaseName string `mapstructure:"lease_name" validate:"required"`
	// Identity names this replica in the lease. Defaults to the hostname.
	Identity string `mapstructure:"identity"`
	// KubeConfig is used outside a cluster. Empty means ~/.kube/config.
	KubeConfig string `mapstructure:"kubeconfig"`

	LeaseDuration time.Duration `mapstructure:"lease_duration" validate:"gtfield=RenewDeadline"`
	RenewDeadline time.Duration `mapstructure:"renew_deadline" validate:"gtfield=RetryPeriod"`
	RetryPeriod   time.Duration `mapstructure:"retry_period" validate:"gt=0"`
}

// DefaultConfig returns the lease timings recommended by client-go.
func DefaultConfig() Config {
	return Config{
		Namespace:     "default",
		LeaseName:     "flotilla-planner",
		LeaseDuration: 15 * time.Second,
		RenewDeadline: 10 * time.Second,
		RetryPeriod:   2 * time.Second,
	}
}

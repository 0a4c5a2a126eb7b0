package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	vaultID string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVault restricts one-shot ingestion to a single vault id.
func WithVault(id string) Option {
	return func(a *application) {
		a.vaultID = id
	}
}

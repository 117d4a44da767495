package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	mcpMode bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMCPMode switches the application to serve the Model Context
// Protocol over stdio instead of the HTTP API.
func WithMCPMode() Option {
	return func(a *application) {
		a.mcpMode = true
	}
}

package config

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `env:"VERIFY_DATABASE_URL" env-default:""`
}

package config

import (
	"time"

	"github.com/tendant/simple-verify/pkg/emailverification"
	"github.com/tendant/simple-verify/pkg/ratelimit"
)

// VerificationConfig holds the code lifecycle settings.
type VerificationConfig struct {
	Persistence     string        `env:"VERIFY_PERSISTENCE" env-default:"postgres" validate:"oneof=postgres file memory"`
	DataDir         string        `env:"VERIFY_DATA_DIR" env-default:"data"`
	CodeLength      int           `env:"VERIFY_CODE_LENGTH" env-default:"6" validate:"min=4,max=10"`
	CodeTTL         time.Duration `env:"VERIFY_CODE_TTL" env-default:"10m" validate:"min=1s"`
	RateWindow      time.Duration `env:"VERIFY_RATE_WINDOW" env-default:"1h" validate:"min=1s"`
	RateMaxSends    int           `env:"VERIFY_RATE_MAX_SENDS" env-default:"3" validate:"min=1"`
	DevVisibleCodes bool          `env:"VERIFY_DEV_VISIBLE_CODES" env-default:"false"`
	StatusHistory   int           `env:"VERIFY_STATUS_HISTORY" env-default:"10" validate:"min=0,max=100"`
	StoreTimeout    time.Duration `env:"VERIFY_STORE_TIMEOUT" env-default:"5s" validate:"min=1ms"`

	// Notifier selects the delivery backend.
	Notifier   string   `env:"VERIFY_NOTIFIER" env-default:"log" validate:"oneof=smtp resend log none"`
	AsyncLimit int64    `env:"VERIFY_ASYNC_NOTIFY_LIMIT" env-default:"16" validate:"min=0"`
	SeedUsers  []string `env:"VERIFY_SEED_USERS" env-separator:","`
}

// StoreOptions translates the config into token store options.
func (v VerificationConfig) StoreOptions() []emailverification.StoreOption {
	return []emailverification.StoreOption{
		emailverification.WithCodeLength(v.CodeLength),
		emailverification.WithLifetime(v.CodeTTL),
	}
}

// LimiterOptions translates the config into send limiter options.
func (v VerificationConfig) LimiterOptions() []ratelimit.Option {
	return []ratelimit.Option{
		ratelimit.WithWindow(v.RateWindow),
		ratelimit.WithMaxSends(v.RateMaxSends),
	}
}

// ServiceOptions translates the config into service options. The notifier
// is wired separately.
func (v VerificationConfig) ServiceOptions(frontendURL string) []emailverification.ServiceOption {
	return []emailverification.ServiceOption{
		emailverification.WithBaseURL(frontendURL),
		emailverification.WithDevVisibleCodes(v.DevVisibleCodes),
		emailverification.WithStatusHistory(v.StatusHistory),
		emailverification.WithStoreTimeout(v.StoreTimeout),
	}
}

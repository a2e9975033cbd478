// Package config loads the verification service configuration.
//
// Values come from the process environment, optionally seeded from a .env
// file, and are parsed with cleanenv struct tags:
//
//	cfg, err := config.Load(".env")
//	if err != nil {
//		return err
//	}
//	v := cfg.Verification
//	store, err := emailverification.NewTokenStore(v.Persistence,
//		emailverification.RepositoryConfig{Pool: pool, DataDir: v.DataDir},
//		v.StoreOptions()...)
//
// Field constraints are checked with go-playground/validator after parsing.
// Durations use Go syntax ("10m", "1h").
package config

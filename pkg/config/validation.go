package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks cfg against its struct tags and the rules that span
// sections. It does not modify cfg.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return verrs
		}
		return err
	}
	return validateStore(&cfg.Device.Store)
}

// validateStore enforces the settings each store type needs.
func validateStore(cfg *StoreConfig) error {
	switch cfg.Type {
	case "badger":
		if cfg.Badger.Path == "" {
			return fmt.Errorf("device.store.badger.path is required when device.store.type is badger")
		}
		if v := cfg.Badger.ValueLogFileSize; v != 0 && (v < 1<<20 || v >= 2<<30) {
			return fmt.Errorf("device.store.badger.value_log_file_size must be between 1Mi and 2Gi, got %s", v)
		}
	case "s3":
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("device.store.s3.bucket is required when device.store.type is s3")
		}
	}
	return nil
}

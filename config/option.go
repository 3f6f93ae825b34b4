package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/kochabx/wsgate/log"
)

// Option is a function that configures a Config
type Option func(*Config)

// WithViper sets a custom viper instance
func WithViper(v *viper.Viper) Option {
	return func(c *Config) {
		c.viper = v
	}
}

// WithValidator sets a custom validator; its errors are reported untranslated
func WithValidator(v *validator.Validate) Option {
	return func(c *Config) {
		c.validate = v
		c.trans = nil
	}
}

// WithLoader sets the configuration loader
func WithLoader(loader Loader) Option {
	return func(c *Config) {
		c.loader = loader
	}
}

// WithFile sets the config file name and search paths of the default loader
func WithFile(name string, paths ...string) Option {
	return func(c *Config) {
		c.file = name
		c.paths = paths
	}
}

// WithDefaults registers default values for keys absent from file and environment
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) {
		c.defaults = defaults
	}
}

// WithLogger sets the logger used for reload messages
func WithLogger(l *log.Logger) Option {
	return func(c *Config) {
		c.logger = l
	}
}

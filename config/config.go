package config

import (
	"reflect"
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/kochabx/wsgate/log"
)

// Config manages application configuration
type Config struct {
	mu       sync.RWMutex
	viper    *viper.Viper
	validate *validator.Validate
	trans    ut.Translator
	target   any
	loader   Loader
	logger   *log.Logger

	file     string
	paths    []string
	defaults map[string]any

	subscribers []func()
}

// New creates a new Config instance unmarshalling into target, which must be a
// non-nil struct pointer.
// If no loader is provided, an optional FileLoader is created for
// "config.yaml" in "." (or the file set with WithFile).
func New(target any, opts ...Option) *Config {
	validate, trans := NewValidator()
	c := &Config{
		viper:    viper.New(),
		validate: validate,
		trans:    trans,
		target:   target,
		file:     "config.yaml",
		paths:    []string{"."},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrGlobal(c.logger).Module("config")

	for k, v := range c.defaults {
		c.viper.SetDefault(k, v)
	}
	if c.loader == nil {
		c.loader = NewFileLoader(c.file, c.paths, c.viper, c.validate).Translate(c.trans).Optional()
	}
	return c
}

// Load reads the configuration using the configured loader
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// load decodes into a fresh value and replaces target only when it is valid.
func (c *Config) load() error {
	fresh := reflect.New(reflect.TypeOf(c.target).Elem())
	if err := c.loader.Load(fresh.Interface()); err != nil {
		return err
	}
	reflect.ValueOf(c.target).Elem().Set(fresh.Elem())
	return nil
}

// OnChange registers fn to run after every successful reload
func (c *Config) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Reload reloads the configuration and notifies subscribers
func (c *Config) Reload() error {
	c.mu.Lock()
	if err := c.load(); err != nil {
		c.mu.Unlock()
		return err
	}
	subscribers := append([]func(){}, c.subscribers...)
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn()
	}
	return nil
}

// Watch reloads the configuration whenever the loader detects a change
func (c *Config) Watch() error {
	return c.loader.Watch(func() {
		c.logger.Info().Msg("config change detected")
		if err := c.Reload(); err != nil {
			c.logger.Error().Err(err).Msg("failed to reload config after change")
			return
		}
		c.logger.Info().Msg("config reloaded successfully")
	})
}

// Viper returns the underlying viper instance
func (c *Config) Viper() *viper.Viper {
	return c.viper
}

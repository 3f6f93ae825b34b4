package config

import (
	"path"
	"strings"

	"github.com/fsnotify/fsnotify"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/kochabx/wsgate/errors"
)

// FileLoader loads configuration from a file, with environment overrides
type FileLoader struct {
	viper    *viper.Viper
	validate *validator.Validate
	trans    ut.Translator
	optional bool
}

// NewFileLoader creates a file loader searching name in paths.
// Keys may be overridden by environment variables with "." replaced by "_".
func NewFileLoader(name string, paths []string, v *viper.Viper, validate *validator.Validate) *FileLoader {
	ext := path.Ext(name)
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName(strings.TrimSuffix(name, ext))
	v.SetConfigType(strings.TrimPrefix(ext, "."))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &FileLoader{viper: v, validate: validate}
}

var decodeHook = mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
	mapstructure.TextUnmarshallerHookFunc(),
)

// Optional makes a missing config file fall back to defaults and environment
func (l *FileLoader) Optional() *FileLoader {
	l.optional = true
	return l
}

// Translate renders validation failures with trans
func (l *FileLoader) Translate(trans ut.Translator) *FileLoader {
	l.trans = trans
	return l
}

// Load implements Loader interface
func (l *FileLoader) Load(target any) error {
	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !l.optional || !errors.As(err, &notFound) {
			return errors.NotFound("config file not found: %v", err)
		}
	}

	if err := l.viper.Unmarshal(target, viper.DecodeHook(decodeHook)); err != nil {
		return errors.Internal("config parse error: %v", err)
	}

	if l.validate != nil {
		if err := l.validate.Struct(target); err != nil {
			return validationError(err, l.trans)
		}
	}
	return nil
}

// Watch implements Loader interface
func (l *FileLoader) Watch(callback func()) error {
	l.viper.OnConfigChange(func(fsnotify.Event) {
		if callback != nil {
			callback()
		}
	})
	l.viper.WatchConfig()
	return nil
}

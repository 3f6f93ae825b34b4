package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/kochabx/wsgate/errors"
)

// NewValidator returns a validator that names fields by their mapstructure key,
// together with the English translator registered on it.
func NewValidator() (*validator.Validate, ut.Translator) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})

	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	return v, trans
}

// validationError reports every failed field as "<key path>: <message>"
func validationError(err error, trans ut.Translator) error {
	var fields validator.ValidationErrors
	if trans == nil || !errors.As(err, &fields) {
		return errors.BadRequest("config validation failed: %v", err)
	}

	msgs := make([]string, 0, len(fields))
	for _, fe := range fields {
		ns := fe.Namespace()
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}
		msgs = append(msgs, ns+": "+fe.Translate(trans))
	}
	return errors.BadRequest("config validation failed: %s", strings.Join(msgs, "; "))
}

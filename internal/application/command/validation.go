package command

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/academic-erp/erp-backend/internal/domain/shared"
)

const (
	notBlankTag  = "notblank"
	notBlankText = "{0} must not be blank"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
)

// requestValidator returns the shared validator with English messages and
// JSON field names.
func requestValidator() (*validator.Validate, ut.Translator) {
	validateOnce.Do(func() {
		validate = validator.New()

		english := en.New()
		uni := ut.New(english, english)
		translator, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(validate, translator)

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = validate.RegisterTranslation(notBlankTag, translator,
			func(t ut.Translator) error { return t.Add(notBlankTag, notBlankText, false) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(notBlankTag, fe.Field())
				return s
			},
		)
	})
	return validate, translator
}

// validateStruct runs struct tags and converts failures into a
// *shared.ValidationError listing every offending field.
func validateStruct(v any) error {
	val, trans := requestValidator()

	err := val.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &shared.ValidationError{Fields: []shared.FieldError{{Field: "request", Error: err.Error()}}}
	}

	out := &shared.ValidationError{Fields: make([]shared.FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, shared.FieldError{
			Field: fe.Field(),
			Error: fe.Translate(trans),
		})
	}
	return out
}

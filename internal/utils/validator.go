package utils

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/truemail-rb/truemail-go"
)

// Validator bundles the struct validator with the optional email deliverability check.
type Validator struct {
	Validate    *validator.Validate
	VerifyEmail func(email string) bool
}

var (
	instance      *Validator
	configuration *truemail.Configuration
	once          sync.Once
)

// profileNameRegex allows lowercase alphanumerics with -._~ separators and
// requires at least three alphanumeric characters.
var profileNameRegex = regexp.MustCompile(`^[-._~]*(?:[a-z0-9][-._~]*){3,}$`)

// GetValidator returns the process-wide validator instance.
func GetValidator() *Validator {
	once.Do(func() {
		configuration, _ = truemail.NewConfiguration(truemail.ConfigurationAttr{
			VerifierEmail:         "team@kithnet.app",
			ValidationTypeDefault: "mx",
			SmtpFailFast:          true,
		})

		instance = &Validator{
			Validate:    validator.New(validator.WithRequiredStructEnabled()),
			VerifyEmail: validateEmail,
		}

		registerCustomValidators(instance.Validate)
	})

	return instance
}

func validateEmail(email string) bool {
	return truemail.IsValid(email, configuration)
}

var sanitizePolicy = bluemonday.StrictPolicy()

// SanitizeData strips markup from every string field of a bound payload,
// recursing into nested structs, pointers and slices. obj must be a pointer
// to a struct.
func (v *Validator) SanitizeData(obj interface{}) error {
	value := reflect.ValueOf(obj)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("expected pointer to struct, got %T", obj)
	}

	sanitizeValue(value.Elem())
	return nil
}

func sanitizeValue(value reflect.Value) {
	switch value.Kind() {
	case reflect.String:
		if value.CanSet() {
			value.SetString(sanitizePolicy.Sanitize(value.String()))
		}
	case reflect.Struct:
		for i := 0; i < value.NumField(); i++ {
			sanitizeValue(value.Field(i))
		}
	case reflect.Ptr:
		if !value.IsNil() {
			sanitizeValue(value.Elem())
		}
	case reflect.Slice:
		for i := 0; i < value.Len(); i++ {
			sanitizeValue(value.Index(i))
		}
	}
}

func registerCustomValidators(v *validator.Validate) {
	_ = v.RegisterValidation("profile_name_validation", profileNameValidation)
	_ = v.RegisterValidation("display_name_validation", displayNameValidation)
	_ = v.RegisterValidation("password_validation", passwordValidation)
	_ = v.RegisterValidation("post_validation", postValidation)
}

// profileNameValidation enforces the immutable handle format: lowercase,
// 3-20 characters, alphanumerics plus -._~ with at least three alphanumerics.
func profileNameValidation(fl validator.FieldLevel) bool {
	profileName := fl.Field().String()
	if len(profileName) < 3 || len(profileName) > 20 {
		return false
	}

	return profileNameRegex.MatchString(profileName)
}

// displayNameValidation rejects the '#' separator, which is reserved for the
// displayName#index notation.
func displayNameValidation(fl validator.FieldLevel) bool {
	return !strings.Contains(fl.Field().String(), "#")
}

func passwordValidation(fl validator.FieldLevel) bool {
	var upperLetter, lowerLetter, number, specialChar bool

	value := fl.Field().String()
	for _, r := range value {
		if r > unicode.MaxASCII {
			return false
		}

		switch {
		case unicode.IsUpper(r):
			upperLetter = true
		case unicode.IsLower(r):
			lowerLetter = true
		case unicode.IsNumber(r):
			number = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			specialChar = true
		}
	}

	return upperLetter && lowerLetter && number && specialChar
}

func postValidation(fl validator.FieldLevel) bool {
	return utf8.ValidString(fl.Field().String())
}

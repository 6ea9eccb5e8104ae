// Package validate holds the runtime checks applied to caller-supplied
// identity and attribute data before it reaches the network or storage.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/dmitrijs2005/idsync/internal/identitytype"
	"github.com/go-playground/validator/v10"
)

// Operation names an identity API call.
type Operation string

const (
	OpIdentify Operation = "identify"
	OpLogin    Operation = "login"
	OpLogout   Operation = "logout"
	OpModify   Operation = "modify"
)

// ValidationError reports bad caller input. It matches common.ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return common.ErrValidation }

type identityPayload struct {
	UserIdentities map[string]string `json:"userIdentities" validate:"omitempty,dive,keys,identitytype,endkeys"`
}

type modifyPayload struct {
	UserIdentities map[string]string `json:"userIdentities" validate:"required,min=1,dive,keys,identitytype,endkeys"`
}

var v = newValidator()

func newValidator() *validator.Validate {
	validate := validator.New()
	mustRegister(validate, "identitytype", func(fl validator.FieldLevel) bool {
		_, ok := identitytype.FromName(fl.Field().String())
		return ok
	})
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

// mustRegister adds a custom tag and panics when the validator refuses it.
func mustRegister(val *validator.Validate, tag string, fn validator.Func) {
	if err := val.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// Identities checks an identity map for op. It returns a non-fatal warning
// for borderline input (empty values) and a *ValidationError for input the
// identity service would reject.
func Identities(ids map[string]string, op Operation) (string, error) {
	var err error
	if op == OpModify {
		err = v.Struct(modifyPayload{UserIdentities: ids})
	} else {
		err = v.Struct(identityPayload{UserIdentities: ids})
	}
	if err != nil {
		return "", toValidationError(err)
	}

	var empty []string
	for k, val := range ids {
		if val == "" {
			empty = append(empty, k)
		}
	}
	if len(empty) > 0 {
		sort.Strings(empty)
		return fmt.Sprintf("empty identity values for %s", strings.Join(empty, ", ")), nil
	}
	return "", nil
}

func toValidationError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "identitytype":
		return &ValidationError{Field: "userIdentities", Message: fmt.Sprintf("unknown identity type %q", fe.Value())}
	case "required", "min":
		return &ValidationError{Field: "userIdentities", Message: "modify requires at least one identity"}
	default:
		return &ValidationError{Field: fe.Field(), Message: fe.Error()}
	}
}

// Key checks an attribute key or tag name.
func Key(key string) error {
	if strings.TrimSpace(key) == "" {
		return &ValidationError{Field: "key", Message: "key must be a non-empty string"}
	}
	return nil
}

// AttributeValue accepts nil, strings, booleans and numbers.
func AttributeValue(value any) error {
	switch value.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	default:
		return &ValidationError{Field: "value", Message: fmt.Sprintf("unsupported attribute value type %T", value)}
	}
}

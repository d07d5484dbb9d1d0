package billing

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayumbro/Remindy/app/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names so errors match the request payload
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs struct validation and reports the first failing field
// as a ConfigurationError.
func validateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return configErr(fe.Field(), "failed %s=%s", fe.Tag(), fe.Param())
		}
		return configErr(fe.Field(), "failed %s", fe.Tag())
	}
	return err
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func normalizePaymentStatus(status string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case "":
		return models.PaymentStatusPaid, nil
	case models.PaymentStatusPaid, models.PaymentStatusPending, models.PaymentStatusFailed, models.PaymentStatusRefunded:
		return s, nil
	default:
		return "", configErr("status", "unknown payment status %q", status)
	}
}

package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"

	"robopay/pkg/logger"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details renders the errors as the details map of an AppError.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

type PaymentValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewPaymentValidator(log *logger.Logger) *PaymentValidator {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("solana_signature", validateSignature); err != nil {
		log.Fatal("Failed to register 'solana_signature' validator", "error", err)
	}

	return &PaymentValidator{
		validate: v,
		logger:   log,
	}
}

func validateSignature(fl validator.FieldLevel) bool {
	_, err := solana.SignatureFromBase58(strings.TrimSpace(fl.Field().String()))
	return err == nil
}

// Validate checks any request struct carrying validate tags.
func (v *PaymentValidator) Validate(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *PaymentValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			if err.Kind() == reflect.String {
				message = fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
			} else {
				message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
			}
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid session id", err.Field())
		case "solana_signature":
			message = fmt.Sprintf("%s must be a base58 transaction signature", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}

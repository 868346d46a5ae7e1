package validator

import (
	"net/url"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Допустимые символы серийного номера терминала
var serialRe = regexp.MustCompile(`^[A-Za-z0-9_\-.]{1,64}$`)

// Валидатор адреса получателя webhook (абсолютный http/https)
func validatorWebhookURL(fl validator.FieldLevel) bool {
	address, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	addr, err := url.Parse(address)
	if err != nil {
		return false
	}
	if addr.Scheme != "http" && addr.Scheme != "https" {
		return false
	}
	return addr.Host != ""
}

// Валидатор серийного номера терминала
func validatorSerial(fl validator.FieldLevel) bool {
	sn, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return serialRe.MatchString(sn)
}

// IsSerial корректен ли серийный номер терминала
func IsSerial(sn string) bool {
	return Get().Var(sn, "serial") == nil
}

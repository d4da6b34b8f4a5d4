package config

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/matrixise/balance-poller/internal/scheduler"
)

// ethAddressValidator validates Ethereum addresses
func ethAddressValidator(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// durationValidator validates positive duration strings
func durationValidator(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// scheduleValidator accepts a positive duration or a cron expression
func scheduleValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if scheduler.IsCronExpression(value) {
		return scheduler.ValidateScheduleInterval(value) == nil
	}
	d, err := time.ParseDuration(value)
	return err == nil && d > 0
}

// timezoneValidator accepts IANA names and "Local"
func timezoneValidator(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == DefaultTimezone {
		return true
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// alignedIntervalValidation rejects align_to_clock with an interval that
// does not divide a minute, hour or day evenly
func alignedIntervalValidation(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if !cfg.AlignToClock || cfg.IsCronExpression() {
		return
	}
	if err := scheduler.ValidateScheduleInterval(cfg.ScheduleInterval()); err != nil {
		sl.ReportError(cfg.Interval, "Interval", "interval", "aligned", "")
	}
}

// NewValidator creates a validator with custom validation rules
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterValidation("eth_addr", ethAddressValidator)
	validate.RegisterValidation("duration", durationValidator)
	validate.RegisterValidation("schedule", scheduleValidator)
	validate.RegisterValidation("tz", timezoneValidator)
	validate.RegisterStructValidation(alignedIntervalValidation, Config{})
	return validate
}

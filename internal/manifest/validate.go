package manifest

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidationError lists the manifest fields failing their constraints.
type ValidationError struct {
	Fields validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msg := fmt.Sprintf("%s: failed %q", f.Namespace(), f.Tag())
		if f.Param() != "" {
			msg += fmt.Sprintf(" (%s)", f.Param())
		}
		msgs = append(msgs, msg)
	}
	return "invalid manifest: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Fields }

// Durations returns the scheduler settings, falling back to the defaults.
func (s Scheduler) Durations() (interval, quiet time.Duration) {
	interval, quiet = time.Second, 2*time.Second
	if d, err := time.ParseDuration(s.Interval); err == nil && d > 0 {
		interval = d
	}
	if d, err := time.ParseDuration(s.Quiet); err == nil && d >= 0 && s.Quiet != "" {
		quiet = d
	}
	return interval, quiet
}

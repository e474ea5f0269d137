package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// ValidateEvent checks a create payload. Times are only checked against
// EventTimeLayout when strictTimes is set.
func ValidateEvent(req EventRequest, strictTimes bool) error {
	err := validate.Struct(req)
	if err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}

		missing := make([]string, 0, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			missing = append(missing, fieldErr.Field())
		}

		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}

	if *req.Title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}

	if strictTimes {
		return validateTimes(map[string]*string{"start_time": req.StartTime, "end_time": req.EndTime})
	}

	return nil
}

func ValidatePatch(patch EventPatch, strictTimes bool) error {
	if !strictTimes {
		return nil
	}

	return validateTimes(map[string]*string{"start_time": patch.StartTime, "end_time": patch.EndTime})
}

func validateTimes(fields map[string]*string) error {
	for _, name := range []string{"start_time", "end_time"} {
		value := fields[name]
		if value == nil {
			continue
		}

		err := validate.Var(*value, fmt.Sprintf("len=%d,datetime=%s", len(EventTimeLayout), EventTimeLayout))
		if err != nil {
			return fmt.Errorf("%w: %s must be formatted as YYYY-MM-DD HH:MM:SS", ErrValidation, name)
		}
	}

	return nil
}

// ParseEventID accepts a JSON integer, an integral JSON number (7.0) or a
// string holding an integer and returns its canonical decimal form, so "007",
// 7 and 7.0 all yield "7".
func ParseEventID(raw json.RawMessage) (string, error) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return "", fmt.Errorf("%w: id must be an integer", ErrValidation)
		}

		return strconv.Itoa(n), nil
	}

	text := strings.TrimSpace(string(raw))

	n, err := strconv.Atoi(text)
	if err == nil {
		return strconv.Itoa(n), nil
	}

	var f float64
	if json.Unmarshal(raw, &f) != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return "", fmt.Errorf("%w: id must be an integer", ErrValidation)
	}

	return strconv.Itoa(int(f)), nil
}

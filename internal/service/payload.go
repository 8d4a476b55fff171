package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// TaskField is the payload key naming the operation to run.
const TaskField = "task"

var validate = validator.New()

// DecodePayload decodes payload into out, which must be a pointer to a
// struct tagged with `mapstructure` and `validate`. Scalars are converted
// weakly, so "10" decodes into an int field. Unknown keys are ignored.
func DecodePayload(payload map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create payload decoder: %w", err)
	}
	if err := decoder.Decode(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %s validation", ErrInvalidPayload, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// TaskName returns the payload's task field, or def when it is absent.
func TaskName(payload map[string]any, def string) string {
	if name, ok := payload[TaskField].(string); ok && name != "" {
		return name
	}
	return def
}

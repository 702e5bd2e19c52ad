package command

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return strings.ToLower(fld.Name)
			}
			return name
		})
	})
	return validate
}

// CheckReady verifies the definition can be executed: the loader found no
// structural issues, metadata name and description are set, the workflow
// is non-empty, every step has a name, an agent and a prompt, and step
// timeouts parse.
//
// Structural issues return an error matching core.ErrDocumentFormat;
// missing or invalid fields return one matching core.ErrMissingField.
func (d *Definition) CheckReady() error {
	if len(d.Issues) > 0 {
		msgs := make([]string, len(d.Issues))
		for i, issue := range d.Issues {
			msgs[i] = issue.Message
		}
		return core.ErrDocumentFormat.WithMessage(strings.Join(msgs, "; "))
	}

	var missing, invalid []string
	if err := structValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return core.ErrMissingField.WithCause(err)
		}
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), "Definition.")
			switch fe.Tag() {
			case "required", "min":
				missing = append(missing, field)
			default:
				invalid = append(invalid, fmt.Sprintf("%s (%s)", field, describeRule(fe)))
			}
		}
	}
	for i, step := range d.Workflow {
		if _, err := step.TimeoutDuration(); err != nil {
			invalid = append(invalid, fmt.Sprintf("workflow[%d].timeout (%v)", i, err))
		}
	}
	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required field: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid field: "+strings.Join(invalid, ", "))
	}
	return core.ErrMissingField.WithMessage(strings.Join(parts, "; ")).
		WithDetails(map[string]interface{}{"missing": missing, "invalid": invalid})
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return fe.Tag()
	}
}

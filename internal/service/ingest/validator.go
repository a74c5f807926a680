package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
)

// Result is the validator output
type Result struct {
	Valid    []attendance.Event
	Excluded []attendance.ExcludedRecord
}

// Validator filters structurally invalid events. It never fails: every
// rejected event becomes an ExcludedRecord with a readable reason.
type Validator struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewValidator creates a validator with the clocktype rule registered
func NewValidator(logger *zap.Logger) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	mustRegister(v, "clocktype", func(fl validator.FieldLevel) bool {
		return attendance.ClockType(fl.Field().String()).IsValid()
	})

	return &Validator{
		validate: v,
		logger:   logger.Named("ingest"),
	}
}

// mustRegister panics on a bad tag or func, which is always a programming error
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// Validate splits events into valid ones and exclusions, preserving input order
func (v *Validator) Validate(ctx context.Context, events []attendance.Event) Result {
	res := Result{Valid: make([]attendance.Event, 0, len(events))}

	for _, e := range events {
		if reason := v.check(ctx, e); reason != "" {
			res.Excluded = append(res.Excluded, attendance.ExcludedRecord{
				Index:          e.Index,
				PersonID:       e.PersonID,
				OrganizationID: e.OrganizationID,
				Stage:          attendance.StageValidation,
				Reason:         reason,
			})
			continue
		}
		res.Valid = append(res.Valid, e)
	}

	v.logger.Debug("validated events",
		zap.Int("received", len(events)),
		zap.Int("valid", len(res.Valid)),
		zap.Int("excluded", len(res.Excluded)),
	)

	return res
}

// ValidatePerson checks a roster entry
func (v *Validator) ValidatePerson(ctx context.Context, p attendance.Person) error {
	if reason := reasons(v.validate.StructCtx(ctx, p)); reason != "" {
		return stderrors.New(reason)
	}
	return nil
}

func (v *Validator) check(ctx context.Context, e attendance.Event) string {
	return reasons(v.validate.StructCtx(ctx, e))
}

// reasons flattens validation errors into a readable "; "-joined list
func reasons(err error) string {
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err.Error()
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, describe(fe))
	}
	return strings.Join(out, "; ")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("missing required field %s", fe.Field())
	case "clocktype":
		return fmt.Sprintf("unknown clockType %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("invalid %s %q (want one of %s)", fe.Field(), fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag())
	}
}

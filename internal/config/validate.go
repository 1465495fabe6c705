package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/keagan/reelforge/internal/faults"
	"github.com/keagan/reelforge/internal/timeline"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()

		// Report yaml field names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		v.RegisterValidation("resolution", func(fl validator.FieldLevel) bool {
			_, err := timeline.ParseResolution(fl.Field().String())
			return err == nil
		})

		validate = v
	})
	return validate
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	return check(c)
}

// Validate checks one set of request options
func (h Highlight) Validate() error {
	return check(h)
}

func check(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return faults.New(faults.KindInvalidConfig, faults.StageConfig, "invalid configuration", err)
	}
	return faults.New(faults.KindInvalidConfig, faults.StageConfig, describe(verrs), nil)
}

func describe(errs validator.ValidationErrors) string {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		field = strings.TrimPrefix(field, "Highlight.")
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "gt", "gte", "lt", "lte":
			messages = append(messages, fmt.Sprintf("%s must be %s %s", field, comparisons[e.Tag()], e.Param()))
		case "gtefield":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of [%s], got %v", field, e.Param(), e.Value()))
		case "resolution":
			messages = append(messages, fmt.Sprintf("%s must be original or WxH with even sides, got %v", field, e.Value()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		}
	}
	sort.Strings(messages)
	return strings.Join(messages, "; ")
}

var comparisons = map[string]string{
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
}

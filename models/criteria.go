package models

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type TimeRange string

const (
	TimeRangeAny    TimeRange = ""
	TimeRange24h    TimeRange = "24h"
	TimeRange3d     TimeRange = "3d"
	TimeRange7d     TimeRange = "7d"
	TimeRangeCustom TimeRange = "custom"
)

// SearchCriteria is supplied at job creation and never mutated afterwards.
type SearchCriteria struct {
	Areas         []string   `json:"areas" validate:"required,min=1,dive,required"`
	OwnerOnly     bool       `json:"owner_only"`
	MaxPricePerM2 float64    `json:"max_price_per_m2,omitempty" validate:"omitempty,gt=0"`
	TimeRange     TimeRange  `json:"time_range,omitempty" validate:"omitempty,oneof=24h 3d 7d custom"`
	CustomStart   *time.Time `json:"custom_start,omitempty"`
	CustomEnd     *time.Time `json:"custom_end,omitempty"`
	Email         string     `json:"email,omitempty" validate:"omitempty,email"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func criteriaValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate returns a *ValidationError describing the first problem found.
func (c SearchCriteria) Validate() error {
	if err := criteriaValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Message: describeTag(fe)}
		}
		return &ValidationError{Field: "criteria", Message: err.Error()}
	}

	for _, area := range c.Areas {
		if strings.TrimSpace(area) == "" {
			return &ValidationError{Field: "areas", Message: "area names must not be blank"}
		}
	}

	if c.TimeRange == TimeRangeCustom {
		if c.CustomStart == nil || c.CustomEnd == nil {
			return &ValidationError{Field: "time_range", Message: "custom range needs custom_start and custom_end"}
		}
		if c.CustomEnd.Before(*c.CustomStart) {
			return &ValidationError{Field: "custom_end", Message: "custom_end is before custom_start"}
		}
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Since returns the lower bound of the criteria's time window, or the zero
// time when no window was requested.
func (c SearchCriteria) Since(now time.Time) time.Time {
	switch c.TimeRange {
	case TimeRange24h:
		return now.Add(-24 * time.Hour)
	case TimeRange3d:
		return now.Add(-72 * time.Hour)
	case TimeRange7d:
		return now.Add(-7 * 24 * time.Hour)
	case TimeRangeCustom:
		if c.CustomStart != nil {
			return *c.CustomStart
		}
	}
	return time.Time{}
}

// Until returns the upper bound for custom windows, zero otherwise.
func (c SearchCriteria) Until() time.Time {
	if c.TimeRange == TimeRangeCustom && c.CustomEnd != nil {
		return *c.CustomEnd
	}
	return time.Time{}
}

// Key is a canonical, order-independent representation used for caching.
func (c SearchCriteria) Key() string {
	areas := make([]string, 0, len(c.Areas))
	for _, a := range c.Areas {
		areas = append(areas, strings.ToLower(strings.TrimSpace(a)))
	}
	sort.Strings(areas)

	parts := []string{
		strings.Join(areas, ","),
		strconv.FormatBool(c.OwnerOnly),
		strconv.FormatFloat(c.MaxPricePerM2, 'f', -1, 64),
		string(c.TimeRange),
	}
	if c.TimeRange == TimeRangeCustom {
		parts = append(parts, formatOptionalTime(c.CustomStart), formatOptionalTime(c.CustomEnd))
	}
	return strings.Join(parts, "|")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (c SearchCriteria) String() string {
	return fmt.Sprintf("areas=%s owner_only=%t max_price_per_m2=%.0f range=%s",
		strings.Join(c.Areas, ","), c.OwnerOnly, c.MaxPricePerM2, c.TimeRange)
}

package entitytype

import (
	"fmt"
	"regexp"
	"time"

	"github.com/canopyhq/canopy/internal/domain"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

// ValidateData checks an entity's dynamic data against the type's field
// definitions. Every violation is collected; the returned error is a
// *domain.ValidationError carrying all of them, or nil when data is clean.
// Unknown field ids are rejected so typos never silently persist.
func (t *EntityType) ValidateData(data map[string]any) error {
	verr := &domain.ValidationError{}

	for _, f := range t.Fields {
		value, ok := data[f.ID]
		if !ok || value == nil || value == "" {
			if f.Required {
				verr.Add(f.ID, "required field is missing")
			}
			continue
		}
		if msg := checkFieldValue(f, value); msg != "" {
			verr.Add(f.ID, msg)
		}
	}

	for id := range data {
		if _, ok := t.FieldByID(id); !ok {
			verr.Add(id, "unknown field for entity type "+t.Slug)
		}
	}

	if verr.Empty() {
		return nil
	}
	return verr
}

// checkFieldValue returns an empty string when value satisfies the field
// definition, or a human-readable violation message.
func checkFieldValue(f Field, value any) string {
	switch f.Type {
	case FieldString, FieldText, FieldURL, FieldEmail:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected a string, got %T", value)
		}
		return checkStringConstraints(f, s)
	case FieldSelect:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected a string, got %T", value)
		}
		for _, opt := range f.Constraints.Options {
			if s == opt {
				return ""
			}
		}
		return fmt.Sprintf("%q is not one of the allowed options", s)
	case FieldNumber:
		n, ok := asFloat(value)
		if !ok {
			return fmt.Sprintf("expected a number, got %T", value)
		}
		if f.Constraints.Min != nil && n < *f.Constraints.Min {
			return fmt.Sprintf("must be >= %v", *f.Constraints.Min)
		}
		if f.Constraints.Max != nil && n > *f.Constraints.Max {
			return fmt.Sprintf("must be <= %v", *f.Constraints.Max)
		}
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected a boolean, got %T", value)
		}
	case FieldDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected a date string, got %T", value)
		}
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return ""
			}
		}
		return fmt.Sprintf("%q is not a valid date", s)
	default:
		return fmt.Sprintf("unsupported field type %q", f.Type)
	}
	return ""
}

func checkStringConstraints(f Field, s string) string {
	c := f.Constraints
	if c.MinLength > 0 && len(s) < c.MinLength {
		return fmt.Sprintf("must be at least %d characters", c.MinLength)
	}
	if c.MaxLength > 0 && len(s) > c.MaxLength {
		return fmt.Sprintf("must be at most %d characters", c.MaxLength)
	}
	if c.Pattern != "" {
		re, err := regexp.Compile("^(?:" + c.Pattern + ")$")
		if err != nil {
			return "field has an invalid pattern constraint"
		}
		if !re.MatchString(s) {
			return "does not match the required pattern"
		}
	}
	return ""
}

// asFloat normalizes JSON-decoded numerics.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

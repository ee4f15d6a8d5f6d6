package silver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opendatafab/sirene-lake/contract"
)

// Date bounds applied during coercion. SIRENE carries placeholder dates far
// outside any plausible registration window; values outside these bounds are
// coerced to NULL on nullable columns rather than rejected, matching the
// upstream extract's documented noise.
var (
	minDate = time.Date(1678, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDate = time.Date(2261, 12, 31, 0, 0, 0, 0, time.UTC)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// coerce attempts safe type coercion of a raw value into the column's
// declared type. It returns the coerced value (nil for NULL) or an error when
// the value cannot be represented in the target type. Coercion never loses
// information silently: a parse failure is an error, not a NULL.
func coerce(col contract.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		v = s
	}

	switch col.Type {
	case contract.TypeString:
		switch tv := v.(type) {
		case string:
			return tv, nil
		case float64, int, int32, int64, bool:
			return fmt.Sprintf("%v", tv), nil
		}
	case contract.TypeFloat:
		switch tv := v.(type) {
		case float64:
			return tv, nil
		case float32:
			return float64(tv), nil
		case int:
			return float64(tv), nil
		case int32:
			return float64(tv), nil
		case int64:
			return float64(tv), nil
		case string:
			f, err := strconv.ParseFloat(tv, 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", tv)
			}
			return f, nil
		}
	case contract.TypeBool:
		switch tv := v.(type) {
		case bool:
			return tv, nil
		case string:
			b, err := strconv.ParseBool(strings.ToLower(tv))
			if err != nil {
				return nil, fmt.Errorf("not a boolean: %q", tv)
			}
			return b, nil
		}
	case contract.TypeDate:
		switch tv := v.(type) {
		case time.Time:
			return boundDate(col, tv)
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, tv); err == nil {
					return boundDate(col, t.UTC())
				}
			}
			return nil, fmt.Errorf("not a date: %q", tv)
		}
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, col.Type)
}

func boundDate(col contract.Column, t time.Time) (any, error) {
	if t.Before(minDate) || t.After(maxDate) {
		if col.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("date %s outside representable range", t.Format("2006-01-02"))
	}
	return t, nil
}

package tablesync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ColType classifies a column for comparison purposes.
type ColType int

const (
	TypeUnknown ColType = iota
	TypeString
	TypeNumeric
)

func (t ColType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumeric:
		return "numeric"
	}
	return "unknown"
}

// compareRows orders two projections the same way the generated ORDER BY
// does: NULLs first, numerics as arbitrary-precision decimals, strings
// bytewise. Columns marked long are skipped — they ride along in mutation
// parameters but never participate in ordering.
func compareRows(a, b []any, coltypes []ColType, long []bool) (int, error) {
	for i := range coltypes {
		if long[i] {
			continue
		}
		av, aNull := valueText(a[i])
		bv, bNull := valueText(b[i])
		switch {
		case aNull && bNull:
			continue
		case aNull:
			return -1, nil
		case bNull:
			return 1, nil
		}

		if coltypes[i] == TypeNumeric {
			ad, err := decimal.NewFromString(av)
			if err != nil {
				return 0, fmt.Errorf("column %d: bad numeric %q: %w", i, av, err)
			}
			bd, err := decimal.NewFromString(bv)
			if err != nil {
				return 0, fmt.Errorf("column %d: bad numeric %q: %w", i, bv, err)
			}
			if c := ad.Cmp(bd); c != 0 {
				return c, nil
			}
			continue
		}

		if c := strings.Compare(av, bv); c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

// valueText renders a driver value as comparable text. The bool result is
// the NULL flag.
func valueText(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, false
	case []byte:
		return string(x), false
	case int:
		return strconv.Itoa(x), false
	case int32:
		return strconv.FormatInt(int64(x), 10), false
	case int64:
		return strconv.FormatInt(x, 10), false
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), false
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), false
	case bool:
		if x {
			return "1", false
		}
		return "0", false
	case time.Time:
		return x.Format("2006-01-02 15:04:05"), false
	case decimal.Decimal:
		return x.String(), false
	default:
		return fmt.Sprintf("%v", x), false
	}
}

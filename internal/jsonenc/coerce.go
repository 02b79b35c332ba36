package jsonenc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fastsql2json/sql2json/internal/db"
)

// Coerce converts one backend value into a value encoding/json renders as the
// matching JSON scalar. It never fails: anything that cannot become a number
// is returned as a string or nil.
func Coerce(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return uint64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case float32:
		return widen(x)
	case float64:
		return finite(x)
	case []byte:
		return coerceText(string(x))
	case string:
		return coerceText(x)
	case db.Date:
		return x.String()
	case db.TimeOfDay:
		return x.String()
	case time.Time:
		return formatTimestamp(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// widen converts f through its shortest decimal form so a FLOAT column holding
// 0.1 encodes as 0.1 rather than 0.10000000149011612.
func widen(f float32) any {
	wide := float64(f)
	if math.IsNaN(wide) || math.IsInf(wide, 0) {
		return nil
	}
	d, err := strconv.ParseFloat(strconv.FormatFloat(wide, 'g', -1, 32), 64)
	if err != nil {
		return wide
	}
	return d
}

func formatTimestamp(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format(time.DateTime)
	}
	return t.Format("2006-01-02 15:04:05.000000")
}

// coerceText applies the numeric heuristic to textual values: integer first,
// then float with trailing zeros and a trailing point trimmed, else the
// original string.
func coerceText(s string) any {
	if !looksNumeric(s) {
		return s
	}

	trimmed := s
	if strings.Contains(s, ".") && !strings.ContainsAny(s, "eE") {
		trimmed = strings.TrimRight(trimmed, "0")
		trimmed = strings.TrimSuffix(trimmed, ".")
		if trimmed == "" || trimmed == "-" || trimmed == "+" {
			trimmed += "0"
		}
	}

	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	} else if errors.Is(err, strconv.ErrRange) {
		if u, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			return u
		}
		return s
	}

	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	return f
}

// looksNumeric rejects text that strconv would accept but that is not a plain
// decimal literal, such as "0x1F", "Inf" or "1_000".
func looksNumeric(s string) bool {
	digits := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '+', c == '-', c == '.', c == 'e', c == 'E':
		default:
			return false
		}
	}
	return digits
}

package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResultGroup is the tabular output of one statement.
type ResultGroup struct {
	Columns []string
	Rows    [][]any
}

// ResultSet holds one ResultGroup per result-producing statement, in
// statement order.
type ResultSet []ResultGroup

// RowCount returns the number of rows across all groups.
func (rs ResultSet) RowCount() int {
	n := 0
	for _, g := range rs {
		n += len(g.Rows)
	}
	return n
}

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date part of t.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeOfDay is a clock time, or a signed duration for backends (MySQL TIME)
// whose hour field may exceed 23.
type TimeOfDay struct {
	Negative     bool
	Hours        int
	Minutes      int
	Seconds      int
	Microseconds int
}

// String formats t as HH:MM:SS.ffffff.
func (t TimeOfDay) String() string {
	sign := ""
	if t.Negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%02d:%02d:%02d.%06d", sign, t.Hours, t.Minutes, t.Seconds, t.Microseconds)
}

// ParseTimeOfDay parses the textual TIME form used by MySQL and PostgreSQL:
// [-]H+:MM:SS[.fraction]. The fraction is truncated to microseconds.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	orig := s
	if strings.HasPrefix(s, "-") {
		t.Negative = true
		s = s[1:]
	}

	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s, frac = s[:i], s[i+1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q", orig)
	}

	fields := []*int{&t.Hours, &t.Minutes, &t.Seconds}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return TimeOfDay{}, fmt.Errorf("invalid time %q", orig)
		}
		*fields[i] = n
	}

	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		us, err := strconv.Atoi(frac)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time %q", orig)
		}
		t.Microseconds = us
	}

	return t, nil
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	ts, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(ts), nil
}

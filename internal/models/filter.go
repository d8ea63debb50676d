package models

import (
	"errors"
	"strings"
	"time"
)

var errBadBound = errors.New("expected RFC 3339 timestamp or YYYY-MM-DD date")

// ParseBound parses a list filter bound given as RFC 3339 or a bare date.
// A bare date used as an upper bound covers that whole day. Empty input
// means no bound.
func ParseBound(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, errBadBound
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return &d, nil
}

// NewListFilter builds a ListFilter from transport strings. Bad bounds are
// reported as a ValidationError naming the field.
func NewListFilter(referenceType, dateFrom, dateTo, search string) (ListFilter, error) {
	f := ListFilter{
		ReferenceType: ReferenceType(strings.ToLower(strings.TrimSpace(referenceType))),
		Search:        search,
	}
	var err error
	if f.DateFrom, err = ParseBound(dateFrom, false); err != nil {
		return f, &ValidationError{Fields: []string{"dateFrom"}, Reason: err.Error()}
	}
	if f.DateTo, err = ParseBound(dateTo, true); err != nil {
		return f, &ValidationError{Fields: []string{"dateTo"}, Reason: err.Error()}
	}
	return f, nil
}

// Package csvexport renders tracking events as CSV for download.
//
// The whole document is built in memory; callers bound its size through the
// list window.
package csvexport

import (
	"strings"
	"time"

	"github.com/BearBump/TrackLog/internal/models"
)

const DatetimeLayout = "02/01/2006 15:04:05"

var header = []string{"Datetime", "Type", "Code", "Event type", "Location", "Description", "Status"}

type Options struct {
	// Location for the Datetime column. UTC when nil.
	Location *time.Location
}

// ToCSV writes a header line and one line per event, in the given order.
// Every field is quoted and embedded quotes are doubled, so commas and line
// breaks inside values survive a round trip.
func ToCSV(events []*models.TrackingEvent, opts Options) string {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	writeRow(&b, header)
	for _, e := range events {
		var code, status string
		if e.ReferenceData != nil {
			code = e.ReferenceData.Code
			status = e.ReferenceData.Status
		}
		writeRow(&b, []string{
			e.EventTime.In(loc).Format(DatetimeLayout),
			e.ReferenceType.Label(),
			code,
			e.EventType,
			deref(e.LocationText),
			deref(e.Description),
			status,
		})
	}
	return b.String()
}

func writeRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

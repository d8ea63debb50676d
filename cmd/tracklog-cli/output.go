package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BearBump/TrackLog/internal/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func renderEvents(w io.Writer, events []*models.TrackingEvent) {
	if len(events) == 0 {
		warningColor.Fprintln(w, "No events")
		return
	}
	headerColor.Fprintf(w, "%-20s %-9s %-14s %-5s %-18s %-24s %s\n",
		"TIME", "TYPE", "CODE", "SEQ", "EVENT", "LOCATION", "STATUS")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, e := range events {
		code, status := e.ReferenceID, ""
		if e.ReferenceData != nil {
			code, status = e.ReferenceData.Code, e.ReferenceData.Status
		}
		fmt.Fprintf(w, "%-20s %-9s %-14s %-5d %-18s %-24s %s\n",
			e.EventTime.UTC().Format("2006-01-02 15:04:05"),
			e.ReferenceType.Label(),
			truncate(code, 14),
			e.Sequence,
			truncate(e.EventType, 18),
			truncate(deref(e.LocationText), 24),
			status,
		)
	}
}

func renderStats(w io.Writer, st models.Stats) {
	headerColor.Fprintln(w, "STATS")
	fmt.Fprintf(w, "  %-16s %d\n", "Total events", st.TotalEvents)
	fmt.Fprintf(w, "  %-16s %d\n", "Trip events", st.TripEvents)
	fmt.Fprintf(w, "  %-16s %d\n", "Shipment events", st.ShipmentEvents)
	fmt.Fprintf(w, "  %-16s %d\n", "Today", st.TodayEvents)
	line := fmt.Sprintf("  %-16s %d\n", "Stopped items", st.StoppedItems)
	if st.StoppedItems > 0 {
		warningColor.Fprint(w, line)
	} else {
		fmt.Fprint(w, line)
	}
	fmt.Fprintf(w, "  %-16s %s\n", "Computed at", st.ComputedAt.Format(time.RFC3339))
}

func renderStopped(w io.Writer, items []models.StoppedItem) {
	if len(items) == 0 {
		successColor.Fprintln(w, "Nothing is stopped")
		return
	}
	headerColor.Fprintf(w, "%-9s %-16s %-12s %s\n", "TYPE", "CODE", "STATUS", "SINCE")
	for _, it := range items {
		fmt.Fprintf(w, "%-9s %-16s %-12s %s\n",
			it.Type.Label(), truncate(it.Code, 16), it.Status, it.StoppedSince.UTC().Format(time.RFC3339))
	}
}

func renderSearch(w io.Writer, results []models.SearchResult) {
	if len(results) == 0 {
		warningColor.Fprintln(w, "No matches")
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "%-9s %-16s %-12s %s\n", r.Type.Label(), r.Code, r.Status, r.ID)
	}
}

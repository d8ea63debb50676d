package tracklog

import (
	"strings"

	"github.com/BearBump/TrackLog/internal/models"
)

// matchesSearch reports whether term occurs, ignoring case, in the event's
// reference code, description or location text. term must already be
// trimmed and lowercased; an empty term matches everything.
func matchesSearch(ev *models.TrackingEvent, term string) bool {
	if term == "" {
		return true
	}
	if ev.ReferenceData != nil && strings.Contains(strings.ToLower(ev.ReferenceData.Code), term) {
		return true
	}
	if ev.Description != nil && strings.Contains(strings.ToLower(*ev.Description), term) {
		return true
	}
	if ev.LocationText != nil && strings.Contains(strings.ToLower(*ev.LocationText), term) {
		return true
	}
	return false
}

func filterEvents(events []*models.TrackingEvent, search string) []*models.TrackingEvent {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return events
	}
	out := make([]*models.TrackingEvent, 0, len(events))
	for _, ev := range events {
		if matchesSearch(ev, term) {
			out = append(out, ev)
		}
	}
	return out
}

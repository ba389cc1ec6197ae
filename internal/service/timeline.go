package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// DefaultTimeline is the single phase used when an event has none.
func DefaultTimeline(label string, start, end time.Time) []model.TimelinePhase {
	if strings.TrimSpace(label) == "" {
		label = "Event"
	}
	return []model.TimelinePhase{{StartAt: start.UTC(), EndAt: end.UTC(), Label: label}}
}

// RegenerateTimeline maps phases planned for [oldStart, oldEnd) onto
// [newStart, newEnd), keeping each phase's relative position and share
// of the interval.  An empty timeline becomes the default single phase.
func RegenerateTimeline(phases []model.TimelinePhase, oldStart, oldEnd, newStart, newEnd time.Time, label string) []model.TimelinePhase {
	oldDur := oldEnd.Sub(oldStart)
	if len(phases) == 0 || oldDur <= 0 {
		return DefaultTimeline(label, newStart, newEnd)
	}
	ratio := float64(newEnd.Sub(newStart)) / float64(oldDur)
	mapTime := func(t time.Time) time.Time {
		off := time.Duration(float64(t.Sub(oldStart)) * ratio).Round(time.Second)
		m := newStart.Add(off)
		if m.Before(newStart) {
			return newStart
		}
		if m.After(newEnd) {
			return newEnd
		}
		return m
	}
	out := make([]model.TimelinePhase, 0, len(phases))
	for _, p := range phases {
		out = append(out, model.TimelinePhase{
			StartAt:     mapTime(p.StartAt).UTC(),
			EndAt:       mapTime(p.EndAt).UTC(),
			Label:       p.Label,
			Description: p.Description,
		})
	}
	return out
}

// validateTimeline checks that every phase sits inside the event and
// returns the phases ordered by start.
func validateTimeline(phases []model.TimelinePhase, start, end time.Time) ([]model.TimelinePhase, error) {
	out := make([]model.TimelinePhase, 0, len(phases))
	for i, p := range phases {
		field := fmt.Sprintf("timeline[%d]", i)
		if strings.TrimSpace(p.Label) == "" {
			return nil, invalid(field+".label", "is required")
		}
		if !p.StartAt.Before(p.EndAt) {
			return nil, invalid(field, "phase must end after it starts")
		}
		if p.StartAt.Before(start) || p.EndAt.After(end) {
			return nil, invalid(field, "phase %q lies outside the event", p.Label)
		}
		p.StartAt, p.EndAt = p.StartAt.UTC(), p.EndAt.UTC()
		p.Label = strings.TrimSpace(p.Label)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

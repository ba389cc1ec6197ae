package handler

// Clients send run sheets in several shapes that accumulated over time:
//
//	["09:00–10:30: Registration", ...]
//	[{"start_at": "...", "end_at": "...", "label": "...", "description": "..."}, ...]
//	[{"start": "09:00", "end": "10:30", "phase": "...", "description": "..."}, ...]
//	{"09:00-10:30": "Registration", ...}
//
// parseTimeline collapses all of them into model.TimelinePhase before the
// request reaches the service.  Clock times are taken on the event's start
// date; an end at or before its start rolls over to the next day.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/validator"
)

var rangeRe = regexp.MustCompile(`^\s*(\d{1,2}:\d{2})\s*(?:-|–|—|to)\s*(\d{1,2}:\d{2})\s*(?::\s*(.*))?$`)

type phaseObject struct {
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
	Time        string     `json:"time"`
	Label       string     `json:"label"`
	Phase       string     `json:"phase"`
	Activity    string     `json:"activity"`
	Description string     `json:"description"`
}

func parseTimeline(raw json.RawMessage, day time.Time) ([]model.TimelinePhase, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	day = day.UTC()
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, timelineErr("must be a list of phases")
		}
		out := make([]model.TimelinePhase, 0, len(items))
		for i, it := range items {
			p, err := parsePhase(it, day)
			if err != nil {
				return nil, timelineErr("entry %d: %s", i, err.Error())
			}
			out = append(out, p)
		}
		return out, nil
	case '{':
		var legacy map[string]string
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, timelineErr("must map time ranges to labels")
		}
		keys := make([]string, 0, len(legacy))
		for k := range legacy {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]model.TimelinePhase, 0, len(keys))
		for _, k := range keys {
			p, err := parseLine(k+": "+legacy[k], day)
			if err != nil {
				return nil, timelineErr("%q: %s", k, err.Error())
			}
			out = append(out, p)
		}
		return out, nil
	}
	return nil, timelineErr("must be a list or an object")
}

func parsePhase(raw json.RawMessage, day time.Time) (model.TimelinePhase, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseLine(s, day)
	}
	var o phaseObject
	if err := json.Unmarshal(raw, &o); err != nil {
		return model.TimelinePhase{}, fmt.Errorf("unrecognised phase")
	}
	label := firstNonEmpty(o.Label, o.Phase, o.Activity)
	if o.StartAt != nil && o.EndAt != nil {
		return model.TimelinePhase{StartAt: o.StartAt.UTC(), EndAt: o.EndAt.UTC(), Label: label, Description: o.Description}, nil
	}
	if o.Time != "" {
		p, err := parseLine(o.Time, day)
		if err != nil {
			return model.TimelinePhase{}, err
		}
		p.Label = firstNonEmpty(label, p.Label)
		p.Description = o.Description
		return p, nil
	}
	if o.Start == "" || o.End == "" {
		return model.TimelinePhase{}, fmt.Errorf("start and end are required")
	}
	start, end, err := clockRange(o.Start, o.End, day)
	if err != nil {
		return model.TimelinePhase{}, err
	}
	return model.TimelinePhase{StartAt: start, EndAt: end, Label: label, Description: o.Description}, nil
}

// parseLine reads "HH:MM–HH:MM: Label".
func parseLine(s string, day time.Time) (model.TimelinePhase, error) {
	m := rangeRe.FindStringSubmatch(s)
	if m == nil {
		return model.TimelinePhase{}, fmt.Errorf("expected HH:MM-HH:MM: label")
	}
	start, end, err := clockRange(m[1], m[2], day)
	if err != nil {
		return model.TimelinePhase{}, err
	}
	return model.TimelinePhase{StartAt: start, EndAt: end, Label: strings.TrimSpace(m[3])}, nil
}

func clockRange(from, to string, day time.Time) (time.Time, time.Time, error) {
	start, err := atClock(from, day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atClock(to, day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func atClock(hhmm string, day time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad clock time %q", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func timelineErr(format string, args ...any) error {
	return &validator.FieldError{Field: "timeline", Message: fmt.Sprintf(format, args...)}
}

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

func TestRegenerateTimeline(t *testing.T) {
	t.Parallel()
	phases := []model.TimelinePhase{
		{StartAt: on(9, 0), EndAt: on(10, 0), Label: "Registration"},
		{StartAt: on(10, 0), EndAt: on(12, 0), Label: "Talks", Description: "keynote first"},
	}

	tests := []struct {
		name       string
		start, end time.Time
		want       [][2]time.Time
	}{
		{"shifted", on(13, 0), on(16, 0), [][2]time.Time{{on(13, 0), on(14, 0)}, {on(14, 0), on(16, 0)}}},
		{"stretched", on(13, 0), on(19, 0), [][2]time.Time{{on(13, 0), on(15, 0)}, {on(15, 0), on(19, 0)}}},
		{"compressed", on(8, 0), on(9, 30), [][2]time.Time{{on(8, 0), on(8, 30)}, {on(8, 30), on(9, 30)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RegenerateTimeline(phases, on(9, 0), on(12, 0), tt.start, tt.end, "Fair")
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.True(t, w[0].Equal(got[i].StartAt), "phase %d start %s", i, got[i].StartAt)
				assert.True(t, w[1].Equal(got[i].EndAt), "phase %d end %s", i, got[i].EndAt)
				assert.Equal(t, phases[i].Label, got[i].Label)
			}
			assert.Equal(t, "keynote first", got[1].Description)
		})
	}
}

func TestRegenerateTimeline_EmptyBecomesDefault(t *testing.T) {
	t.Parallel()
	got := RegenerateTimeline(nil, on(9, 0), on(12, 0), on(13, 0), on(14, 0), "Fair")
	require.Len(t, got, 1)
	assert.Equal(t, "Fair", got[0].Label)
	assert.True(t, on(13, 0).Equal(got[0].StartAt))
	assert.True(t, on(14, 0).Equal(got[0].EndAt))

	assert.Equal(t, "Event", DefaultTimeline(" ", on(9, 0), on(10, 0))[0].Label)
}

func TestValidateTimeline(t *testing.T) {
	t.Parallel()
	start, end := on(9, 0), on(12, 0)

	got, err := validateTimeline([]model.TimelinePhase{
		{StartAt: on(10, 0), EndAt: on(12, 0), Label: " Talks "},
		{StartAt: on(9, 0), EndAt: on(10, 0), Label: "Registration"},
	}, start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Registration", got[0].Label)
	assert.Equal(t, "Talks", got[1].Label)

	bad := map[string]model.TimelinePhase{
		"no label":   {StartAt: on(9, 0), EndAt: on(10, 0)},
		"reversed":   {StartAt: on(10, 0), EndAt: on(9, 0), Label: "x"},
		"before":     {StartAt: on(8, 0), EndAt: on(10, 0), Label: "x"},
		"after":      {StartAt: on(11, 0), EndAt: on(13, 0), Label: "x"},
		"zero width": {StartAt: on(10, 0), EndAt: on(10, 0), Label: "x"},
	}
	for name, p := range bad {
		_, err := validateTimeline([]model.TimelinePhase{p}, start, end)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, name)
	}
}

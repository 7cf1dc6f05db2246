package sample

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusPending, false},
		{StatusProcessing, StatusProcessing, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestUpdateValidate(t *testing.T) {
	d := Diagnosis{Verdict: Positive, Confidence: 80, ParasiteCount: 3, Findings: "rings"}

	require.NoError(t, Processing().Validate(StatusPending))
	require.NoError(t, Completed(d).Validate(StatusProcessing))
	require.NoError(t, Failed(ReasonRateLimited).Validate(StatusProcessing))

	var te *TransitionError
	assert.ErrorAs(t, Completed(d).Validate(StatusPending), &te)
	assert.Equal(t, StatusPending, te.From)

	assert.Error(t, Update{Status: StatusCompleted}.Validate(StatusProcessing))
	assert.Error(t, Update{Status: StatusFailed}.Validate(StatusProcessing))
	assert.Error(t, Update{Status: StatusFailed, Reason: "boom"}.Validate(StatusProcessing))
	assert.Error(t, Update{Status: StatusFailed, Reason: ReasonUpstreamError, Diagnosis: &d}.Validate(StatusProcessing))
	assert.Error(t, Update{Status: StatusProcessing, Reason: ReasonUpstreamError}.Validate(StatusPending))
	assert.Error(t, Completed(Diagnosis{Verdict: "maybe"}).Validate(StatusProcessing))
}

func rank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	default:
		return 2
	}
}

// Random walks over arbitrary proposed updates: only validated ones are
// applied, and the record stays consistent and forward-only throughout.
func TestRandomTransitionsKeepInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	reasons := []ReasonCode{"", ReasonRateLimited, ReasonQuotaExhausted, ReasonUpstreamError}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for walk := 0; walk < 500; walk++ {
		s := *NewPending("s", "ref", now)
		require.True(t, s.Consistent())

		for step := 0; step < 8; step++ {
			u := Update{
				Status: statuses[rng.Intn(len(statuses))],
				Reason: reasons[rng.Intn(len(reasons))],
			}
			if rng.Intn(2) == 0 {
				u.Diagnosis = &Diagnosis{Verdict: Negative, Confidence: rng.Intn(101)}
			}
			if err := u.Validate(s.Status); err != nil {
				continue
			}
			before := s.Status
			s = s.Apply(u, now.Add(time.Duration(step)*time.Second))

			require.True(t, s.Consistent(), "walk %d step %d: %+v", walk, step, s)
			require.Equal(t, s.Status == StatusCompleted, s.Diagnosis != nil)
			require.Greater(t, rank(s.Status), rank(before))
		}
	}
}

func TestReportAnnotate(t *testing.T) {
	r := Report{PatientName: "A", SpeciesLabel: "P. vivax"}
	name := "B"
	notes := ""
	r.Annotate(Annotations{PatientName: &name, PatientNotes: &notes})

	assert.Equal(t, "B", r.PatientName)
	assert.Equal(t, "", r.PatientNotes)
	assert.Equal(t, "P. vivax", r.SpeciesLabel)
}

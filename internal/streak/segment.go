// Package streak implements the core engagement algorithm: it segments a
// participant's weekly activity sequence into maximal same-valued runs and
// classifies the shape of that history into reminder decisions.
package streak

import (
	"github.com/rotisserie/eris"

	"github.com/harborlab/cohortwatch/internal/model"
)

// Run is a maximal contiguous stretch of identically-valued weekly activity
// for one participant. Start is the individual week index of the run's first
// week. Runs are derived on demand and never persisted.
type Run struct {
	Active bool
	Start  int
	Length int
}

// Segment partitions one session's ordered observations into runs. The
// week indices must be contiguous starting at 1; a gap means the upstream
// weekly grouping is broken and the session cannot be classified, so the
// error is returned instead of a best-effort segmentation.
//
// The produced runs cover every week exactly once and adjacent runs never
// share a value. A single observation yields a single run of length 1.
func Segment(obs []model.WeeklyObservation) ([]Run, error) {
	for i, o := range obs {
		if o.WeekIndex != i+1 {
			return nil, eris.Errorf(
				"streak: non-contiguous week index for session %s: week %d at position %d",
				o.Session, o.WeekIndex, i+1,
			)
		}
	}

	values := make([]bool, len(obs))
	for i, o := range obs {
		values[i] = o.Active
	}
	return segment(values), nil
}

// segment run-length encodes a boolean sequence. The first element always
// opens run 1; every later element opens a new run iff its value differs
// from its predecessor.
func segment(values []bool) []Run {
	var runs []Run
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			runs = append(runs, Run{Active: v, Start: i + 1, Length: 1})
			continue
		}
		runs[len(runs)-1].Length++
	}
	return runs
}

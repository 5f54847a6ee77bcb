package streak

import "github.com/harborlab/cohortwatch/internal/model"

// Classify derives the reminder decision from a session's run sequence.
//
// CurrentInactiveWeeks is the trailing run's length when that run is
// inactive, else 0. InactiveStreaks counts inactive runs of length >= 2;
// each qualifying run counts exactly once no matter how long it grows, and
// the trailing run is included the moment it reaches 2, so a participant
// can turn severe in the same week their reminder fires.
//
// Remind is true only at exactly two trailing inactive weeks: one miss is
// too early, and three or more were already covered by the reminder sent at
// week two of the same streak.
func Classify(runs []Run) model.Classification {
	var c model.Classification
	if len(runs) == 0 {
		return c
	}

	last := runs[len(runs)-1]
	if !last.Active {
		c.CurrentInactiveWeeks = last.Length
	}

	for _, r := range runs {
		if !r.Active && r.Length >= 2 {
			c.InactiveStreaks++
		}
	}

	c.Remind = c.CurrentInactiveWeeks == 2
	c.Severe = c.InactiveStreaks >= 2
	return c
}

// Evaluate segments and classifies one session's observations in one step.
func Evaluate(obs []model.WeeklyObservation) (model.Classification, error) {
	runs, err := Segment(obs)
	if err != nil {
		return model.Classification{}, err
	}
	return Classify(runs), nil
}

package weekly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborlab/cohortwatch/internal/model"
)

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func resp(session, created string, expired bool) model.RawResponse {
	r := model.RawResponse{Session: session, CreatedAt: ts(created)}
	if expired {
		exp := r.CreatedAt.Add(7 * 24 * time.Hour)
		r.ExpiredAt = &exp
	}
	return r
}

func TestWeekKey_ShiftMovesBoundary(t *testing.T) {
	// Wednesday 2024-05-08 08:00 sits in ISO week 19 unshifted, but 81
	// hours earlier is Saturday 2024-05-04 23:00, ISO week 18: the shifted
	// boundary reassigns early-week responses to the previous study week.
	instant := ts("2024-05-08 08:00:00")

	year, week := instant.ISOWeek()
	require.Equal(t, 2024, year)
	require.Equal(t, 19, week)

	assert.Equal(t, 202418, WeekKey(instant, DefaultShift))
	assert.Equal(t, WeekKey(instant.Add(-81*time.Hour), 0), WeekKey(instant, DefaultShift))
}

func TestWeekKey_ShiftKeepsLateWeekResponses(t *testing.T) {
	// Friday stays in its own study week even under the shift.
	instant := ts("2024-05-10 12:00:00")
	_, week := instant.ISOWeek()
	require.Equal(t, 19, week)
	assert.Equal(t, 202419, WeekKey(instant, DefaultShift))
}

func TestWeekKey_YearBoundary(t *testing.T) {
	// 2024-01-01 is ISO week 1 of 2024; shifted back it lands in ISO week
	// 52 of 2023, and the year*100 encoding keeps the keys sortable across
	// the year change.
	instant := ts("2024-01-01 10:00:00")
	key := WeekKey(instant, DefaultShift)
	assert.Equal(t, 202352, key)
	assert.Less(t, key, WeekKey(ts("2024-01-08 10:00:00"), DefaultShift))
}

func TestNormalize_AssignsIndividualWeekIndex(t *testing.T) {
	obs := Normalize([]model.RawResponse{
		resp("s1", "2024-05-10 12:00:00", false),
		resp("s1", "2024-05-17 12:00:00", true),
		resp("s1", "2024-05-24 12:00:00", false),
	}, DefaultShift)

	require.Len(t, obs, 3)
	for i, o := range obs {
		assert.Equal(t, "s1", o.Session)
		assert.Equal(t, i+1, o.WeekIndex)
	}
	assert.True(t, obs[0].Active)
	assert.False(t, obs[1].Active)
	assert.True(t, obs[2].Active)
}

func TestNormalize_IndexIsPerSession(t *testing.T) {
	// s2 enrolls three weeks after s1; both still start at week 1.
	obs := Normalize([]model.RawResponse{
		resp("s1", "2024-05-10 12:00:00", false),
		resp("s1", "2024-05-17 12:00:00", false),
		resp("s2", "2024-05-31 12:00:00", false),
	}, DefaultShift)

	grouped := BySession(obs)
	require.Len(t, grouped["s1"], 2)
	require.Len(t, grouped["s2"], 1)
	assert.Equal(t, 1, grouped["s2"][0].WeekIndex)
}

func TestNormalize_CollapsesDuplicateWeekByOR(t *testing.T) {
	// An expired reminder and an answered instance in the same week: the
	// week is active because at least one instance was not expired.
	obs := Normalize([]model.RawResponse{
		resp("s1", "2024-05-10 09:00:00", true),
		resp("s1", "2024-05-11 09:00:00", false),
	}, DefaultShift)

	require.Len(t, obs, 1)
	assert.True(t, obs[0].Active)
}

func TestNormalize_AllExpiredWeekIsInactive(t *testing.T) {
	obs := Normalize([]model.RawResponse{
		resp("s1", "2024-05-10 09:00:00", true),
		resp("s1", "2024-05-11 09:00:00", true),
	}, DefaultShift)

	require.Len(t, obs, 1)
	assert.False(t, obs[0].Active)
}

func TestNormalize_DropsEmptySessionKey(t *testing.T) {
	obs := Normalize([]model.RawResponse{
		resp("", "2024-05-10 09:00:00", false),
	}, DefaultShift)
	assert.Empty(t, obs)
}

func TestNormalize_NoRecords(t *testing.T) {
	assert.Empty(t, Normalize(nil, DefaultShift))
}

func TestNormalize_Deterministic(t *testing.T) {
	records := []model.RawResponse{
		resp("s2", "2024-05-10 12:00:00", false),
		resp("s1", "2024-05-17 12:00:00", true),
		resp("s1", "2024-05-10 12:00:00", false),
		resp("s3", "2024-05-24 12:00:00", false),
	}

	first := Normalize(records, DefaultShift)
	second := Normalize(records, DefaultShift)
	assert.Equal(t, first, second)
}

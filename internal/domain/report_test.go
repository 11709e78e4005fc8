package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateRange_ContainsWeek(t *testing.T) {
	since := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	r := DateRange{Since: &since, Until: &until}

	testCases := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{name: "ends exactly at since", start: since.AddDate(0, 0, -7), want: false},
		{name: "overlaps since", start: since.AddDate(0, 0, -6), want: true},
		{name: "inside", start: since.AddDate(0, 0, 7), want: true},
		{name: "starts at until", start: until, want: true},
		{name: "starts after until", start: until.Add(time.Second), want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.ContainsWeek(tc.start))
		})
	}

	assert.True(t, DateRange{}.IsZero())
	assert.True(t, DateRange{}.ContainsWeek(time.Unix(0, 0)))
	assert.True(t, DateRange{Until: &until}.ContainsWeek(time.Unix(0, 0)))
}

func TestFetchOutcome(t *testing.T) {
	repo := Repository{Name: "api"}
	assert.True(t, Success(repo, RepoStats{}).Succeeded())
	assert.False(t, Failure(repo, &RepositoryFetchError{Repository: "api", Reason: "404"}).Succeeded())
	assert.False(t, WeekStat{}.Active())
	assert.True(t, WeekStat{Deletions: 1}.Active())
}

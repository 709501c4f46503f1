package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMatchRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"negative score", `{"team1Name":"A","team2Name":"B","score1":-1,"status":"waiting"}`},
		{"bad half", `{"team1Name":"A","team2Name":"B","currentHalf":3,"status":"waiting"}`},
		{"unknown status", `{"team1Name":"A","team2Name":"B","status":"paused"}`},
		{"missing team", `{"team1Name":"A","status":"waiting"}`},
		{"not json", `{"team1Name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMatch("m1", []byte(tt.raw))
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDecodeMatchKeepsNullableFields(t *testing.T) {
	raw := `{"team1Name":"Alpha","team2Name":"Beta","score1":2,"score2":0,"status":"playing",
		"currentHalf":1,"startTime":1000,"scheduledTime":null,"matchDate":"2024-06-01","matchStartedAt":1000}`

	m, err := DecodeMatch("m1", []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "m1", m.ID)
	assert.Nil(t, m.ScheduledTime)
	require.NotNil(t, m.MatchDate)
	assert.Equal(t, "2024-06-01", *m.MatchDate)
	assert.Equal(t, 2, m.Score(Side1))
	assert.Equal(t, "Beta", m.TeamName(Side2))
}

func TestClockFormatting(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatClock(-time.Second))
	assert.Equal(t, "01:02:03", FormatClock(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "75:03", FormatHalfClock(75*time.Minute+3*time.Second))
	assert.Equal(t, "00:09", FormatHalfClock(9*time.Second+900*time.Millisecond))
	assert.Equal(t, "100:00", FormatHalfClock(100*time.Minute))
}

func TestDateFormatting(t *testing.T) {
	assert.Equal(t, "01.06.2024", FormatDay("2024-06-01"))
	assert.Equal(t, "garbage", FormatDay("garbage"))
	assert.True(t, ValidDate("2024-02-29"))
	assert.False(t, ValidDate("2023-02-29"))

	ms := time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "01.06.2024 18:30", FormatDayTime(ms, time.UTC))
}

func TestChampionshipKey(t *testing.T) {
	assert.Equal(t, "spring_cup_2024", ChampionshipKey("  Spring Cup 2024 "))
	assert.Equal(t, "a_b_c", ChampionshipKey("A.B-C"))
}

func TestSortGoalsForDisplay(t *testing.T) {
	goals := []Goal{
		{ID: "c", Half: 2, MatchTime: "03:10"},
		{ID: "b", Half: 1, MatchTime: "40:00"},
		{ID: "a", Half: 1, MatchTime: "09:59"},
		{ID: "e", Half: 1, MatchTime: FormatHalfClock(100 * time.Minute)},
		{ID: "d", Half: 1, MatchTime: FormatHalfClock(99*time.Minute + 59*time.Second)},
	}
	SortGoalsForDisplay(goals)

	var ids []string
	for _, g := range goals {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"a", "b", "d", "e", "c"}, ids)
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" 2 ")
	require.NoError(t, err)
	assert.Equal(t, Side2, s)
	assert.Equal(t, "score2", s.ScoreField())

	_, err = ParseSide("3")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDisplayDate(t *testing.T) {
	day := "2024-05-30"
	created := time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC).UnixMilli()
	sched := time.Date(2024, 6, 2, 19, 0, 0, 0, time.UTC).UnixMilli()

	assert.Equal(t, "30.05.2024", DisplayDate(Match{Status: StatusEnded, MatchDate: &day, CreatedAt: created}, time.UTC))
	assert.Equal(t, "02.06.2024 19:00", DisplayDate(Match{Status: StatusScheduled, MatchDate: &day, ScheduledTime: &sched}, time.UTC))
	assert.Equal(t, "01.05.2024 09:05", DisplayDate(Match{Status: StatusWaiting, CreatedAt: created}, time.UTC))
	assert.Equal(t, "-", DisplayDate(Match{Status: StatusEnded}, time.UTC))
}

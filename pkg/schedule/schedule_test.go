package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery(t *testing.T) {
	s := Every(5 * time.Minute)
	now := time.Now()

	assert.Equal(t, now.Add(5*time.Minute), s.Next(now))
}

func TestEvery_MultipleNext(t *testing.T) {
	s := Every(time.Hour)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	next1 := s.Next(start)
	next2 := s.Next(next1)

	assert.Equal(t, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), next1)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), next2)
}

func TestCron(t *testing.T) {
	s := Cron("0 9 * * *")
	from := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	next := s.Next(from)

	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestCron_Weekdays(t *testing.T) {
	s := Cron("30 14 * * 1-5")
	from := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC) // Saturday

	next := s.Next(from)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 14, next.Hour())
	assert.Equal(t, 30, next.Minute())
}

func TestCron_InvalidExpression_Panics(t *testing.T) {
	assert.Panics(t, func() {
		Cron("invalid cron")
	})
}

func TestParse(t *testing.T) {
	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		spec string
		want time.Time
	}{
		{"10m", from.Add(10 * time.Minute)},
		{" 1h ", from.Add(time.Hour)},
		{"@hourly", time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)},
		{"@every 30s", from.Add(30 * time.Second)},
		{"*/15 * * * *", time.Date(2024, 1, 1, 12, 15, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := Parse(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(from))
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, spec := range []string{"", "   ", "-5m", "0s", "every day"} {
		_, err := Parse(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}

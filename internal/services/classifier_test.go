package services

import (
	"testing"

	"clinicflow/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		attended int
		missed   int
		current  models.Category
		want     models.Category
	}{
		{"too few visits keeps default", 2, 0, models.CategoryGood, models.CategoryGood},
		{"too few visits keeps override", 1, 1, models.CategoryAtRisk, models.CategoryAtRisk},
		{"rate 80 is very good", 4, 1, models.CategoryGood, models.CategoryVeryGood},
		{"rate 100 is very good", 3, 0, models.CategoryGood, models.CategoryVeryGood},
		{"rate 66.6 is good", 2, 1, models.CategoryAtRisk, models.CategoryGood},
		{"rate 60 is good", 3, 2, models.CategoryGood, models.CategoryGood},
		{"rate below 60 is at risk", 1, 2, models.CategoryGood, models.CategoryAtRisk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.attended, tt.missed, tt.current))
		})
	}
}

func TestCategoryTransitionSequence(t *testing.T) {
	user := &models.User{UserName: "sara", AttendedCount: 2, MissedCount: 1, Category: models.CategoryGood}

	// 3/1: rate 75, still good.
	ApplyAttendance(user, true)
	assert.Equal(t, models.CategoryGood, user.Category)
	assert.InDelta(t, 75, user.AttendanceRate, 0.001)

	// 4/1: rate 80, promoted.
	ApplyAttendance(user, true)
	assert.Equal(t, models.CategoryVeryGood, user.Category)
	assert.InDelta(t, 80, user.AttendanceRate, 0.001)
}

func TestApplyAttendanceScore(t *testing.T) {
	user := &models.User{UserName: "omar"}

	ApplyAttendance(user, true)
	assert.Equal(t, 10, user.Score)

	ApplyAttendance(user, false)
	assert.Equal(t, 5, user.Score)

	// The score clamps at zero.
	ApplyAttendance(user, false)
	ApplyAttendance(user, false)
	assert.Equal(t, 0, user.Score)
	assert.Equal(t, 1, user.AttendedCount)
	assert.Equal(t, 3, user.MissedCount)
}

func TestReminderPlan(t *testing.T) {
	assert.Equal(t, []int{24}, ReminderPlan(models.CategoryVeryGood))
	assert.Equal(t, []int{24, 2}, ReminderPlan(models.CategoryGood))
	assert.Equal(t, []int{48, 6, 1}, ReminderPlan(models.CategoryAtRisk))
}

func TestMessageCategoryFor(t *testing.T) {
	assert.Equal(t, models.PositiveNudge, MessageCategoryFor(models.CategoryVeryGood))
	assert.Equal(t, models.DefaultNudge, MessageCategoryFor(models.CategoryGood))
	assert.Equal(t, models.ReEngagement, MessageCategoryFor(models.CategoryAtRisk))
}

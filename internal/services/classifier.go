package services

import (
	"clinicflow/internal/models"
)

// Behavior classification is pure: everything derives from the user's
// attendance counters, so both the reminder plan and the admission gate can
// be tested without storage.

const (
	// A category only becomes meaningful after this many resolved visits.
	minVisitsForCategory = 3

	attendedScoreDelta = 10
	missedScorePenalty = 5
)

// Categorize maps an attendance rate onto a behavior class. Below the
// minimum visit count the existing category is kept.
func Categorize(attended, missed int, current models.Category) models.Category {
	total := attended + missed
	if total < minVisitsForCategory {
		return current
	}
	rate := 100 * float64(attended) / float64(total)
	switch {
	case rate >= 80:
		return models.CategoryVeryGood
	case rate >= 60:
		return models.CategoryGood
	default:
		return models.CategoryAtRisk
	}
}

// ReminderPlan returns the lead hours before the appointment at which
// nudges fire, most distant first.
func ReminderPlan(category models.Category) []int {
	switch category {
	case models.CategoryVeryGood:
		return []int{24}
	case models.CategoryAtRisk:
		return []int{48, 6, 1}
	default:
		return []int{24, 2}
	}
}

// MessageCategoryFor picks which template pool a behavior class draws from.
func MessageCategoryFor(category models.Category) models.MessageCategory {
	switch category {
	case models.CategoryVeryGood:
		return models.PositiveNudge
	case models.CategoryAtRisk:
		return models.ReEngagement
	default:
		return models.DefaultNudge
	}
}

// ApplyAttendance folds one resolved visit into the user's counters, score,
// rate and category. The score never goes below zero.
func ApplyAttendance(user *models.User, attended bool) {
	if attended {
		user.AttendedCount++
		user.Score += attendedScoreDelta
	} else {
		user.MissedCount++
		user.Score -= missedScorePenalty
		if user.Score < 0 {
			user.Score = 0
		}
	}
	total := user.TotalVisits()
	user.AttendanceRate = 100 * float64(user.AttendedCount) / float64(total)
	user.Category = Categorize(user.AttendedCount, user.MissedCount, user.Category)
}

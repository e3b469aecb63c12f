package stats

import (
	"time"

	"github.com/ikolcov/pinboard/internal/models"
	"github.com/shopspring/decimal"
)

// Aggregate summarizes a snapshot. Revenue counts every post, expired pins
// included, and the average of an empty board is zero.
func Aggregate(posts []models.Post, now time.Time) models.Stats {
	result := models.Stats{
		TotalPosts:     len(posts),
		TotalRevenue:   decimal.Zero,
		AveragePayment: decimal.Zero,
	}
	for _, post := range posts {
		if post.EffectivelyPinned(now) {
			result.PinnedPosts++
		}
		result.TotalRevenue = result.TotalRevenue.Add(post.PaymentAmount)
	}
	if result.TotalPosts > 0 {
		result.AveragePayment = result.TotalRevenue.Div(decimal.NewFromInt(int64(result.TotalPosts)))
	}
	return result
}

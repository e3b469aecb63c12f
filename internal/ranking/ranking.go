// Package ranking orders posts for display. Every function here is pure: it
// reads a snapshot and a reference time and never touches storage.
package ranking

import (
	"fmt"
	"slices"
	"time"

	"github.com/ikolcov/pinboard/internal/models"
)

// BadgeCount is how many top payers get a visible rank.
const BadgeCount = 3

// byAmount orders by payment amount, then recency, then id, all descending.
// Ids break ties between posts created in the same instant.
func byAmount(a, b models.Post) int {
	if c := b.PaymentAmount.Cmp(a.PaymentAmount); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.Id > b.Id:
		return -1
	case a.Id < b.Id:
		return 1
	}
	return 0
}

// Rank returns a new slice with effectively pinned posts first, each
// partition ordered by byAmount.
func Rank(posts []models.Post, now time.Time) []models.Post {
	ranked := slices.Clone(posts)
	slices.SortStableFunc(ranked, func(a, b models.Post) int {
		aPinned, bPinned := a.EffectivelyPinned(now), b.EffectivelyPinned(now)
		if aPinned != bPinned {
			if aPinned {
				return -1
			}
			return 1
		}
		return byAmount(a, b)
	})
	return ranked
}

// RankBadges assigns ranks 1..BadgeCount to the highest paying posts. Posts
// that paid nothing never get a badge. Pin state plays no part here.
func RankBadges(posts []models.Post) map[models.PostID]int {
	paid := make([]models.Post, 0, len(posts))
	for _, post := range posts {
		if post.PaymentAmount.IsPositive() {
			paid = append(paid, post)
		}
	}
	slices.SortStableFunc(paid, byAmount)

	badges := make(map[models.PostID]int, BadgeCount)
	for i := 0; i < len(paid) && i < BadgeCount; i++ {
		badges[paid[i].Id] = i + 1
	}
	return badges
}

// View ranks posts and decorates them for display. A live pin hides the rank
// badge; the crown marks rank 1.
func View(posts []models.Post, now time.Time) []models.RankedPost {
	badges := RankBadges(posts)
	ranked := Rank(posts, now)

	view := make([]models.RankedPost, 0, len(ranked))
	for _, post := range ranked {
		entry := models.RankedPost{
			Post:              post,
			EffectivelyPinned: post.EffectivelyPinned(now),
		}
		if !entry.EffectivelyPinned {
			entry.Rank = badges[post.Id]
			entry.Crown = entry.Rank == 1
		}
		if post.PinExpiry != nil {
			entry.PinTimeRemaining = TimeRemaining(*post.PinExpiry, now)
		}
		view = append(view, entry)
	}
	return view
}

func TimeRemaining(expiry time.Time, now time.Time) string {
	left := expiry.Sub(now)
	if left <= 0 {
		return "Expired"
	}
	minutes := int(left / time.Minute)
	if hours := minutes / 60; hours > 0 {
		return fmt.Sprintf("%dh %dm left", hours, minutes%60)
	}
	return fmt.Sprintf("%dm left", minutes)
}

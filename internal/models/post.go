package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PostID int64

type Post struct {
	Id               PostID          `json:"id"`
	Title            string          `json:"title"`
	Content          string          `json:"content"`
	Link             string          `json:"link,omitempty"`
	Author           string          `json:"author,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	PaymentAmount    decimal.Decimal `json:"paymentAmount"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	Pinned           bool            `json:"pinned"`
	PinExpiry        *time.Time      `json:"pinExpiry,omitempty"`
}

// EffectivelyPinned reports whether the pin is still live at now, regardless
// of whether the stored flag has been flipped by a sweep yet.
func (p Post) EffectivelyPinned(now time.Time) bool {
	return p.Pinned && p.PinExpiry != nil && p.PinExpiry.After(now)
}

// PinLapsed reports whether a sweep at now should flip the stored flag.
func (p Post) PinLapsed(now time.Time) bool {
	return p.Pinned && p.PinExpiry != nil && !p.PinExpiry.After(now)
}

// RankedPost is a Post decorated for display.
type RankedPost struct {
	Post
	EffectivelyPinned bool   `json:"effectivelyPinned"`
	Rank              int    `json:"rank,omitempty"`
	Crown             bool   `json:"crown,omitempty"`
	PinTimeRemaining  string `json:"pinTimeRemaining,omitempty"`
}

type PostsPage struct {
	Posts    []Post `json:"posts"`
	NextPage string `json:"nextPage,omitempty"`
}

type RankedPage struct {
	Posts    []RankedPost `json:"posts"`
	NextPage string       `json:"nextPage,omitempty"`
}

type Stats struct {
	TotalPosts     int             `json:"totalPosts"`
	PinnedPosts    int             `json:"pinnedPosts"`
	TotalRevenue   decimal.Decimal `json:"totalRevenue"`
	AveragePayment decimal.Decimal `json:"averagePayment"`
}

package board

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

var demoDrafts = []Draft{
	{
		Title:            "Network launch",
		Content:          "The board is live. Pin a post to put it in front of everyone for an hour.",
		Link:             "https://example.org/launch",
		Author:           "Board Team",
		Pinned:           true,
		Amount:           decimal.NewFromInt(25),
		PaymentReference: "demo-0001",
	},
	{
		Title:            "Yield strategies thread",
		Content:          "New farming opportunities keep appearing across chains. Share what you are running.",
		Author:           "CryptoAnalyst",
		Pinned:           true,
		Amount:           decimal.NewFromInt(15),
		PaymentReference: "demo-0002",
	},
	{
		Title:            "Generative art drop tomorrow",
		Content:          "Ten thousand pieces go live tomorrow at 15:00 UTC.",
		Link:             "https://example.org/collection",
		Author:           "ArtistDAO",
		Amount:           decimal.NewFromInt(12),
		PaymentReference: "demo-0003",
	},
	{
		Title:            "Virtual developer meetup",
		Content:          "Smart contracts, layer 2 and cross-chain messaging. Free for everyone.",
		Author:           "DevCommunity",
		Amount:           decimal.NewFromInt(8),
		PaymentReference: "demo-0004",
	},
	{
		Title:            "Market analysis",
		Content:          "Resistance levels to watch this week and the breakout scenarios around them.",
		Author:           "TradingPro",
		Amount:           decimal.NewFromInt(6),
		PaymentReference: "demo-0005",
	},
}

const demoStagger = 30 * time.Minute

// SeedDemo fills an empty board with sample posts, each 30 minutes older than
// the previous one. Pinned samples stay pinned for a full pin duration from now.
// A board that already holds posts is left as is.
func (b *Board) SeedDemo(ctx context.Context) error {
	existing, err := b.storage.ListPosts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		b.logger.Info("board already has posts, skipping demo seed", "posts", len(existing))
		return nil
	}

	now := b.clock.Now()
	for i := len(demoDrafts) - 1; i >= 0; i-- {
		createdAt := now.Add(-time.Duration(i) * demoStagger)
		if _, err := b.insert(ctx, demoDrafts[i], createdAt, now); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/eygilbert/egdb"
)

func newCmdLookup() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Look up the game-theoretic value of a position",
		ArgsUsage: "<turn>:B<sq>,...:W<sq>,...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "conditional",
				Usage: "Fail fast with NOT_IN_CACHE instead of loading a missing block from disk",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one position argument, got %d", c.NArg())
			}
			pos, turn, err := parsePosition(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("parse position: %w", err)
			}

			h, err := egdb.Open(c.String("db"), c.String("options"), referenceOracle{}, referenceReverser{})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer h.Close()

			v := h.Lookup(pos, turn, c.Bool("conditional"))
			fmt.Println(describeValue(v))

			snap := h.Stats()
			fmt.Printf("requests=%d returns=%d not_present=%d lru_hits=%d lru_loads=%d autoload_hits=%d\n",
				snap.DbRequests, snap.DbReturns, snap.DbNotPresentRequests,
				snap.LruCacheHits, snap.LruCacheLoads, snap.AutoloadHits)
			return nil
		},
	}
}

func describeValue(v egdb.Value) string {
	switch v {
	case egdb.Unknown:
		return "UNKNOWN"
	case egdb.Win:
		return "WIN"
	case egdb.Loss:
		return "LOSS"
	case egdb.Draw:
		return "DRAW"
	case egdb.DrawOrLoss:
		return "DRAW_OR_LOSS"
	case egdb.WinOrDraw:
		return "WIN_OR_DRAW"
	case egdb.NotInCache:
		return "NOT_IN_CACHE"
	case egdb.SubdbUnavailable:
		return "SUBDB_UNAVAILABLE"
	default:
		return fmt.Sprintf("value(%d)", int8(v))
	}
}

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/eygilbert/egdb"
)

func newCmdVerify() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Compute and print CRC32 checksums for every file in the database (no comparison against expected values)",
		Action: func(c *cli.Context) error {
			h, err := egdb.Open(c.String("db"), c.String("options"), referenceOracle{}, referenceReverser{})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer h.Close()

			report, err := h.Verify(c.Context, nil)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			if report.Aborted {
				fmt.Println("verify: aborted")
				return nil
			}
			for _, f := range report.Files {
				fmt.Printf("%s  crc32=%08x\n", f.Prefix, f.CRC32)
			}
			if report.AnyMismatch() {
				return fmt.Errorf("verify: one or more files failed CRC check")
			}
			return nil
		},
	}
}

/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/comicfeed/comicfeed/db"
	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing episodes that are old.

		Removes episodes whose publish date is past the retention window.
		This is to keep the database size down for titles that are only
		followed for their recent episodes.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "comicfeed.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"COMICFEED_DATABASE"},
			},
			&cli.IntFlag{
				Name:    "retention-days",
				Aliases: []string{"r"},
				Value:   365,
				Usage:   "Age in days past which episodes are removed",
				EnvVars: []string{"COMICFEED_RETENTION_DAYS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)
			err := db.Tidy(database, ctx.Int("retention-days"))
			return err
		},
	}
}

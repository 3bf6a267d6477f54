/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/comicfeed/comicfeed/client"
	"github.com/comicfeed/comicfeed/models"
	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/urfave/cli/v2"
)

// refreshCmd represents the refresh command
func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Recrawl titles on a running service",
		Description: `Asks a running comicfeed service to recrawl titles and drop
their cached feeds, through the admin routes.

The service must have admin credentials configured. Titles are passed
as section/id pairs, e.g. webtoon/22896.`,
		ArgsUsage: "section/titleId ...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"H"},
				Value:   client.DefaultServiceHost,
				Usage:   "Base URL of the running service",
				EnvVars: []string{"COMICFEED_HOST"},
			},
			&cli.BoolFlag{
				Name:  "cache-only",
				Usage: "Only drop the cached feeds, do not recrawl",
			},
		},
		Action: func(ctx *cli.Context) error {
			args := ctx.Args().Slice()
			if len(args) == 0 {
				return errors.New("pass at least one title as section/id, e.g. webtoon/22896")
			}

			keys := make([]models.TitleKey, 0, len(args))
			for _, arg := range args {
				key, err := parseTitleArg(arg)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}

			username, err := prompt.New().Ask("Admin username:").Input("admin")
			if err != nil {
				return err
			}

			password, err := prompt.New().Ask("Admin password:").Input("", input.WithEchoMode(input.EchoNone))
			if err != nil {
				return err
			}

			admin := client.NewClient(ctx.String("host"), &client.Credentials{
				Username: username,
				Password: password,
			})

			for _, key := range keys {
				var result *client.RefreshResult
				if ctx.Bool("cache-only") {
					result, err = admin.InvalidateCache(ctx.Context, key)
				} else {
					result, err = admin.RefreshTitle(ctx.Context, key)
				}
				if err != nil {
					return fmt.Errorf("could not refresh %s: %w", key, err)
				}
				fmt.Printf("Refreshed %s, dropped %d cached feeds\n", result.Title, result.Invalidated)
			}

			return nil
		},
	}
}

func parseTitleArg(arg string) (models.TitleKey, error) {
	section, rawID, found := strings.Cut(arg, "/")
	if !found {
		return models.TitleKey{}, fmt.Errorf("invalid title %q, expected section/id", arg)
	}
	kind, ok := models.ParseKind(section)
	if !ok {
		return models.TitleKey{}, fmt.Errorf("unknown section %q in %q", section, arg)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id < 1 {
		return models.TitleKey{}, fmt.Errorf("invalid title id in %q", arg)
	}
	return models.TitleKey{Kind: kind, ID: id}, nil
}

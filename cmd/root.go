/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/urfave/cli/v2"
)

// Version is stamped into the Atom generator element
const Version = "1.0.0"

func RootApp() *cli.App {
	return &cli.App{
		Name:  "comicfeed",
		Usage: "Re-publish episodic webcomics as Atom feeds",
		Description: `Comicfeed crawls webcomic titles from the comic portal and
		re-publishes each title as an Atom feed with inline episode images.

		A background crawler stores titles and episodes in an SQLite database.
		The HTTP server renders the stored titles as Atom documents on demand,
		signs image URLs for the configured image proxy, caches the rendered
		documents, and can also serve a plain HTML rendering of each feed.

		Flags can generally be set via environment variables, e.g.:

		--database => COMICFEED_DATABASE=comicfeed.db
		--config => COMICFEED_CONFIG=config.toml
		`,
		Commands: []*cli.Command{
			serveCmd(),
			crawlCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			refreshCmd(),
			renderCmd(),
			signCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/comicfeed/comicfeed/transform"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// renderCmd represents the render command
func renderCmd() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Render an Atom feed document as HTML",
		Description: `Applies the feed to HTML transform the server uses to an Atom
document read from a file or stdin, and writes the HTML page to stdout.

Useful for checking what a feed will look like in a browser, and for
feed readers that strip the embedded episode images.

Prints all other log messages to stderr.`,
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "gallery",
				Aliases: []string{"g"},
				Value:   "content",
				Usage:   "Where episode images are read from: content or enclosure",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			var document []byte
			var err error
			if path := ctx.Args().First(); path != "" && path != "-" {
				document, err = os.ReadFile(path)
			} else {
				document, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return err
			}

			options := transform.Options{}
			switch ctx.String("gallery") {
			case "content":
				options.Gallery = transform.GalleryContent
			case "enclosure":
				options.Gallery = transform.GalleryEnclosure
			default:
				return fmt.Errorf("unknown gallery mode %q", ctx.String("gallery"))
			}

			page, err := transform.ToHTML(document, options)
			if err != nil {
				return err
			}

			_, err = os.Stdout.Write(page)
			return err
		},
	}
}

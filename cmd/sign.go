/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/comicfeed/comicfeed/config"
	"github.com/comicfeed/comicfeed/imgproxy"
	"github.com/urfave/cli/v2"
)

// signCmd represents the sign command
func signCmd() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Sign image URLs for the image proxy",
		Description: `Prints the proxied form of each image URL, using the proxy
settings from the configuration file.

With signing unconfigured the URLs come back unchanged. Handy for
checking proxy credentials against a known good signature.`,
		ArgsUsage: "url ...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "Path to the configuration file",
				EnvVars: []string{"COMICFEED_CONFIG"},
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.Args().Len() == 0 {
				return errors.New("pass at least one image URL to sign")
			}

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}

			signer := imgproxy.New(cfg.Proxy.URL, cfg.Proxy.Key, cfg.Proxy.Secret)
			for _, url := range ctx.Args().Slice() {
				signed, err := signer.Sign(url)
				if err != nil {
					return fmt.Errorf("could not sign %q: %w", url, err)
				}
				fmt.Println(signed)
			}

			return nil
		},
	}
}

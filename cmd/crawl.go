/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/comicfeed/comicfeed/config"
	"github.com/comicfeed/comicfeed/crawler"
	"github.com/comicfeed/comicfeed/db"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func crawlCmd() *cli.Command {
	return &cli.Command{
		Name:  "crawl",
		Usage: "Crawl titles into the database",
		Description: `Crawls the configured titles from the comic portal and stores
their metadata and episodes in the SQLite database.

Runs once and exits. With a cron schedule, from the configuration file
or the --schedule flag, it keeps running and crawls on every tick until
interrupted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "Path to the configuration file",
				EnvVars: []string{"COMICFEED_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "SQLite database file location, overrides the configuration file",
				EnvVars: []string{"COMICFEED_DATABASE"},
			},
			&cli.Int64SliceFlag{
				Name:    "titles",
				Aliases: []string{"t"},
				Usage:   "Title ids to crawl, overrides the configuration file",
				EnvVars: []string{"COMICFEED_TITLES"},
			},
			&cli.StringFlag{
				Name:    "schedule",
				Aliases: []string{"s"},
				Usage:   "Cron expression to crawl on, overrides the configuration file",
				EnvVars: []string{"COMICFEED_SCHEDULE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if ctx.String("database") != "" {
				cfg.Store.Database = ctx.String("database")
			}

			titles := cfg.Crawl.Titles
			if len(ctx.Int64Slice("titles")) > 0 {
				titles = ctx.Int64Slice("titles")
			}
			if len(titles) == 0 {
				return errors.New("no titles to crawl, set crawl.titles in the configuration or pass --titles")
			}

			if err := db.Migrate(cfg.Store.Database); err != nil {
				return err
			}

			eventChan := make(chan interface{}, 1000)
			reader := db.NewReader(cfg.Store.Database)
			writer := db.NewWriter(cfg.Store.Database, cfg.Store.RetentionDays, eventChan)

			// The writer signals here once it has drained every event
			done := make(chan struct{})
			go func() {
				writer.Subscribe()
				close(done)
			}()

			comics, err := crawler.New(crawler.Config{
				BaseURL:      cfg.Crawl.BaseURL,
				Timezone:     cfg.Crawl.Timezone,
				UserAgent:    cfg.Crawl.UserAgent,
				Workers:      cfg.Crawl.Workers,
				FetchTimeout: cfg.Crawl.Timeout.Duration,
			}, reader, eventChan)
			if err != nil {
				return err
			}

			schedule := cfg.Crawl.Schedule
			if ctx.String("schedule") != "" {
				schedule = ctx.String("schedule")
			}

			if schedule == "" {
				fmt.Printf("Crawling %d titles...\n", len(titles))
				_, crawlErr := comics.CrawlAll(ctx.Context, titles)
				close(eventChan)
				<-done
				return crawlErr
			}

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(schedule, func() {
				if _, err := comics.CrawlAll(ctx.Context, titles); err != nil {
					log.Error("Error crawling titles", err)
				}
			}); err != nil {
				return err
			}
			scheduler.Start()
			fmt.Printf("Crawling %d titles on schedule %q, interrupt to stop...\n", len(titles), schedule)

			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			<-c

			fmt.Println("Gracefully shutting down...")
			<-scheduler.Stop().Done()
			close(eventChan)
			<-done
			return nil
		},
	}
}

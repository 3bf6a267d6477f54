/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/comicfeed/comicfeed/atom"
	"github.com/comicfeed/comicfeed/cache"
	"github.com/comicfeed/comicfeed/config"
	"github.com/comicfeed/comicfeed/crawler"
	"github.com/comicfeed/comicfeed/db"
	"github.com/comicfeed/comicfeed/imgproxy"
	"github.com/comicfeed/comicfeed/server"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the comic feeds",
		Description: `Starts the comicfeed HTTP server.

Serves one Atom feed per stored title, a plain HTML rendering of each
feed, and a landing page listing all titles. When the configuration has
a crawl schedule the configured titles are recrawled on that schedule
and their cached feeds dropped.`,
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
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on, overrides the configuration file",
				EnvVars: []string{"COMICFEED_PORT"},
			},
		},
		Action: func(ctx *cli.Context) error {
			fmt.Println("Starting comicfeed...")

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if ctx.String("database") != "" {
				cfg.Store.Database = ctx.String("database")
			}
			if ctx.Int("port") != 0 {
				cfg.Server.Port = ctx.Int("port")
			}

			// The schema has to be current before readers touch it
			if err := db.Migrate(cfg.Store.Database); err != nil {
				return err
			}

			// Channel for store events emitted by crawls
			eventChan := make(chan interface{}, 1000)

			reader := db.NewReader(cfg.Store.Database)
			writer := db.NewWriter(cfg.Store.Database, cfg.Store.RetentionDays, eventChan)
			go writer.Subscribe()

			store, err := cacheStore(cfg)
			if err != nil {
				return err
			}
			feedCache := cache.New(store, cfg.Cache.TTL.Duration, cfg.Cache.RenderWait.Duration)

			signer := imgproxy.New(cfg.Proxy.URL, cfg.Proxy.Key, cfg.Proxy.Secret)
			assembler := atom.NewAssembler(signer, cfg.Server.ServiceURL, Version)

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

			app := server.Server(&server.ServerConfig{
				Reader:    reader,
				Assembler: assembler,
				Cache:     feedCache,
				Refresh:   comics.CrawlTitle,
				AdminUser: cfg.Admin.Username,
				AdminPass: cfg.Admin.Password,
			})

			var scheduler *cron.Cron
			if cfg.Crawl.Schedule != "" && len(cfg.Crawl.Titles) > 0 {
				scheduler = cron.New()
				if _, err := scheduler.AddFunc(cfg.Crawl.Schedule, func() {
					crawled, err := comics.CrawlAll(ctx.Context, cfg.Crawl.Titles)
					if err != nil {
						log.Error("Error crawling titles", err)
					}
					for _, key := range crawled {
						feedCache.Invalidate(key.String())
					}
				}); err != nil {
					return err
				}
				scheduler.Start()
				log.WithFields(log.Fields{
					"schedule": cfg.Crawl.Schedule,
					"titles":   len(cfg.Crawl.Titles),
				}).Info("Scheduled crawls")
			}

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			var wg sync.WaitGroup
			wg.Add(1)

			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				if scheduler != nil {
					scheduler.Stop()
				}
				app.ShutdownWithTimeout(60 * time.Second)
				defer wg.Done()
			}()

			go func() {
				fmt.Println("Starting server...")
				if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
					log.Panic(err)
				}
			}()

			wg.Wait()

			fmt.Println("Done!")
			return nil
		},
	}
}

func cacheStore(cfg *config.TomlConfig) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "lru":
		return cache.NewLRUStore(cfg.Cache.Capacity)
	default:
		return cache.NewMemoryStore(), nil
	}
}

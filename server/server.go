package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/comicfeed/comicfeed/atom"
	"github.com/comicfeed/comicfeed/cache"
	"github.com/comicfeed/comicfeed/db"
	"github.com/comicfeed/comicfeed/imgproxy"
	"github.com/comicfeed/comicfeed/models"
	"github.com/comicfeed/comicfeed/transform"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

//go:embed static/*
var static embed.FS

type ServerConfig struct {

	// The reader to use for loading titles from the store
	Reader *db.Reader

	// Assembler renders stored titles into Atom documents
	Assembler *atom.Assembler

	// Cache in front of the assembler, shared by feed and page routes
	Cache *cache.FeedCache

	// Refresh recrawls one title on demand, nil when no crawler runs
	Refresh func(ctx context.Context, titleID int64) (models.TitleKey, error)

	// AdminUser and AdminPass guard the admin routes. The routes are
	// not mounted at all while either value is empty.
	AdminUser string
	AdminPass string
}

// Returns a fiber.App instance to be used as an HTTP server for the comic feeds
func Server(config *ServerConfig) *fiber.App {

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	// Landing page with one row per stored title
	app.Get("/", func(c *fiber.Ctx) error {
		titles, err := config.Reader.ListTitles(c.Context())
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error listing titles")
			return c.Status(fiber.StatusBadGateway).SendString("Error listing titles")
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(indexPage(titles))
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Browsers only run the feed stylesheet when it comes back as XML
	app.Use("/static", func(c *fiber.Ctx) error {
		err := c.Next()
		if strings.HasSuffix(c.Path(), ".xsl") {
			c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
		}
		return err
	})

	app.Use("/static", filesystem.New(filesystem.Config{
		Browse:     false,
		Root:       http.FS(static),
		PathPrefix: "/static",
	}))

	if config.AdminUser != "" && config.AdminPass != "" {
		admin := app.Group("/admin", basicauth.New(basicauth.Config{
			Users: map[string]string{config.AdminUser: config.AdminPass},
		}))

		admin.Post("/titles/:kind/:titleID/refresh", func(c *fiber.Ctx) error {
			key, err := titleKey(c)
			if err != nil {
				return c.Status(fiber.StatusNotFound).SendString("Unknown title")
			}
			if config.Refresh == nil {
				return c.Status(fiber.StatusServiceUnavailable).SendString("No crawler configured")
			}

			crawled, err := config.Refresh(c.Context(), key.ID)
			if err != nil {
				log.WithFields(log.Fields{
					"title": key.String(),
					"error": err,
				}).Error("Error refreshing title")
				return c.Status(fiber.StatusBadGateway).SendString("Error refreshing title")
			}

			invalidated := config.Cache.Invalidate(crawled.String())
			return c.JSON(map[string]interface{}{
				"title":       crawled.String(),
				"invalidated": invalidated,
			})
		})

		admin.Delete("/cache/:kind/:titleID", func(c *fiber.Ctx) error {
			key, err := titleKey(c)
			if err != nil {
				return c.Status(fiber.StatusNotFound).SendString("Unknown title")
			}
			return c.JSON(map[string]interface{}{
				"invalidated": config.Cache.Invalidate(key.String()),
			})
		})
	}

	app.Get("/:kind/:titleID.xml", func(c *fiber.Ctx) error {
		key, err := titleKey(c)
		if err != nil {
			return c.Status(fiber.StatusNotFound).SendString("Unknown title")
		}
		limit := parseLimit(c)

		document, hit, err := feedDocument(c, config, key, limit)
		if err != nil {
			return feedError(c, key, err)
		}

		c.Set("X-Comicfeed-Cache", cacheHeader(hit))
		c.Set(fiber.HeaderContentType, document.ContentType)
		return c.Send(document.Body)
	})

	app.Get("/:kind/:titleID.html", func(c *fiber.Ctx) error {
		key, err := titleKey(c)
		if err != nil {
			return c.Status(fiber.StatusNotFound).SendString("Unknown title")
		}
		limit := parseLimit(c)

		document, hit, err := feedDocument(c, config, key, limit)
		if err != nil {
			return feedError(c, key, err)
		}

		gallery := transform.GalleryContent
		if c.Query("gallery") == "enclosure" {
			gallery = transform.GalleryEnclosure
		}
		page, err := transform.ToHTML(document.Body, transform.Options{Gallery: gallery})
		if err != nil {
			log.WithFields(log.Fields{
				"title": key.String(),
				"error": err,
			}).Error("Error transforming feed")
			return c.Status(fiber.StatusInternalServerError).SendString("Error transforming feed")
		}

		c.Set("X-Comicfeed-Cache", cacheHeader(hit))
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(page)
	})

	return app
}

// feedDocument loads the cached Atom document for a title, rendering it
// on a miss. The episode limit is part of the cache key because it
// changes the document.
func feedDocument(c *fiber.Ctx, config *ServerConfig, key models.TitleKey, limit int) (cache.Document, bool, error) {
	cacheKey := fmt.Sprintf("%s?limit=%d", key, limit)
	return config.Cache.GetOrRender(c.Context(), cacheKey, func(ctx context.Context) (cache.Document, error) {
		title, err := config.Reader.GetTitle(ctx, key, limit)
		if err != nil {
			return cache.Document{}, err
		}
		feed, err := config.Assembler.Render(title)
		if err != nil {
			return cache.Document{}, err
		}
		body, err := config.Assembler.Marshal(feed)
		if err != nil {
			return cache.Document{}, err
		}
		return cache.Document{Body: body, ContentType: atom.FeedContentType}, nil
	})
}

func feedError(c *fiber.Ctx, key models.TitleKey, err error) error {
	log.WithFields(log.Fields{
		"title": key.String(),
		"error": err,
	}).Error("Error rendering feed")

	switch {
	case errors.Is(err, db.ErrTitleNotFound):
		return c.Status(fiber.StatusNotFound).SendString("Unknown title")
	case errors.Is(err, cache.ErrRenderTimeout):
		return c.Status(fiber.StatusGatewayTimeout).SendString("Rendering timed out")
	case errors.Is(err, atom.ErrInvalidTitle), errors.Is(err, imgproxy.ErrInvalidImageURL):
		return c.Status(fiber.StatusInternalServerError).SendString("Stored title is unusable")
	}
	return c.Status(fiber.StatusBadGateway).SendString("Error rendering feed")
}

func titleKey(c *fiber.Ctx) (models.TitleKey, error) {
	kind, ok := models.ParseKind(c.Params("kind"))
	if !ok {
		return models.TitleKey{}, fmt.Errorf("unknown section %q", c.Params("kind"))
	}
	id, err := strconv.ParseInt(c.Params("titleID"), 10, 64)
	if err != nil || id < 1 {
		return models.TitleKey{}, fmt.Errorf("invalid title id %q", c.Params("titleID"))
	}
	return models.TitleKey{Kind: kind, ID: id}, nil
}

// parseLimit reads the optional episode limit, zero meaning all episodes
func parseLimit(c *fiber.Ctx) int {
	limit, err := strconv.Atoi(c.Query("limit", "0"))
	if err != nil || limit < 0 {
		limit = 0
	}
	return limit
}

func cacheHeader(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func indexPage(titles []models.Title) []byte {
	list := transform.Element("ul", transform.Attr{Name: "class", Value: "titles"})
	for _, title := range titles {
		list.Append(transform.Element("li").Append(
			transform.Element("a",
				transform.Attr{Name: "href", Value: fmt.Sprintf("/%s/%d.html", title.Kind, title.ID)},
			).Append(transform.Text(title.Name)),
			transform.Text(" "),
			transform.Element("a",
				transform.Attr{Name: "class", Value: "feed"},
				transform.Attr{Name: "href", Value: fmt.Sprintf("/%s/%d.xml", title.Kind, title.ID)},
			).Append(transform.Text("atom")),
		))
	}

	root := transform.Element("html").Append(
		transform.Element("head").Append(
			transform.Element("meta", transform.Attr{Name: "charset", Value: "utf-8"}),
			transform.Element("title").Append(transform.Text("comicfeed")),
			transform.Element("link",
				transform.Attr{Name: "rel", Value: "stylesheet"},
				transform.Attr{Name: "href", Value: "/static/styles.css"},
			),
		),
		transform.Element("body").Append(
			transform.Element("h1").Append(transform.Text("comicfeed")),
			list,
		),
	)
	return transform.RenderDocument(root)
}

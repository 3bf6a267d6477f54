package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/comicfeed/comicfeed/db"
	"github.com/comicfeed/comicfeed/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var episodesCrawled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "comicfeed_episodes_crawled_total",
	Help: "The total number of episodes fetched and stored",
})

// Config holds configuration for crawling the comic portal
type Config struct {
	BaseURL      string        // Portal root, no trailing slash
	Timezone     string        // Zone of the portal's list timestamps
	UserAgent    string        // Sent on every upstream request
	Workers      int           // Concurrent episode page fetches
	FetchTimeout time.Duration // Per request, retries excluded
}

// Crawler walks a title's episode list newest first and emits store
// events for everything published since the previous crawl.
type Crawler struct {
	config   Config
	fetcher  *fetcher
	reader   *db.Reader
	events   chan interface{}
	location *time.Location
}

type pendingEpisode struct {
	no        int64
	title     string
	published time.Time
}

func New(config Config, reader *db.Reader, events chan interface{}) (*Crawler, error) {
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("crawler: load timezone %q: %w", config.Timezone, err)
	}
	if config.Workers <= 0 {
		config.Workers = 20
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Crawler{
		config:   config,
		fetcher:  newFetcher(config.FetchTimeout, config.UserAgent),
		reader:   reader,
		events:   events,
		location: location,
	}, nil
}

// CrawlTitle refreshes one title: its metadata and every free episode
// newer than the newest one already stored. The title's section is not
// an input, it is read off the first list page.
func (c *Crawler) CrawlTitle(ctx context.Context, titleID int64) (models.TitleKey, error) {
	logger := log.WithFields(log.Fields{
		"job":     uuid.NewString(),
		"titleId": titleID,
	})

	list, err := c.fetchList(ctx, titleID, 1)
	if err != nil {
		return models.TitleKey{}, err
	}
	kind, segment, err := ParseKindCode(list.WebtoonLevelCode)
	if err != nil {
		return models.TitleKey{}, err
	}
	key := models.TitleKey{Kind: kind, ID: titleID}
	logger = logger.WithField("kind", string(kind))

	info, err := c.fetchInfo(ctx, titleID)
	if err != nil {
		return key, err
	}
	c.events <- models.UpsertTitleEvent{Title: models.Title{
		Kind:        kind,
		ID:          titleID,
		Name:        strings.TrimSpace(info.TitleName),
		Description: strings.TrimSpace(info.Synopsis),
		URL:         fmt.Sprintf("%s/%s/list?titleId=%d", c.config.BaseURL, segment, titleID),
		Artists:     Artists(info, c.config.BaseURL),
	}}

	latest, err := c.reader.LatestEpisodeNo(ctx, key)
	if err != nil {
		return key, err
	}
	logger.WithField("latest", latest).Info("Crawling episodes")

	count, err := c.crawlEpisodes(ctx, key, segment, list, latest)
	if err != nil {
		return key, err
	}
	c.events <- models.CrawlDoneEvent{Key: key}
	logger.WithField("episodes", count).Info("Crawl finished")

	return key, nil
}

// CrawlAll refreshes the given titles one after another and returns the
// keys that crawled cleanly. A failing title is logged and does not
// stop the rest.
func (c *Crawler) CrawlAll(ctx context.Context, titleIDs []int64) ([]models.TitleKey, error) {
	crawled := make([]models.TitleKey, 0, len(titleIDs))
	for _, titleID := range titleIDs {
		if ctx.Err() != nil {
			return crawled, ctx.Err()
		}
		key, err := c.CrawlTitle(ctx, titleID)
		if err != nil {
			log.WithField("titleId", titleID).Error("Error crawling title", err)
			continue
		}
		crawled = append(crawled, key)
	}
	if len(crawled) < len(titleIDs) {
		return crawled, fmt.Errorf("crawler: %d of %d titles failed", len(titleIDs)-len(crawled), len(titleIDs))
	}
	return crawled, nil
}

// crawlEpisodes fans episode page fetches out to a worker pool while the
// list pages are walked on the calling goroutine. firstPage is reused so
// the section probe does not cost an extra request.
func (c *Crawler) crawlEpisodes(ctx context.Context, key models.TitleKey, segment string, firstPage *EpisodeList, latest int64) (int, error) {
	queue := make(chan pendingEpisode, c.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for episode := range queue {
				if err := c.crawlEpisode(ctx, key, segment, episode); err != nil {
					log.Errorf("Worker %d: Error crawling episode %d of %s: %v", workerID, episode.no, key, err)
				}
			}
		}(i)
	}

	count, err := c.enumerate(ctx, key.ID, latest, firstPage, queue)
	wg.Wait()
	return count, err
}

// enumerate walks the list pages newest first and queues every new free
// episode. It stops at the first already stored or repeated episode
// number, or after the last page.
func (c *Crawler) enumerate(ctx context.Context, titleID int64, latest int64, firstPage *EpisodeList, queue chan<- pendingEpisode) (int, error) {
	defer close(queue)

	seen := make(map[int64]bool)
	count := 0
	list := firstPage
	for page := 1; ; page++ {
		if page > 1 {
			var err error
			list, err = c.fetchList(ctx, titleID, page)
			if err != nil {
				return count, err
			}
		}
		for _, article := range list.ArticleList {
			if article.Charge {
				continue
			}
			no, err := article.No.Int64()
			if err != nil {
				continue
			}
			if no <= latest || seen[no] {
				return count, nil
			}
			published, err := ParseEpisodeDate(article.ServiceDateDescription, c.location)
			if err != nil {
				log.WithFields(log.Fields{"titleId": titleID, "no": no}).Warn("Skipping episode with unreadable date")
				continue
			}
			seen[no] = true

			select {
			case queue <- pendingEpisode{no: no, title: article.Subtitle, published: published}:
				count++
			case <-ctx.Done():
				return count, ctx.Err()
			}
		}
		if page >= list.PageInfo.LastPage {
			return count, nil
		}
	}
}

func (c *Crawler) crawlEpisode(ctx context.Context, key models.TitleKey, segment string, episode pendingEpisode) error {
	url := fmt.Sprintf("%s/%s/detail?titleId=%d&no=%d", c.config.BaseURL, segment, key.ID, episode.no)
	page, err := c.fetcher.fetch(ctx, url)
	if err != nil {
		return err
	}
	imageURLs, book, description := ParseEpisodeDetail(page)

	c.events <- models.UpsertComicEvent{Key: key, Comic: models.Comic{
		URL:         url,
		No:          episode.no,
		Title:       episode.title,
		Book:        book,
		ImageURLs:   imageURLs,
		Description: description,
		PublishedAt: episode.published.UTC(),
	}}
	episodesCrawled.Inc()
	return nil
}

func (c *Crawler) fetchInfo(ctx context.Context, titleID int64) (*TitleInfo, error) {
	body, err := c.fetcher.fetch(ctx, fmt.Sprintf("%s/api/article/list/info?titleId=%d", c.config.BaseURL, titleID))
	if err != nil {
		return nil, err
	}
	return ParseInfo(body)
}

func (c *Crawler) fetchList(ctx context.Context, titleID int64, page int) (*EpisodeList, error) {
	url := fmt.Sprintf("%s/api/article/list?titleId=%d", c.config.BaseURL, titleID)
	if page > 1 {
		url = fmt.Sprintf("%s&page=%d", url, page)
	}
	body, err := c.fetcher.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseList(body)
}

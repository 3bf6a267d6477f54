package models

import (
	"fmt"
	"time"
)

// Kind is the upstream section a title is published under.
type Kind string

const (
	KindWebtoon       Kind = "webtoon"
	KindBestChallenge Kind = "bestchallenge"
	KindChallenge     Kind = "challenge"
)

// ParseKind validates a section name from a URL or config value.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindWebtoon, KindBestChallenge, KindChallenge:
		return Kind(s), true
	}
	return "", false
}

// TitleKey identifies a title across the store, cache and logs.
type TitleKey struct {
	Kind Kind
	ID   int64
}

func (k TitleKey) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.ID)
}

// Title is a comic series with its artists and stored episodes.
// Comics keep store order, newest first; feed rendering preserves it.
type Title struct {
	Kind        Kind
	ID          int64
	Name        string
	Description string
	URL         string
	Artists     []Artist
	Comics      []Comic
}

func (t Title) Key() TitleKey {
	return TitleKey{Kind: t.Kind, ID: t.ID}
}

type Artist struct {
	ID   int64
	Name string
	URLs []string
}

// Comic is a single episode of a title.
type Comic struct {
	URL         string
	No          int64
	Title       string
	Book        bool
	ImageURLs   []string
	Description string
	PublishedAt time.Time
}

// ImageLines partitions the episode images into display lines: two per
// line for book episodes, one for strips. Order is preserved and the
// last line may be shorter.
func (c Comic) ImageLines() [][]string {
	width := 1
	if c.Book {
		width = 2
	}
	lines := make([][]string, 0, (len(c.ImageURLs)+width-1)/width)
	for i := 0; i < len(c.ImageURLs); i += width {
		end := i + width
		if end > len(c.ImageURLs) {
			end = len(c.ImageURLs)
		}
		lines = append(lines, c.ImageURLs[i:end])
	}
	return lines
}

// UpsertTitleEvent fired when a crawl has the title's info page
type UpsertTitleEvent struct {
	Title Title
}

// UpsertComicEvent fired for each episode a crawl resolves
type UpsertComicEvent struct {
	Key   TitleKey
	Comic Comic
}

// CrawlDoneEvent fired after the last episode of a crawl run
type CrawlDoneEvent struct {
	Key TitleKey
}

package crawler

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/comicfeed/comicfeed/models"
	"github.com/samber/lo"
)

// JSON payloads of the portal's article API.
type TitleInfo struct {
	TitleName string              `json:"titleName"`
	Synopsis  string              `json:"synopsis"`
	Author    map[string][]Author `json:"author"`
}

type Author struct {
	ID      json.Number `json:"id"`
	Name    string      `json:"name"`
	BlogURL string      `json:"blogUrl"`
}

type EpisodeList struct {
	WebtoonLevelCode string    `json:"webtoonLevelCode"`
	ArticleList      []Article `json:"articleList"`
	PageInfo         PageInfo  `json:"pageInfo"`
}

type PageInfo struct {
	LastPage int `json:"lastPage"`
}

type Article struct {
	No                     json.Number `json:"no"`
	Subtitle               string      `json:"subtitle"`
	Charge                 bool        `json:"charge"`
	ServiceDateDescription string      `json:"serviceDateDescription"`
}

// Episode detail pages carry their data in inline script, not markup.
var (
	imageListPattern   = regexp.MustCompile(`imageList = (\[.+\])`)
	bookImagePattern   = regexp.MustCompile(`real_url\((https?://[^)]+)\)`)
	authorWordsPattern = regexp.MustCompile(`"authorWords":("(?:\\.|[^"\\])*")`)
	tzAbbrevPattern    = regexp.MustCompile(`[A-Z]{3} (\d{4})$`)
	digitRunPattern    = regexp.MustCompile(`\D+`)
)

func ParseInfo(body []byte) (*TitleInfo, error) {
	var info TitleInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("crawler: parse title info: %w", err)
	}
	return &info, nil
}

func ParseList(body []byte) (*EpisodeList, error) {
	var list EpisodeList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("crawler: parse episode list: %w", err)
	}
	return &list, nil
}

// ParseKindCode maps the list API's level code to the section used in
// our routes and the path segment the portal uses in episode URLs.
func ParseKindCode(code string) (models.Kind, string, error) {
	switch code {
	case "WEBTOON":
		return models.KindWebtoon, "webtoon", nil
	case "BEST_CHALLENGE":
		return models.KindBestChallenge, "bestChallenge", nil
	case "CHALLENGE":
		return models.KindChallenge, "challenge", nil
	}
	return "", "", fmt.Errorf("crawler: unknown webtoon level code %q", code)
}

// ParseEpisodeDate reads the list API's serviceDateDescription. The usual
// shape is a ctime-like string with a zone abbreviation before the year,
// in the portal's local time. Anything else is salvaged by reading the
// digit runs as year down to second, with two-digit years meaning 20xx.
func ParseEpisodeDate(raw string, loc *time.Location) (time.Time, error) {
	cleaned := tzAbbrevPattern.ReplaceAllString(strings.TrimSpace(raw), "$1")
	if parsed, err := time.ParseInLocation("Mon Jan 02 15:04:05 2006", cleaned, loc); err == nil {
		return parsed, nil
	}

	var fields []int
	for _, digits := range digitRunPattern.Split(strings.TrimSpace(raw), -1) {
		if digits == "" {
			continue
		}
		value, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		fields = append(fields, value)
	}
	if len(fields) == 0 {
		return time.Time{}, fmt.Errorf("crawler: unreadable episode date %q", raw)
	}
	for len(fields) < 6 {
		fields = append(fields, 0)
	}
	fields = fields[:6]
	if fields[0] < 100 {
		fields[0] += 2000
	}
	return time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5], 0, time.UTC), nil
}

// ParseEpisodeDetail extracts the image URLs and author note from an
// episode page. Strip episodes list their images in an imageList array;
// book style episodes hide them in real_url(...) classes.
func ParseEpisodeDetail(page []byte) ([]string, bool, string) {
	description := "."
	if match := authorWordsPattern.FindSubmatch(page); match != nil {
		var raw string
		if err := json.Unmarshal(match[1], &raw); err == nil {
			description = html.UnescapeString(raw)
		}
	}

	if match := imageListPattern.FindSubmatch(page); match != nil {
		var imageURLs []string
		if err := json.Unmarshal(match[1], &imageURLs); err == nil {
			return imageURLs, false, description
		}
	}

	var imageURLs []string
	for _, match := range bookImagePattern.FindAllSubmatch(page, -1) {
		imageURLs = append(imageURLs, string(match[1]))
	}
	return imageURLs, len(imageURLs) > 0, description
}

// Artists flattens the info payload's per-category author lists into an
// ordered, deduplicated artist list. Categories are visited in name order
// so the result is stable across fetches.
func Artists(info *TitleInfo, baseURL string) []models.Artist {
	categories := make([]string, 0, len(info.Author))
	for category := range info.Author {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var all []models.Artist
	for _, category := range categories {
		for _, author := range info.Author[category] {
			id, err := author.ID.Int64()
			if err != nil {
				continue
			}
			urls := []string{}
			if author.BlogURL != "" {
				urls = append(urls, author.BlogURL)
			}
			urls = append(urls, fmt.Sprintf("%s/artistTitle.nhn?artistId=%d", baseURL, id))
			all = append(all, models.Artist{ID: id, Name: author.Name, URLs: urls})
		}
	}

	return lo.UniqBy(all, func(artist models.Artist) int64 { return artist.ID })
}

package transform_test

import (
	"strings"
	"testing"
	"time"

	"github.com/comicfeed/comicfeed/atom"
	"github.com/comicfeed/comicfeed/imgproxy"
	"github.com/comicfeed/comicfeed/models"
	"github.com/comicfeed/comicfeed/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedXML(entries string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<?xml-stylesheet type="text/xsl" href="https://feeds.example.com/static/atom2html.xsl"?>` +
		`<feed xmlns="http://www.w3.org/2005/Atom">` +
		`<title>Sound of Heart</title>` +
		`<subtitle>A daily gag strip.</subtitle>` +
		`<id>http://comic.naver.com/webtoon/22896</id>` +
		`<link rel="self" href="https://feeds.example.com/webtoon/22896.xml"></link>` +
		`<link rel="alternate" href="http://comic.naver.com/webtoon/22896"></link>` +
		`<generator uri="https://feeds.example.com" version="1.0.0">comicfeed</generator>` +
		entries +
		`</feed>`)
}

func entryXML(title, published string) string {
	return `<entry>` +
		`<title>` + title + `</title>` +
		`<id>http://comic.naver.com/episode/` + title + `</id>` +
		`<link rel="alternate" href="http://comic.naver.com/episode/` + title + `"></link>` +
		`<published>` + published + `</published>` +
		`<updated>` + published + `</updated>` +
		`<summary type="text">about ` + title + `</summary>` +
		`<content type="xhtml">` +
		`<div xmlns="http://www.w3.org/1999/xhtml" class="images">` +
		`<div class="page"><img src="http://img.example.com/` + title + `.jpg"></img></div>` +
		`<p>about ` + title + `</p>` +
		`</div>` +
		`</content>` +
		`</entry>`
}

func TestToHTMLSortsArticlesByPublishedDescending(t *testing.T) {
	doc := feedXML(
		entryXML("middle", "2010-06-02T00:00:00Z") +
			entryXML("oldest", "2010-06-01T00:00:00Z") +
			entryXML("newest", "2010-06-03T00:00:00Z"))

	page, err := transform.ToHTML(doc, transform.Options{})
	require.NoError(t, err)

	text := string(page)
	newest := strings.Index(text, ">newest<")
	middle := strings.Index(text, ">middle<")
	oldest := strings.Index(text, ">oldest<")
	require.NotEqual(t, -1, newest)
	require.NotEqual(t, -1, middle)
	require.NotEqual(t, -1, oldest)
	assert.Less(t, newest, middle)
	assert.Less(t, middle, oldest)
}

func TestToHTMLKeepsDocumentOrderForEqualTimestamps(t *testing.T) {
	doc := feedXML(
		entryXML("first", "2010-06-01T00:00:00Z") +
			entryXML("second", "2010-06-01T00:00:00Z"))

	page, err := transform.ToHTML(doc, transform.Options{})
	require.NoError(t, err)

	text := string(page)
	assert.Less(t, strings.Index(text, ">first<"), strings.Index(text, ">second<"))
}

func TestToHTMLPageChrome(t *testing.T) {
	page, err := transform.ToHTML(feedXML(entryXML("one", "2010-06-01T12:30:45Z")), transform.Options{})
	require.NoError(t, err)

	text := string(page)
	assert.True(t, strings.HasPrefix(text, "<!DOCTYPE html>\n"))
	assert.Contains(t, text, "<title>Sound of Heart</title>")
	assert.Contains(t, text, `<link rel="stylesheet" href="https://feeds.example.com/static/styles.css">`)
	assert.Contains(t, text, `<h1><a href="http://comic.naver.com/webtoon/22896">Sound of Heart</a></h1>`)
	assert.Contains(t, text, `<p class="subtitle">A daily gag strip.</p>`)
	assert.Contains(t, text, `<p>Generated by <a href="https://feeds.example.com">comicfeed</a></p>`)
}

func TestToHTMLSplitsPublishedIntoDateAndTime(t *testing.T) {
	page, err := transform.ToHTML(feedXML(entryXML("one", "2010-06-01T12:30:45Z")), transform.Options{})
	require.NoError(t, err)

	assert.Contains(t, string(page),
		`<span class="date">2010-06-01</span> <span class="time">12:30:45</span>`)
}

func TestToHTMLPassesContentThroughWithoutNamespace(t *testing.T) {
	page, err := transform.ToHTML(feedXML(entryXML("one", "2010-06-01T00:00:00Z")), transform.Options{})
	require.NoError(t, err)

	text := string(page)
	assert.Contains(t, text,
		`<div class="images"><div class="page"><img src="http://img.example.com/one.jpg"></div><p>about one</p></div>`)
	assert.NotContains(t, text, "xmlns")
	assert.Contains(t, text, `<p class="summary">about one</p>`)
}

func TestToHTMLLegacyGalleryReadsEnclosures(t *testing.T) {
	entry := `<entry>` +
		`<title>one</title>` +
		`<id>http://comic.naver.com/episode/one</id>` +
		`<link rel="alternate" href="http://comic.naver.com/episode/one"></link>` +
		`<link rel="enclosure" href="http://img.example.com/1.jpg"></link>` +
		`<link rel="prefetch" href="http://img.example.com/1.jpg"></link>` +
		`<link rel="enclosure" href="http://img.example.com/2.jpg"></link>` +
		`<link rel="prefetch" href="http://img.example.com/2.jpg"></link>` +
		`<published>2010-06-01T00:00:00Z</published>` +
		`<summary>about one</summary>` +
		`<content type="xhtml"><div xmlns="http://www.w3.org/1999/xhtml" class="images"><p>ignored</p></div></content>` +
		`</entry>`

	page, err := transform.ToHTML(feedXML(entry), transform.Options{Gallery: transform.GalleryEnclosure})
	require.NoError(t, err)

	text := string(page)
	assert.Contains(t, text,
		`<div class="images"><img src="http://img.example.com/1.jpg"><img src="http://img.example.com/2.jpg"></div>`)
	assert.NotContains(t, text, "ignored")
}

func TestToHTMLEscapesTextContent(t *testing.T) {
	doc := feedXML(entryXML("R&amp;D &lt;heart&gt;", "2010-06-01T00:00:00Z"))

	page, err := transform.ToHTML(doc, transform.Options{})
	require.NoError(t, err)

	assert.Contains(t, string(page), "R&amp;D &lt;heart&gt;")
}

func TestToHTMLEmptyFeed(t *testing.T) {
	page, err := transform.ToHTML(feedXML(""), transform.Options{})
	require.NoError(t, err)

	assert.Contains(t, string(page), `<div class="entries"></div>`)
}

func TestToHTMLRejectsMalformedDocuments(t *testing.T) {
	_, err := transform.ToHTML([]byte("<feed><title>broken"), transform.Options{})
	assert.Error(t, err)
}

func TestToHTMLRendersAssembledFeeds(t *testing.T) {
	signer := imgproxy.New("https://proxy.example.com/img", "key", "secret")
	assembler := atom.NewAssembler(signer, "https://feeds.example.com", "1.0.0")

	title := models.Title{
		Kind: models.KindWebtoon,
		ID:   22896,
		Name: "Sound of Heart",
		URL:  "http://comic.naver.com/webtoon/22896",
		Artists: []models.Artist{
			{Name: "Jo Seok"},
		},
		Comics: []models.Comic{
			{
				URL:         "http://comic.naver.com/episode/2",
				No:          2,
				Title:       "Episode 2",
				ImageURLs:   []string{"http://imgcomic.naver.net/2.jpg"},
				Description: "newer",
				PublishedAt: time.Date(2010, 6, 2, 0, 0, 0, 0, time.UTC),
			},
			{
				URL:         "http://comic.naver.com/episode/1",
				No:          1,
				Title:       "Episode 1",
				ImageURLs:   []string{"http://imgcomic.naver.net/1.jpg"},
				Description: "older",
				PublishedAt: time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC),
			},
		},
	}

	feed, err := assembler.Render(title)
	require.NoError(t, err)
	raw, err := assembler.Marshal(feed)
	require.NoError(t, err)

	signed, err := signer.Sign("http://imgcomic.naver.net/2.jpg")
	require.NoError(t, err)

	for _, gallery := range []transform.Gallery{transform.GalleryContent, transform.GalleryEnclosure} {
		page, err := transform.ToHTML(raw, transform.Options{Gallery: gallery})
		require.NoError(t, err)

		text := string(page)
		assert.Contains(t, text, "Episode 2")
		assert.Contains(t, text, strings.ReplaceAll(signed, "&", "&amp;"))
		assert.Less(t, strings.Index(text, "Episode 2"), strings.Index(text, "Episode 1"))
	}
}

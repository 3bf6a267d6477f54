package atom_test

import (
	"strings"
	"testing"
	"time"

	"github.com/comicfeed/comicfeed/atom"
	"github.com/comicfeed/comicfeed/imgproxy"
	"github.com/comicfeed/comicfeed/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthrough() imgproxy.Signer {
	return imgproxy.New("https://proxy.example.com/img", "", "")
}

func fixtureTitle() models.Title {
	return models.Title{
		Kind:        models.KindWebtoon,
		ID:          22896,
		Name:        "Sound of Heart",
		Description: "A daily gag strip.",
		URL:         "http://comic.naver.com/webtoon/list?titleId=22896",
		Artists: []models.Artist{
			{ID: 1, Name: "Jo Seok", URLs: []string{"http://comic.naver.com/artist/1"}},
		},
		Comics: []models.Comic{
			{
				URL:         "http://comic.naver.com/webtoon/detail?titleId=22896&no=102",
				No:          102,
				Title:       "Episode 102",
				ImageURLs:   []string{"http://imgcomic.naver.net/22896/102/1.jpg", "http://imgcomic.naver.net/22896/102/2.jpg"},
				Description: "second day",
				PublishedAt: time.Date(2010, 6, 2, 0, 0, 0, 0, time.UTC),
			},
			{
				URL:         "http://comic.naver.com/webtoon/detail?titleId=22896&no=101",
				No:          101,
				Title:       "Episode 101",
				ImageURLs:   []string{"http://imgcomic.naver.net/22896/101/1.jpg"},
				Description: "first day",
				PublishedAt: time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC),
			},
		},
	}
}

func TestRenderOneEntryPerEpisodeInInputOrder(t *testing.T) {
	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")

	feed, err := assembler.Render(fixtureTitle())
	require.NoError(t, err)

	require.Len(t, feed.Entries, 2)
	assert.Equal(t, "Episode 102", feed.Entries[0].Title)
	assert.Equal(t, "Episode 101", feed.Entries[1].Title)
}

func TestFeedHeaderFields(t *testing.T) {
	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")
	title := fixtureTitle()

	feed, err := assembler.Render(title)
	require.NoError(t, err)

	assert.Equal(t, atom.AtomNS, feed.Xmlns)
	assert.Equal(t, title.Name, feed.Title)
	assert.Equal(t, title.Description, feed.Subtitle)
	assert.Equal(t, title.URL, feed.ID)
	assert.Equal(t, "https://feeds.example.com", feed.Generator.URI)
	assert.Equal(t, "comicfeed", feed.Generator.Value)

	require.Len(t, feed.Links, 2)
	assert.Equal(t, "self", feed.Links[0].Rel)
	assert.Equal(t, "https://feeds.example.com/webtoon/22896.xml", feed.Links[0].Href)
	assert.Equal(t, "alternate", feed.Links[1].Rel)
	assert.Equal(t, title.URL, feed.Links[1].Href)
}

func TestFeedUpdatedFollowsFirstEpisodeNotLatest(t *testing.T) {
	// The first stored episode is older than the second. The feed still
	// reports the first one's timestamp.
	title := fixtureTitle()
	title.Comics[0], title.Comics[1] = title.Comics[1], title.Comics[0]

	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")
	feed, err := assembler.Render(title)
	require.NoError(t, err)

	require.NotNil(t, feed.Updated)
	assert.Equal(t, time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC), *feed.Updated)
	require.NotNil(t, feed.Author)
	assert.Equal(t, "Jo Seok", feed.Author.Name)
	assert.Equal(t, "http://comic.naver.com/artist/1", feed.Author.URI)
}

func TestFeedWithoutEpisodesOmitsAuthorAndUpdated(t *testing.T) {
	title := fixtureTitle()
	title.Comics = nil

	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")
	feed, err := assembler.Render(title)
	require.NoError(t, err)

	assert.Nil(t, feed.Updated)
	assert.Nil(t, feed.Author)
	assert.Empty(t, feed.Entries)

	raw, err := assembler.Marshal(feed)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "<updated>")
	assert.NotContains(t, string(raw), "<author>")
}

func TestEntryFields(t *testing.T) {
	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")

	feed, err := assembler.Render(fixtureTitle())
	require.NoError(t, err)

	entry := feed.Entries[0]
	assert.Equal(t, "http://comic.naver.com/webtoon/detail?titleId=22896&no=102", entry.ID)
	assert.Equal(t, entry.Published, entry.Updated)
	assert.Equal(t, "second day", entry.Summary.Value)
	assert.Equal(t, "xhtml", entry.Content.Type)
	assert.Equal(t, atom.XHTMLNS, entry.Content.Div.Xmlns)
	assert.Equal(t, "images", entry.Content.Div.Class)
	assert.Equal(t, "second day", entry.Content.Div.Note.Value)

	require.Equal(t, "alternate", entry.Links[0].Rel)
	assert.Equal(t, entry.ID, entry.Links[0].Href)
}

func TestEntryImageLinksComeInSignedPairs(t *testing.T) {
	signer := imgproxy.New("https://proxy.example.com/img", "key", "secret")
	assembler := atom.NewAssembler(signer, "https://feeds.example.com", "1.0.0")

	feed, err := assembler.Render(fixtureTitle())
	require.NoError(t, err)

	entry := feed.Entries[0]
	// alternate + (enclosure, prefetch) per image
	require.Len(t, entry.Links, 5)

	signedFirst, err := signer.Sign("http://imgcomic.naver.net/22896/102/1.jpg")
	require.NoError(t, err)

	assert.Equal(t, "enclosure", entry.Links[1].Rel)
	assert.Equal(t, signedFirst, entry.Links[1].Href)
	assert.Equal(t, "prefetch", entry.Links[2].Rel)
	assert.Equal(t, signedFirst, entry.Links[2].Href)

	require.Len(t, entry.Content.Div.Pages, 2)
	assert.Equal(t, signedFirst, entry.Content.Div.Pages[0].Images[0].Src)
}

func TestBookEpisodePairsImagesPerPage(t *testing.T) {
	title := fixtureTitle()
	title.Comics = title.Comics[:1]
	title.Comics[0].Book = true
	title.Comics[0].ImageURLs = []string{
		"http://imgcomic.naver.net/a.jpg",
		"http://imgcomic.naver.net/b.jpg",
		"http://imgcomic.naver.net/c.jpg",
	}

	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")
	feed, err := assembler.Render(title)
	require.NoError(t, err)

	pages := feed.Entries[0].Content.Div.Pages
	require.Len(t, pages, 2)
	assert.Len(t, pages[0].Images, 2)
	assert.Len(t, pages[1].Images, 1)
	assert.Equal(t, "page", pages[0].Class)
}

func TestEpisodeWithoutImagesRendersEmptyDiv(t *testing.T) {
	title := fixtureTitle()
	title.Comics = title.Comics[:1]
	title.Comics[0].ImageURLs = nil

	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")
	feed, err := assembler.Render(title)
	require.NoError(t, err)

	entry := feed.Entries[0]
	assert.Empty(t, entry.Content.Div.Pages)
	assert.Len(t, entry.Links, 1)

	_, err = assembler.Marshal(feed)
	assert.NoError(t, err)
}

func TestRenderRejectsBadTitleURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "missing", url: ""},
		{name: "relative", url: "/webtoon/list?titleId=22896"},
		{name: "no host", url: "http://"},
	}

	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title := fixtureTitle()
			title.URL = tt.url
			_, err := assembler.Render(title)
			assert.ErrorIs(t, err, atom.ErrInvalidTitle)
		})
	}
}

func TestRenderPropagatesSignerErrors(t *testing.T) {
	title := fixtureTitle()
	title.Comics[0].ImageURLs = []string{"not-a-url"}

	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")
	_, err := assembler.Render(title)
	assert.ErrorIs(t, err, imgproxy.ErrInvalidImageURL)
}

func TestMarshalIsByteDeterministic(t *testing.T) {
	assembler := atom.NewAssembler(
		imgproxy.New("https://proxy.example.com/img", "key", "secret"),
		"https://feeds.example.com", "1.0.0")

	render := func() []byte {
		feed, err := assembler.Render(fixtureTitle())
		require.NoError(t, err)
		raw, err := assembler.Marshal(feed)
		require.NoError(t, err)
		return raw
	}

	assert.Equal(t, render(), render())
}

func TestMarshalEmitsDeclarationAndStylesheet(t *testing.T) {
	assembler := atom.NewAssembler(passthrough(), "https://feeds.example.com", "1.0.0")

	feed, err := assembler.Render(fixtureTitle())
	require.NoError(t, err)
	raw, err := assembler.Marshal(feed)
	require.NoError(t, err)

	text := string(raw)
	assert.True(t, strings.HasPrefix(text, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>"))
	assert.Contains(t, text, `<?xml-stylesheet type="text/xsl" href="https://feeds.example.com/static/atom2html.xsl"?>`)
	assert.Contains(t, text, `<feed xmlns="http://www.w3.org/2005/Atom">`)
}

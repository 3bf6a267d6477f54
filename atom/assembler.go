package atom

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/comicfeed/comicfeed/imgproxy"
	"github.com/comicfeed/comicfeed/models"
	"github.com/samber/lo"
)

// ErrInvalidTitle flags titles that cannot be rendered into a valid feed.
var ErrInvalidTitle = errors.New("atom: title has no canonical URL")

// Assembler renders stored titles into Atom documents. Rendering is
// deterministic for a fixed title value and signer configuration.
type Assembler struct {
	signer     imgproxy.Signer
	serviceURL string
	version    string
}

// NewAssembler builds an assembler publishing under serviceURL. Image URLs
// are rewritten through signer.
func NewAssembler(signer imgproxy.Signer, serviceURL, version string) *Assembler {
	return &Assembler{
		signer:     signer,
		serviceURL: strings.TrimRight(serviceURL, "/"),
		version:    version,
	}
}

// FeedURL is the public retrieval URL for a title's feed.
func (a *Assembler) FeedURL(key models.TitleKey) string {
	return fmt.Sprintf("%s/%s/%d.xml", a.serviceURL, key.Kind, key.ID)
}

// StylesheetURL locates the served browser-side transform.
func (a *Assembler) StylesheetURL() string {
	return a.serviceURL + "/static/atom2html.xsl"
}

// Render builds the feed document for a title. Entries keep the order of
// title.Comics; sorting for display is the transform's job.
func (a *Assembler) Render(title models.Title) (*Feed, error) {
	if err := checkTitleURL(title.URL); err != nil {
		return nil, err
	}

	feed := &Feed{
		Xmlns:    AtomNS,
		Title:    title.Name,
		Subtitle: title.Description,
		ID:       title.URL,
		Links: []Link{
			{Rel: "self", Href: a.FeedURL(title.Key()), Type: "application/atom+xml"},
			{Rel: "alternate", Href: title.URL, Type: "text/html"},
		},
		Generator: Generator{URI: a.serviceURL, Version: a.version, Value: "comicfeed"},
	}

	for i, comic := range title.Comics {
		entry, err := a.entry(comic)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", comic.No, err)
		}
		feed.Entries = append(feed.Entries, entry)

		// Feed author and updated follow the first stored episode, not
		// the chronologically latest one.
		if i == 0 {
			updated := comic.PublishedAt
			feed.Updated = &updated
			feed.Author = feedAuthor(title.Artists)
		}
	}

	return feed, nil
}

func (a *Assembler) entry(comic models.Comic) (Entry, error) {
	entry := Entry{
		Title:     comic.Title,
		ID:        comic.URL,
		Links:     []Link{{Rel: "alternate", Href: comic.URL, Type: "text/html"}},
		Published: comic.PublishedAt,
		Updated:   comic.PublishedAt,
		Summary:   Text{Type: "text", Value: comic.Description},
		Content: Content{
			Type: "xhtml",
			Div: ImagesDiv{
				Xmlns: XHTMLNS,
				Class: "images",
				Note:  Para{Value: comic.Description},
			},
		},
	}

	for _, line := range comic.ImageLines() {
		page := PageDiv{Class: "page"}
		for _, imageURL := range line {
			signed, err := a.signer.Sign(imageURL)
			if err != nil {
				return Entry{}, err
			}
			entry.Links = append(entry.Links,
				Link{Rel: "enclosure", Href: signed},
				Link{Rel: "prefetch", Href: signed},
			)
			page.Images = append(page.Images, ImageRef{Src: signed})
		}
		entry.Content.Div.Pages = append(entry.Content.Div.Pages, page)
	}

	return entry, nil
}

// Marshal serializes the feed with the XML declaration and the stylesheet
// instruction browsers use to run the feed-to-page transform.
func (a *Assembler) Marshal(feed *Feed) ([]byte, error) {
	body, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, "<?xml-stylesheet type=\"text/xsl\" href=%q?>\n", a.StylesheetURL())
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func feedAuthor(artists []models.Artist) *Author {
	author := &Author{
		Name: strings.Join(lo.Map(artists, func(a models.Artist, _ int) string { return a.Name }), ", "),
	}
	for _, artist := range artists {
		if len(artist.URLs) > 0 {
			author.URI = artist.URLs[0]
			break
		}
	}
	return author
}

func checkTitleURL(titleURL string) error {
	u, err := url.Parse(titleURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTitle, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTitle, titleURL)
	}
	return nil
}

package transform

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// Gallery selects where an article's images come from.
type Gallery int

const (
	// GalleryContent lifts the embedded content markup into the page.
	GalleryContent Gallery = iota
	// GalleryEnclosure rebuilds the gallery from enclosure links, for
	// feeds fetched through readers that strip rich content.
	GalleryEnclosure
)

type Options struct {
	Gallery Gallery
}

// The slice of an Atom document the transform reads.
type feedDoc struct {
	XMLName   xml.Name   `xml:"feed"`
	Title     string     `xml:"title"`
	Subtitle  string     `xml:"subtitle"`
	Links     []feedLink `xml:"link"`
	Generator feedGen    `xml:"generator"`
	Entries   []feedItem `xml:"entry"`
}

type feedLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type feedGen struct {
	URI   string `xml:"uri,attr"`
	Value string `xml:",chardata"`
}

type feedItem struct {
	Title     string      `xml:"title"`
	Links     []feedLink  `xml:"link"`
	Published string      `xml:"published"`
	Summary   string      `xml:"summary"`
	Content   feedContent `xml:"content"`
}

type feedContent struct {
	Type string `xml:"type,attr"`
	Div  *Node  `xml:"div"`
}

// ToHTML renders an Atom document as the HTML page the served stylesheet
// produces in a browser. Articles are ordered by published timestamp,
// newest first, with ties kept in document order.
func ToHTML(atomDoc []byte, opts Options) ([]byte, error) {
	var doc feedDoc
	if err := xml.Unmarshal(atomDoc, &doc); err != nil {
		return nil, fmt.Errorf("transform: parse feed: %w", err)
	}
	return RenderDocument(page(&doc, opts)), nil
}

func page(doc *feedDoc, opts Options) *Node {
	entries := make([]feedItem, len(doc.Entries))
	copy(entries, doc.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Published > entries[j].Published
	})

	body := Element("body").Append(header(doc))

	list := Element("div", Attr{Name: "class", Value: "entries"})
	for i := range entries {
		list.Append(article(&entries[i], opts))
	}
	body.Append(list, footer(doc))

	return Element("html").Append(
		Element("head").Append(
			Element("meta", Attr{Name: "charset", Value: "utf-8"}),
			Element("title").Append(Text(doc.Title)),
			Element("link",
				Attr{Name: "rel", Value: "stylesheet"},
				Attr{Name: "href", Value: strings.TrimRight(doc.Generator.URI, "/") + "/static/styles.css"},
			),
		),
		body,
	)
}

func header(doc *feedDoc) *Node {
	title := Element("h1")
	if href := alternate(doc.Links); href != "" {
		title.Append(Element("a", Attr{Name: "href", Value: href}).Append(Text(doc.Title)))
	} else {
		title.Append(Text(doc.Title))
	}
	return Element("header").Append(
		title,
		Element("p", Attr{Name: "class", Value: "subtitle"}).Append(Text(doc.Subtitle)),
	)
}

func article(item *feedItem, opts Options) *Node {
	date, clock := splitPublished(item.Published)

	node := Element("article", Attr{Name: "class", Value: "entry"}).Append(
		Element("h2").Append(
			Element("a", Attr{Name: "href", Value: alternate(item.Links)}).Append(Text(item.Title)),
		),
		Element("p", Attr{Name: "class", Value: "published"}).Append(
			Element("span", Attr{Name: "class", Value: "date"}).Append(Text(date)),
			Text(" "),
			Element("span", Attr{Name: "class", Value: "time"}).Append(Text(clock)),
		),
	)

	switch opts.Gallery {
	case GalleryEnclosure:
		gallery := Element("div", Attr{Name: "class", Value: "images"})
		for _, link := range item.Links {
			if link.Rel == "enclosure" {
				gallery.Append(Element("img", Attr{Name: "src", Value: link.Href}))
			}
		}
		node.Append(gallery)
	default:
		if item.Content.Div != nil {
			node.Append(item.Content.Div)
		}
	}

	return node.Append(
		Element("p", Attr{Name: "class", Value: "summary"}).Append(Text(item.Summary)),
	)
}

func footer(doc *feedDoc) *Node {
	name := doc.Generator.Value
	if name == "" {
		name = doc.Generator.URI
	}
	return Element("footer").Append(
		Element("p").Append(
			Text("Generated by "),
			Element("a", Attr{Name: "href", Value: doc.Generator.URI}).Append(Text(name)),
		),
	)
}

// alternate picks the link readers treat as the human-facing one. A link
// without a rel counts, per the Atom default.
func alternate(links []feedLink) string {
	for _, link := range links {
		if link.Rel == "alternate" || link.Rel == "" {
			return link.Href
		}
	}
	return ""
}

// splitPublished cuts an RFC 3339 timestamp into its date and clock
// parts without interpreting it, the same way the stylesheet does.
func splitPublished(published string) (string, string) {
	date, rest, found := strings.Cut(published, "T")
	if !found {
		return published, ""
	}
	if len(rest) > 8 {
		rest = rest[:8]
	}
	return date, rest
}

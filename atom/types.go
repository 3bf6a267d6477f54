package atom

import (
	"encoding/xml"
	"time"
)

const (
	// AtomNS is the Atom 1.0 namespace.
	AtomNS = "http://www.w3.org/2005/Atom"
	// XHTMLNS is the namespace of the inline content div.
	XHTMLNS = "http://www.w3.org/1999/xhtml"

	// FeedContentType is the media type feeds are served with.
	FeedContentType = "application/atom+xml; charset=utf-8"
)

// Feed is an Atom feed document for one title.
type Feed struct {
	XMLName   xml.Name   `xml:"feed"`
	Xmlns     string     `xml:"xmlns,attr"`
	Title     string     `xml:"title"`
	Subtitle  string     `xml:"subtitle"`
	ID        string     `xml:"id"`
	Links     []Link     `xml:"link"`
	Generator Generator  `xml:"generator"`
	Author    *Author    `xml:"author,omitempty"`
	Updated   *time.Time `xml:"updated,omitempty"`
	Entries   []Entry    `xml:"entry"`
}

// Entry is a single episode.
type Entry struct {
	Title     string    `xml:"title"`
	ID        string    `xml:"id"`
	Links     []Link    `xml:"link"`
	Published time.Time `xml:"published"`
	Updated   time.Time `xml:"updated"`
	Summary   Text      `xml:"summary"`
	Content   Content   `xml:"content"`
}

// Author is an Atom author element
type Author struct {
	Name string `xml:"name"`
	URI  string `xml:"uri,omitempty"`
}

// Link is an Atom link element
type Link struct {
	Rel  string `xml:"rel,attr,omitempty"`
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr,omitempty"`
}

// Generator names the producing service. The transform builds its footer
// and resolves the stylesheet from the uri attribute.
type Generator struct {
	URI     string `xml:"uri,attr"`
	Version string `xml:"version,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// Text is a typed text construct (summary, titles with markup).
type Text struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Content holds the inline XHTML rendering of an episode: one div per
// page line, one img per image, then the description paragraph.
type Content struct {
	Type string    `xml:"type,attr"`
	Div  ImagesDiv `xml:"div"`
}

type ImagesDiv struct {
	Xmlns string    `xml:"xmlns,attr"`
	Class string    `xml:"class,attr"`
	Pages []PageDiv `xml:"div"`
	Note  Para      `xml:"p"`
}

type PageDiv struct {
	Class  string     `xml:"class,attr"`
	Images []ImageRef `xml:"img"`
}

type ImageRef struct {
	Src string `xml:"src,attr"`
}

type Para struct {
	Value string `xml:",chardata"`
}

package transform

import (
	"encoding/xml"
	"fmt"
	"html"
	"strings"
)

type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
)

// Node is one element or text run of a parsed markup fragment. Element
// and attribute names carry local names only; namespace declarations are
// dropped at parse time.
type Node struct {
	Type     NodeType
	Name     string
	Attr     []Attr
	Children []*Node
	Text     string
}

type Attr struct {
	Name  string
	Value string
}

// Element builds an element node.
func Element(name string, attrs ...Attr) *Node {
	return &Node{Type: ElementNode, Name: name, Attr: attrs}
}

// Text builds a text node.
func Text(text string) *Node {
	return &Node{Type: TextNode, Text: text}
}

// Append adds children and returns the node for chaining.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// UnmarshalXML reads the element start belongs to, including its subtree.
// Attributes keep their values verbatim under their local names; xmlns
// declarations are not carried over. Text runs, whitespace included, become
// text nodes.
func (n *Node) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	n.Type = ElementNode
	n.Name = start.Name.Local
	n.Attr = nil
	n.Children = nil
	for _, attr := range start.Attr {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		n.Attr = append(n.Attr, Attr{Name: attr.Name.Local, Value: attr.Value})
	}

	for {
		token, err := d.Token()
		if err != nil {
			return err
		}
		switch token := token.(type) {
		case xml.StartElement:
			child := &Node{}
			if err := child.UnmarshalXML(d, token); err != nil {
				return err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			n.Children = append(n.Children, Text(string(token)))
		case xml.EndElement:
			return nil
		}
	}
}

// Elements of HTML that close themselves.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// RenderHTML serializes a node tree as an HTML fragment.
func RenderHTML(node *Node) string {
	var b strings.Builder
	writeNode(&b, node)
	return b.String()
}

// RenderDocument serializes a node tree as a full HTML document.
func RenderDocument(root *Node) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n")
	writeNode(&b, root)
	b.WriteByte('\n')
	return []byte(b.String())
}

func writeNode(b *strings.Builder, node *Node) {
	if node.Type == TextNode {
		b.WriteString(html.EscapeString(node.Text))
		return
	}

	b.WriteByte('<')
	b.WriteString(node.Name)
	for _, attr := range node.Attr {
		fmt.Fprintf(b, ` %s="%s"`, attr.Name, html.EscapeString(attr.Value))
	}
	b.WriteByte('>')
	if voidElements[node.Name] {
		return
	}
	for _, child := range node.Children {
		writeNode(b, child)
	}
	fmt.Fprintf(b, "</%s>", node.Name)
}

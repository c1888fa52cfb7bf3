package billing

import (
	"io"
	"strings"

	"mediapart-bills/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Node is the part of a parsed html tree the extractors depend on.
type Node interface {
	// Find returns every descendant matching a css selector, in document order.
	Find(selector string) []Node
	// Text returns the trimmed text content of the node.
	Text() string
	Attr(name string) (string, bool)
}

type goqueryNode struct {
	sel *goquery.Selection
}

// FromGoquery wraps a goquery selection, only its first element is considered.
func FromGoquery(sel *goquery.Selection) Node {
	return goqueryNode{sel: sel.First()}
}

// ParseHTML parses an html document into a Node.
func ParseHTML(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return goqueryNode{sel: doc.Selection}, nil
}

func (n goqueryNode) Find(selector string) []Node {
	found := n.sel.Find(selector)
	nodes := make([]Node, found.Length())
	found.Each(func(i int, s *goquery.Selection) {
		nodes[i] = goqueryNode{sel: s}
	})
	return nodes
}

func (n goqueryNode) Text() string {
	var text strings.Builder
	for _, node := range n.sel.Nodes {
		text.WriteString(htmlutil.GetText(node))
	}
	return strings.TrimSpace(text.String())
}

func (n goqueryNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

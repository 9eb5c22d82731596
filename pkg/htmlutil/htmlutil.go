package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var whitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText returns the printable text content of a node with every
// whitespace run collapsed into a single space.
func CleanText(node *html.Node) string {
	text := whitespace.ReplaceAllString(GetText(node), " ")
	text = removeNonPrintable(text)
	return strings.TrimSpace(text)
}

// Parse parses an html body, an empty body yields an empty document.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// AttrValues returns the non-empty values of the `attr` attribute of every
// node matched by the selection, in document order.
func AttrValues(sel *goquery.Selection, attr string) []string {
	var values []string
	sel.Each(func(_ int, s *goquery.Selection) {
		value := strings.TrimSpace(s.AttrOr(attr, ""))
		if value == "" {
			return
		}
		values = append(values, value)
	})
	return values
}

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
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.ElementNode:
		// emoji and inline icons carry their text in alt.
		if node.Data == "img" {
			buffer.WriteString(Attr(node, "alt"))
			return
		}
		if node.Data == "br" {
			buffer.WriteByte('\n')
			return
		}
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`[ \t]*\n[ \t\n]*|[ \t][ \t]+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if c == '\n' || unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText returns the visible text of the selection with non printable
// characters dropped and runs of whitespace collapsed.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	text := removeNonPrintable(buffer.String())
	text = innerWhitespace.ReplaceAllStringFunc(text, func(s string) string {
		if strings.Contains(s, "\n") {
			return "\n"
		}
		return " "
	})
	return strings.Trim(text, " \t\n")
}

// Attr returns the value of the attribute key or "" when it is missing.
func Attr(node *html.Node, key string) string {
	if node == nil {
		return ""
	}
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

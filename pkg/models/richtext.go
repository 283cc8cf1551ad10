package models

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// EmptyParagraph is what the rich-text editor submits when the user cleared
// everything.
const EmptyParagraph = "<p><br></p>"

var richTextPolicy = bluemonday.UGCPolicy()

// SanitizeRichText strips anything from editor output that must never reach
// the server or a page: scripts, event handlers, unsafe URLs.
func SanitizeRichText(s string) string {
	return strings.TrimSpace(richTextPolicy.Sanitize(s))
}

func IsEmptyRichText(s string) bool {
	clean := SanitizeRichText(s)
	switch clean {
	case "", EmptyParagraph, "<p><br/></p>", "<p></p>":
		return true
	}
	return false
}

// PlainText returns the text content of a rich-text fragment with tags
// dropped and blocks separated by spaces.
func PlainText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var parts []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is all we get
			return strings.Join(parts, " ")
		case html.TextToken:
			if t := strings.TrimSpace(string(z.Text())); t != "" {
				parts = append(parts, t)
			}
		}
	}
}

func WordCount(s string) int {
	return len(strings.Fields(PlainText(s)))
}

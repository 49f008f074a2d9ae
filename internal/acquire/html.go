package acquire

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// noise elements carry no readable page content
var noise = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Form:     true,
}

// CleanHTML extracts readable text from an HTML document, one trimmed
// line per text run. Unparseable input yields "".
func CleanHTML(doc string) string {
	text, _ := parseHTML(doc)
	return text
}

// ExtractTitle returns the trimmed <title> of an HTML document
func ExtractTitle(doc string) string {
	_, title := parseHTML(doc)
	return title
}

func parseHTML(doc string) (string, string) {
	if strings.TrimSpace(doc) == "" {
		return "", ""
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", ""
	}

	var lines []string
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if noise[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
		}
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					lines = append(lines, line)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(lines, "\n"), title
}

// looksLikeHTML reports whether content is markup rather than extracted text
func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body")
}

// clip cuts s to at most n bytes on a rune boundary
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

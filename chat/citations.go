package chat

import (
	"fmt"
	"strings"
)

var (
	slackEscaper    = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	markdownEscaper = strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`)
)

// CitationStyle selects the link syntax of the sources list.
type CitationStyle int

const (
	// CitationSlack renders links as Slack mrkdwn, <url|title>.
	CitationSlack CitationStyle = iota
	// CitationMarkdown renders links as CommonMark, [title](url).
	CitationMarkdown
)

// FormatCitations renders the sources cited in resp as a Slack mrkdwn suffix
// for the reply text. It returns "" when nothing is cited.
func FormatCitations(resp *Response) string {
	return FormatCitationsAs(resp, CitationSlack)
}

// FormatCitationsAs is FormatCitations with the given link syntax.
//
// Sources are numbered in the order they are first cited. Documents that
// render to the same line (several excerpts of one report) are listed once.
func FormatCitationsAs(resp *Response, style CitationStyle) string {
	if resp == nil || len(resp.Citations) == 0 {
		return ""
	}

	docs := make(map[string]Document, len(resp.Documents))
	for _, d := range resp.Documents {
		docs[d.ID] = d
	}

	var (
		lines     []string
		seenIDs   = make(map[string]bool)
		seenLines = make(map[string]bool)
	)
	for _, c := range resp.Citations {
		for _, id := range c.DocumentIDs {
			if seenIDs[id] {
				continue
			}
			seenIDs[id] = true

			doc, ok := docs[id]
			if !ok {
				continue
			}
			line := sourceLine(doc, style)
			if seenLines[line] {
				continue
			}
			seenLines[line] = true
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nSources:\n")
	for i, line := range lines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}
	return b.String()
}

func sourceLine(doc Document, style CitationStyle) string {
	title, url := doc.Title, doc.URL
	if title == "" || url == "" {
		p := ParseProject2025Fields(doc)
		if title == "" {
			title = p.ExcerptHeadline
		}
		if url == "" {
			url = p.PDFURL
		}
	}
	if title == "" {
		title = doc.ID
	}

	title = strings.Join(strings.Fields(title), " ")
	if style == CitationMarkdown {
		title = markdownEscaper.Replace(title)
		if url == "" {
			return title
		}
		return "[" + title + "](" + strings.NewReplacer("(", "%28", ")", "%29", " ", "%20").Replace(url) + ")"
	}

	title = slackEscaper.Replace(title)
	if url == "" {
		return title
	}
	return "<" + url + "|" + strings.ReplaceAll(title, "|", "-") + ">"
}

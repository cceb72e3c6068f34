package storage

import (
	"fmt"
	"html"
	"strings"
)

type listKind int

const (
	listNone listKind = iota
	listUnordered
	listOrdered
)

// converter turns markdown into Confluence storage markup one line at a time.
type converter struct {
	out       []string
	list      listKind
	inCode    bool
	codeLang  string
	codeLines []string
}

// FromMarkdown converts the subset of markdown LLMs typically emit (headings,
// lists, fenced code, bold/italic/inline code) into storage-format markup.
func FromMarkdown(markdown string) string {
	c := &converter{}
	for _, line := range strings.Split(markdown, "\n") {
		c.line(line)
	}
	if c.inCode {
		c.flushCode()
	}
	c.closeList()
	return strings.Join(c.out, "\n")
}

func (c *converter) line(line string) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "```") {
		if c.inCode {
			c.flushCode()
			return
		}
		c.closeList()
		c.inCode = true
		c.codeLang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
		c.codeLines = nil
		return
	}
	if c.inCode {
		c.codeLines = append(c.codeLines, line)
		return
	}

	if level, text, ok := heading(line); ok {
		c.closeList()
		c.out = append(c.out, fmt.Sprintf("<h%d>%s</h%d>", level, html.EscapeString(text), level))
		return
	}

	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		c.openList(listUnordered)
		c.out = append(c.out, "<li>"+inline(trimmed[2:])+"</li>")
		return
	}

	if text, ok := orderedItem(trimmed); ok {
		c.openList(listOrdered)
		c.out = append(c.out, "<li>"+inline(text)+"</li>")
		return
	}

	c.closeList()
	if trimmed == "" {
		c.out = append(c.out, "<p/>")
		return
	}
	c.out = append(c.out, "<p>"+inline(line)+"</p>")
}

func (c *converter) flushCode() {
	if c.codeLang != "" {
		c.out = append(c.out, fmt.Sprintf(`<ac:structured-macro ac:name="code" ac:schema-version="1"><ac:parameter ac:name="language">%s</ac:parameter><ac:plain-text-body><![CDATA[`, html.EscapeString(c.codeLang)))
	} else {
		c.out = append(c.out, `<ac:structured-macro ac:name="code" ac:schema-version="1"><ac:plain-text-body><![CDATA[`)
	}
	body := strings.Join(c.codeLines, "\n")
	// "]]>" cannot appear inside CDATA; split it across two sections.
	body = strings.ReplaceAll(body, "]]>", "]]]]><![CDATA[>")
	c.out = append(c.out, body, `]]></ac:plain-text-body></ac:structured-macro>`)
	c.inCode = false
	c.codeLang = ""
	c.codeLines = nil
}

func (c *converter) openList(kind listKind) {
	if c.list == kind {
		return
	}
	c.closeList()
	if kind == listUnordered {
		c.out = append(c.out, "<ul>")
	} else {
		c.out = append(c.out, "<ol>")
	}
	c.list = kind
}

func (c *converter) closeList() {
	switch c.list {
	case listUnordered:
		c.out = append(c.out, "</ul>")
	case listOrdered:
		c.out = append(c.out, "</ol>")
	}
	c.list = listNone
}

func heading(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level+1:]), true
}

// orderedItem matches "1. text" through "999. text".
func orderedItem(trimmed string) (string, bool) {
	i := 0
	for i < len(trimmed) && i < 3 && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(trimmed) || trimmed[i] != '.' || trimmed[i+1] != ' ' {
		return "", false
	}
	return strings.TrimSpace(trimmed[i+2:]), true
}

// inline escapes text and applies **bold**, *italic* and `code` spans.
func inline(text string) string {
	text = wrapPairs(text, "`", "code")
	text = wrapPairs(text, "**", "strong")
	text = wrapPairs(text, "*", "em")
	return text
}

// wrapPairs replaces delimiter pairs with the given tag. Text outside and
// inside pairs is escaped exactly once; already-produced tags are kept.
func wrapPairs(text, delim, tag string) string {
	var b strings.Builder
	for {
		start := indexDelim(text, delim)
		if start < 0 {
			break
		}
		end := indexDelim(text[start+len(delim):], delim)
		if end < 0 {
			break
		}
		end += start + len(delim)
		b.WriteString(escapeOutsideTags(text[:start]))
		b.WriteString("<" + tag + ">")
		b.WriteString(escapeOutsideTags(text[start+len(delim) : end]))
		b.WriteString("</" + tag + ">")
		text = text[end+len(delim):]
	}
	b.WriteString(escapeOutsideTags(text))
	return b.String()
}

// indexDelim finds delim, treating a single "*" as distinct from "**".
func indexDelim(s, delim string) int {
	if delim != "*" {
		return strings.Index(s, delim)
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '*' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '*' {
			i++
			continue
		}
		return i
	}
	return -1
}

var knownTags = []string{"<code>", "</code>", "<strong>", "</strong>", "<em>", "</em>"}

// escapeOutsideTags escapes HTML special characters but leaves the inline
// tags emitted by earlier passes intact. Escaping is idempotent for text
// that was already escaped by a previous pass.
func escapeOutsideTags(s string) string {
	var b strings.Builder
	for len(s) > 0 {
		next, tag := -1, ""
		for _, t := range knownTags {
			if i := strings.Index(s, t); i >= 0 && (next < 0 || i < next) {
				next, tag = i, t
			}
		}
		if next < 0 {
			b.WriteString(escapeOnce(s))
			break
		}
		b.WriteString(escapeOnce(s[:next]))
		b.WriteString(tag)
		s = s[next+len(tag):]
	}
	return b.String()
}

func escapeOnce(s string) string {
	return html.EscapeString(html.UnescapeString(s))
}

// Package storage builds and inspects Confluence storage-format markup.
package storage

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// ImageMacro returns the inline image macro referencing an attachment on the
// same page.
func ImageMacro(filename string) string {
	return fmt.Sprintf(`<ac:image><ri:attachment ri:filename="%s"/></ac:image>`, html.EscapeString(filename))
}

// ContainsImageMacro reports whether body already embeds an image macro for
// filename. Attribute quoting and whitespace variations are tolerated.
func ContainsImageMacro(body, filename string) bool {
	escaped := regexp.QuoteMeta(html.EscapeString(filename))
	raw := regexp.QuoteMeta(filename)
	pattern := `(?s)<ac:image[^>]*>\s*<ri:attachment\s+ri:filename\s*=\s*["'](?:` + escaped + `|` + raw + `)["']`
	return regexp.MustCompile(pattern).MatchString(body)
}

// AppendImageMacro joins body and the image macro for filename.
func AppendImageMacro(body, filename string) string {
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return ImageMacro(filename)
	}
	return body + "\n" + ImageMacro(filename)
}

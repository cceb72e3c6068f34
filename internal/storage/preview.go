package storage

import (
	"regexp"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var imageMacroPattern = regexp.MustCompile(`(?s)<ac:image[^>]*>\s*<ri:attachment\s+ri:filename\s*=\s*["']([^"']+)["']\s*/>\s*</ac:image>`)

// ToMarkdown renders storage markup as markdown for terminal previews.
// Image macros become markdown image links so attachments stay visible.
// On conversion failure the raw markup is returned.
func ToMarkdown(body string) string {
	html := imageMacroPattern.ReplaceAllString(body, `<img src="$1" alt="$1"/>`)
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return body
	}
	return md
}

package email

import (
	"fmt"
	"net/url"
	"postpilot/pkg/postpilot"
	"strings"
	"unicode/utf8"
)

func (s *Sender) reviewURL(p postpilot.Post) string {
	return fmt.Sprintf("%s/posts/%s", s.baseURL, url.PathEscape(p.ID))
}

func (s *Sender) formatPendingBody(p postpilot.Post) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".header { border-bottom: 2px solid #1d9bf0; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".topic { color: #1d9bf0; font-weight: 600; }\n")
	b.WriteString(".content { background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 15px 0; white-space: pre-wrap; font-size: 1.1em; }\n")
	b.WriteString(".meta { color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString(".footer { margin-top: 20px; padding-top: 10px; border-top: 1px solid #ddd; color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("a { color: #1d9bf0; text-decoration: none; }\n")
	b.WriteString("a:hover { text-decoration: underline; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".content { background: #262626; }\n")
	b.WriteString(".meta, .footer { color: #a0a0a0; }\n")
	b.WriteString(".footer { border-top-color: #444; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n<h2>New post awaiting approval</h2>\n</div>\n")

	if p.Topic != "" {
		b.WriteString(fmt.Sprintf("<p>Topic: <span class=\"topic\">%s</span></p>\n", escapeHTML(p.Topic)))
	}

	// Generated text is untrusted; never render it as markup.
	b.WriteString("<div class=\"content\">")
	b.WriteString(escapeHTML(p.Content))
	b.WriteString("</div>\n")

	b.WriteString(fmt.Sprintf("<p class=\"meta\">%d / %d characters", utf8.RuneCountInString(p.Content), postpilot.MaxPostLength))
	if !p.Timestamp.IsZero() {
		b.WriteString(fmt.Sprintf(" &bull; generated %s UTC", p.Timestamp.UTC().Format("Jan 2, 2006 at 3:04 PM")))
	}
	b.WriteString("</p>\n")

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString(fmt.Sprintf("<a href=\"%s\">Review post</a>\n", escapeHTML(s.reviewURL(p))))
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}

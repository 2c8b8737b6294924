// Package markup renders user-supplied markdown into sanitized HTML.
package markup

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.Linkify),
		// raw HTML is passed through here and stripped by the policies below
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	postPolicy    = newPolicy("a", "abbr", "acronym", "b", "blockquote", "code", "em", "i", "li", "ol", "pre", "strong", "ul", "h1", "h2", "h3", "p")
	commentPolicy = newPolicy("a", "abbr", "acronym", "b", "code", "em", "i", "strong")
)

func newPolicy(elements ...string) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(elements...)
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("title").OnElements("abbr", "acronym")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	return p
}

// Post renders a post body with the article allowlist.
func Post(src string) string { return render(src, postPolicy) }

// Comment renders a comment body with the narrower inline allowlist.
func Comment(src string) string { return render(src, commentPolicy) }

func render(src string, policy *bluemonday.Policy) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		// goldmark only fails on writer errors; fall back to escaped text
		return policy.Sanitize(src)
	}
	return policy.Sanitize(buf.String())
}

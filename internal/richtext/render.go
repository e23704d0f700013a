package richtext

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MentionResolver reports whether username belongs to a visible crab.
type MentionResolver func(username string) bool

// EmbedKind is a category of embeddable link. At most one embed per kind is
// rendered; every matching link of that kind is removed from the text.
type EmbedKind int

const (
	EmbedYouTube EmbedKind = iota
	EmbedSpotify
	EmbedGiphy
	EmbedImage
)

var embedOrder = []EmbedKind{EmbedYouTube, EmbedSpotify, EmbedGiphy, EmbedImage}

var (
	youtubePattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?(?:youtube\.com/watch\?(?:[^&\s]+&)*v=|youtu\.be/|youtube\.com/shorts/)([\w-]{11})(?:[?&]\w+=\w+)*$`)
	spotifyPattern = regexp.MustCompile(`^https://open\.spotify\.com/(track|album|playlist|episode)/(\w+)(?:\?\S*)?$`)
	giphyPattern   = regexp.MustCompile(`^https://(?:media\.)?giphy\.com/\S+[-/](\w{13,21})(?:\S*)$`)
	imagePattern   = regexp.MustCompile(`(?i)^https://\S+\.(?:gif|jpe?g|png)$`)
	markdownLink   = regexp.MustCompile(`^\[([^\]\(\)]+)\]\(((?:https?://)\S+|(?:www\.)?\w{3,}\.(?i:com|net|org|gov|io))\)`)
	bareDomain     = regexp.MustCompile(`^(?:www\.)?\w{3,}\.(?i:com|net|org|gov|io)\b`)
)

type edit struct {
	start, end  int
	replacement string
}

type embed struct {
	kind EmbedKind
	html string
}

// Render converts HTML-escaped content into display HTML. Tags and resolvable
// mentions become links, markdown and bare links become anchors, and the first
// link of each embeddable kind is rendered as a block after the text.
//
// Rendering is a single forward scan collecting edits, applied once.
func Render(content string, resolve MentionResolver) string {
	var edits []edit
	embeds := make(map[EmbedKind]embed)

	for i := 0; i < len(content); {
		if e, ok := markdownAt(content, i); ok {
			edits = append(edits, e)
			i = e.end
			continue
		}
		if end, ok := linkAt(content, i); ok {
			url := content[i:end]
			if kind, block, ok := classifyEmbed(url); ok {
				if _, seen := embeds[kind]; !seen {
					embeds[kind] = embed{kind: kind, html: block}
				}
				edits = append(edits, edit{start: i, end: end})
			} else {
				edits = append(edits, edit{start: i, end: end, replacement: anchor(url, url, "")})
			}
			i = end
			continue
		}
		if tok, ok := tokenAt(content, i); ok {
			switch tok.Kind {
			case TokenTag:
				edits = append(edits, edit{
					start:       tok.Start,
					end:         tok.End,
					replacement: anchor("/crabtag/"+strings.ToLower(tok.Name), content[tok.Start:tok.End], "crabtag"),
				})
			case TokenMention:
				if resolve != nil && resolve(strings.ToLower(tok.Name)) {
					edits = append(edits, edit{
						start:       tok.Start,
						end:         tok.End,
						replacement: anchor("/user/"+tok.Name, content[tok.Start:tok.End], "mention"),
					})
				}
			}
			i = tok.End
			continue
		}
		_, size := utf8.DecodeRuneInString(content[i:])
		i += size
	}

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, e := range edits {
		b.WriteString(content[last:e.start])
		b.WriteString(e.replacement)
		last = e.end
	}
	b.WriteString(content[last:])

	text := b.String()
	if len(embeds) > 0 {
		text = strings.TrimRightFunc(text, unicode.IsSpace)
	}
	for _, kind := range embedOrder {
		if e, ok := embeds[kind]; ok {
			text += e.html
		}
	}
	return text
}

func markdownAt(content string, i int) (edit, bool) {
	if content[i] != '[' {
		return edit{}, false
	}
	m := markdownLink.FindStringSubmatchIndex(content[i:])
	if m == nil {
		return edit{}, false
	}
	text := content[i+m[2] : i+m[3]]
	href := content[i+m[4] : i+m[5]]
	return edit{start: i, end: i + m[1], replacement: anchor(normalizeHref(href), text, "")}, true
}

// linkAt returns the end of a link starting at i. Links must begin at the
// start of content, after whitespace or after an opening parenthesis.
func linkAt(content string, i int) (int, bool) {
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(content[:i])
		if !unicode.IsSpace(r) && r != '(' && !strings.HasSuffix(content[:i], "<br>") {
			return 0, false
		}
	}
	rest := content[i:]
	if strings.HasPrefix(rest, "https://") || strings.HasPrefix(rest, "http://") {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}
		if br := strings.Index(rest[:end], "<br>"); br >= 0 {
			end = br
		}
		return i + end, true
	}
	if loc := bareDomain.FindStringIndex(rest); loc != nil {
		return i + loc[1], true
	}
	return 0, false
}

func classifyEmbed(escaped string) (EmbedKind, string, bool) {
	url := html.UnescapeString(escaped)
	if m := youtubePattern.FindStringSubmatch(url); m != nil {
		return EmbedYouTube, fmt.Sprintf(
			`<div class="embed embed-youtube"><iframe src="https://www.youtube.com/embed/%s" frameborder="0" allowfullscreen></iframe></div>`,
			m[1]), true
	}
	if m := spotifyPattern.FindStringSubmatch(url); m != nil {
		return EmbedSpotify, fmt.Sprintf(
			`<div class="embed embed-spotify"><iframe src="https://open.spotify.com/embed/%s/%s" frameborder="0" allow="encrypted-media"></iframe></div>`,
			m[1], m[2]), true
	}
	if m := giphyPattern.FindStringSubmatch(url); m != nil {
		return EmbedGiphy, fmt.Sprintf(
			`<div class="embed embed-giphy"><img src="https://media.giphy.com/media/%s/giphy.gif" alt="GIF"></div>`,
			m[1]), true
	}
	if imagePattern.MatchString(url) {
		return EmbedImage, fmt.Sprintf(
			`<div class="embed embed-image"><img src="%s" alt=""></div>`,
			html.EscapeString(url)), true
	}
	return 0, "", false
}

func normalizeHref(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return "https://" + href
}

func anchor(href, text, class string) string {
	if class == "" {
		return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener">%s</a>`, normalizeHref(href), text)
	}
	return fmt.Sprintf(`<a href="%s" class="%s">%s</a>`, href, class, text)
}

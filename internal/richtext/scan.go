// Package richtext extracts tags and mentions from molt content and renders
// content into display HTML.
package richtext

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// TagDelimiter starts a crabtag token.
	TagDelimiter = '%'
	// MentionDelimiter starts a mention token.
	MentionDelimiter = '@'
	// MaxMentionLength bounds the word run following a mention delimiter.
	MaxMentionLength = 32
)

// TokenKind distinguishes tags from mentions.
type TokenKind int

const (
	TokenTag TokenKind = iota
	TokenMention
)

// Token is a tag or mention found in content. Start and End are byte
// offsets covering the delimiter and the name.
type Token struct {
	Kind  TokenKind
	Start int
	End   int
	Name  string
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// tokenBoundary reports whether a token may start at byte offset i: it must
// not follow a word character or an escaping backslash.
func tokenBoundary(content string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(content[:i])
	return r != '\\' && !isWordRune(r)
}

// wordRun returns the byte length and rune count of the word characters
// starting at content[i:].
func wordRun(content string, i int) (int, int) {
	n, runes := 0, 0
	for i+n < len(content) {
		r, size := utf8.DecodeRuneInString(content[i+n:])
		if !isWordRune(r) {
			break
		}
		n += size
		runes++
	}
	return n, runes
}

// tokenAt returns the token starting at byte offset i, if any.
func tokenAt(content string, i int) (Token, bool) {
	c := content[i]
	if c != TagDelimiter && c != MentionDelimiter {
		return Token{}, false
	}
	if !tokenBoundary(content, i) {
		return Token{}, false
	}
	n, runes := wordRun(content, i+1)
	if runes == 0 {
		return Token{}, false
	}
	tok := Token{Start: i, End: i + 1 + n, Name: content[i+1 : i+1+n]}
	if c == TagDelimiter {
		tok.Kind = TokenTag
		return tok, true
	}
	// A longer run is not a mention at all, not a truncated one.
	if runes > MaxMentionLength {
		return Token{}, false
	}
	tok.Kind = TokenMention
	return tok, true
}

// Scan returns every tag and mention token in content, in order.
func Scan(content string) []Token {
	var tokens []Token
	for i := 0; i < len(content); {
		if tok, ok := tokenAt(content, i); ok {
			tokens = append(tokens, tok)
			i = tok.End
			continue
		}
		_, size := utf8.DecodeRuneInString(content[i:])
		i += size
	}
	return tokens
}

func uniqueLower(tokens []Token, kind TokenKind) []string {
	seen := make(map[string]bool)
	var names []string
	for _, tok := range tokens {
		if tok.Kind != kind {
			continue
		}
		name := strings.ToLower(tok.Name)
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Tags returns the distinct lowercase tag names in content, in order of first use.
func Tags(content string) []string {
	return uniqueLower(Scan(content), TokenTag)
}

// Mentions returns the distinct lowercase usernames mentioned in content, in order of first use.
func Mentions(content string) []string {
	return uniqueLower(Scan(content), TokenMention)
}

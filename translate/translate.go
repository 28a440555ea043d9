// Package translate rewrites well-known R error messages into plain,
// localized phrases.
package translate

import (
	"regexp"

	"golang.org/x/text/language"
)

// Rule replaces the first match of Pattern with Replacement. Replacement may
// reference capture groups with ${n}.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Table is an ordered rule set plus the message used when an error carries
// no text at all.
type Table struct {
	Tag      language.Tag
	Rules    []Rule
	Fallback string
}

// Translator applies one Table to raw interpreter messages.
type Translator struct {
	table Table
}

var (
	tables  = []Table{english, french}
	matcher = language.NewMatcher([]language.Tag{language.English, language.French})
)

// New returns a Translator for the best table matching locale (a BCP 47
// tag such as "fr-CA"). Unknown or empty locales use English.
func New(locale string) *Translator {
	_, idx, conf := matcher.Match(parseTag(locale))
	if conf == language.No {
		idx = 0
	}
	return &Translator{table: tables[idx]}
}

// NewWithTable returns a Translator backed by a caller-supplied table.
func NewWithTable(t Table) *Translator {
	return &Translator{table: t}
}

func parseTag(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}

// Locale returns the tag of the table in use.
func (t *Translator) Locale() language.Tag {
	return t.table.Tag
}

// Translate rewrites msg with the first rule whose pattern matches. Only the
// matched part changes; the rest of msg is kept. Messages that match no rule
// are returned unchanged, and an empty message yields the fallback text.
func (t *Translator) Translate(msg string) string {
	if msg == "" {
		return t.table.Fallback
	}
	for _, r := range t.table.Rules {
		loc := r.Pattern.FindStringSubmatchIndex(msg)
		if loc == nil {
			continue
		}
		repl := r.Pattern.ExpandString(nil, r.Replacement, msg, loc)
		return msg[:loc[0]] + string(repl) + msg[loc[1]:]
	}
	return msg
}

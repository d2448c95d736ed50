// Package text implements the text front end of the synthesis pipeline:
// normalization, language-tag segmentation, and bounded-length chunking.
package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultLanguages is the language set supported by the stock model bundle.
// The active set comes from configuration; this is the fallback.
var DefaultLanguages = []string{"en", "ko", "es", "pt", "fr"}

var (
	// ErrEmptyText reports input that is empty or whitespace-only after trimming.
	ErrEmptyText = errors.New("text is empty")
	// ErrInvalidLanguage reports a language code outside the supported set.
	ErrInvalidLanguage = errors.New("invalid language")
)

// Policy controls how an unsupported language code is handled.
type Policy int

const (
	// PolicyStrict rejects unsupported language codes with ErrInvalidLanguage.
	PolicyStrict Policy = iota
	// PolicyCoerce substitutes the configured default language.
	PolicyCoerce
)

// ParsePolicy maps a config string to a Policy. An empty string selects
// PolicyStrict.
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "strict":
		return PolicyStrict, nil
	case "coerce":
		return PolicyCoerce, nil
	default:
		return PolicyStrict, fmt.Errorf("invalid language policy %q (expected strict|coerce)", raw)
	}
}

var (
	emojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F700}-\x{1F77F}\x{1F780}-\x{1F7FF}\x{1F800}-\x{1F8FF}\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FA6F}\x{1FA70}-\x{1FAFF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\x{1F1E6}-\x{1F1FF}]+`)

	// leadingTagPattern recognizes text that already carries a language tag.
	leadingTagPattern = regexp.MustCompile(`^<[a-z]{2}>`)

	// terminalPattern matches the terminal/closing characters (across scripts)
	// after which no trailing period is inserted.
	terminalPattern = regexp.MustCompile(`[.!?;:,'"“”‘’)\]}…。」』】〉》›»]$`)

	whitespacePattern = regexp.MustCompile(`\s+`)

	// symbolReplacer folds typographic dashes and quotes to ASCII, turns
	// structural characters into spaces, and deletes decorative symbols.
	symbolReplacer = strings.NewReplacer(
		"–", "-",
		"‑", "-",
		"—", "-",
		"_", " ",
		"“", `"`,
		"”", `"`,
		"„", `"`,
		"‟", `"`,
		"‘", "'",
		"’", "'",
		"‚", "'",
		"‛", "'",
		"´", "'",
		"`", "'",
		"[", " ",
		"]", " ",
		"|", " ",
		"/", " ",
		"#", " ",
		"→", " ",
		"←", " ",
		"♥", "",
		"☆", "",
		"♡", "",
		"©", "",
		`\`, "",
	)

	expressionReplacer = strings.NewReplacer(
		"e.g.,", "for example, ",
		"i.e.,", "that is, ",
		"@", " at ",
	)

	// punctSpacingReplacer removes a single space before closing punctuation.
	punctSpacingReplacer = strings.NewReplacer(
		" ,", ",",
		" .", ".",
		" !", "!",
		" ?", "?",
		" ;", ";",
		" :", ":",
		" '", "'",
	)
)

// NormalizerConfig configures a Normalizer. Zero values select the stock
// language set, strict policy, and the first supported language as the
// coercion default.
type NormalizerConfig struct {
	Languages       []string
	Policy          Policy
	DefaultLanguage string
}

// Normalizer cleans raw text and wraps it in a language tag so it matches
// the distribution the acoustic model was trained on.
type Normalizer struct {
	languages []string
	policy    Policy
	fallback  string
}

// NewNormalizer builds a Normalizer from cfg.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = DefaultLanguages
	}
	fallback := cfg.DefaultLanguage
	if fallback == "" {
		fallback = langs[0]
	}
	return &Normalizer{
		languages: append([]string(nil), langs...),
		policy:    cfg.Policy,
		fallback:  fallback,
	}
}

// Languages returns the supported language codes in declaration order.
func (n *Normalizer) Languages() []string {
	return append([]string(nil), n.languages...)
}

// Supported reports whether lang is in the supported set.
func (n *Normalizer) Supported(lang string) bool {
	for _, l := range n.languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Resolve validates lang against the supported set. Under PolicyCoerce an
// unsupported code resolves to the default language instead of failing.
func (n *Normalizer) Resolve(lang string) (string, error) {
	if n.Supported(lang) {
		return lang, nil
	}
	if n.policy == PolicyCoerce {
		return n.fallback, nil
	}
	return "", fmt.Errorf("%w: %q (supported: %s)", ErrInvalidLanguage, lang, strings.Join(n.languages, ", "))
}

// Normalize cleans text and wraps it in a <lang>…</lang> tag. Input that
// already begins with a language tag is returned unchanged, which makes the
// function idempotent on its own output. The language code is validated
// before any other processing happens.
func (n *Normalizer) Normalize(text, lang string) (string, error) {
	if leadingTagPattern.MatchString(text) {
		return text, nil
	}

	lang, err := n.Resolve(lang)
	if err != nil {
		return "", err
	}

	text = norm.NFKD.String(text)
	text = emojiPattern.ReplaceAllString(text, "")
	text = symbolReplacer.Replace(text)
	text = expressionReplacer.Replace(text)
	text = punctSpacingReplacer.Replace(text)

	for strings.Contains(text, `""`) {
		text = strings.ReplaceAll(text, `""`, `"`)
	}
	for strings.Contains(text, "''") {
		text = strings.ReplaceAll(text, "''", "'")
	}

	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if text != "" && !terminalPattern.MatchString(text) {
		text += "."
	}

	return "<" + lang + ">" + text + "</" + lang + ">", nil
}

// Package i18n holds immutable translation tables keyed by language tag.
package i18n

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Catalog maps language -> translation key -> text. It is built once and
// never changes afterwards; accessors hand out copies.
type Catalog struct {
	// keyed by canonical tag string
	tables      map[string]map[string]string
	tags        []language.Tag
	defaultLang language.Tag
	ordered     []language.Tag
	matcher     language.Matcher
}

// NewCatalog builds a catalog from raw tables keyed by BCP 47 language code.
// defaultLang must be one of the table languages.
func NewCatalog(tables map[string]map[string]string, defaultLang string) (*Catalog, error) {
	c := &Catalog{tables: make(map[string]map[string]string, len(tables))}

	codes := make([]string, 0, len(tables))
	for code := range tables {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", code, err)
		}
		if _, dup := c.tables[tag.String()]; dup {
			return nil, fmt.Errorf("language %s declared twice", tag)
		}
		table := make(map[string]string, len(tables[code]))
		for k, v := range tables[code] {
			table[k] = v
		}
		c.tables[tag.String()] = table
		c.tags = append(c.tags, tag)
	}

	if defaultLang == "" && len(c.tags) > 0 {
		c.defaultLang = c.tags[0]
	} else if defaultLang != "" {
		tag, err := language.Parse(defaultLang)
		if err != nil {
			return nil, fmt.Errorf("invalid default language %q: %w", defaultLang, err)
		}
		if _, ok := c.tables[tag.String()]; !ok {
			return nil, fmt.Errorf("default language %s has no translations", tag)
		}
		c.defaultLang = tag
	}

	// the matcher prefers its first tag when nothing matches
	c.ordered = []language.Tag{c.defaultLang}
	for _, t := range c.tags {
		if t.String() != c.defaultLang.String() {
			c.ordered = append(c.ordered, t)
		}
	}
	c.matcher = language.NewMatcher(c.ordered)
	return c, nil
}

// Load reads every <lang>.json file directly under dir. Nested objects are
// flattened into dotted keys ("login.title").
func Load(fsys fs.FS, dir, defaultLang string) (*Catalog, error) {
	tables := map[string]map[string]string{}

	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".json") {
			return nil
		}
		lang := strings.TrimSuffix(path.Base(p), ".json")

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read translation file %s: %w", p, err)
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(content, &raw); err != nil {
			return fmt.Errorf("failed to parse translation file %s: %w", p, err)
		}

		table := map[string]string{}
		if err := flatten(raw, "", table); err != nil {
			return fmt.Errorf("translation file %s: %w", p, err)
		}
		tables[lang] = table
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewCatalog(tables, defaultLang)
}

func flatten(m map[string]interface{}, prefix string, out map[string]string) error {
	for key, value := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case string:
			out[full] = v
		case map[string]interface{}:
			if err := flatten(v, full, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %s: expected string or object, got %T", full, value)
		}
	}
	return nil
}

// Lookup returns the text for key in exactly the given language. There is
// no fallback: a check against "ru" must never pass on the "et" text.
func (c *Catalog) Lookup(lang, key string) (string, bool) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", false
	}
	v, ok := c.tables[tag.String()][key]
	return v, ok
}

// T returns the text for key in the best matching language, falling back to
// the default language and finally to the key itself. Used for rendering,
// never for assertions.
func (c *Catalog) T(lang, key string) string {
	if v, ok := c.tables[c.Match(lang).String()][key]; ok {
		return v
	}
	if v, ok := c.tables[c.defaultLang.String()][key]; ok {
		return v
	}
	return key
}

// Match picks the catalog language closest to lang, which may be a single
// code or an Accept-Language header value.
func (c *Catalog) Match(lang string) language.Tag {
	if len(c.tags) == 0 {
		return language.Und
	}
	wanted, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(wanted) == 0 {
		return c.defaultLang
	}
	_, idx, conf := c.matcher.Match(wanted...)
	if conf == language.No || idx < 0 || idx >= len(c.ordered) {
		return c.defaultLang
	}
	return c.ordered[idx]
}

// Has reports whether the catalog has a table for lang.
func (c *Catalog) Has(lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	_, ok := c.tables[tag.String()]
	return ok
}

// Table returns a copy of the translations for lang, or nil.
func (c *Catalog) Table(lang string) map[string]string {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil
	}
	src, ok := c.tables[tag.String()]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Languages returns the catalog languages sorted by code.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.tags))
	for i, t := range c.tags {
		out[i] = t.String()
	}
	return out
}

// Default returns the default language code.
func (c *Catalog) Default() string {
	if len(c.tags) == 0 {
		return ""
	}
	return c.defaultLang.String()
}

// Missing lists keys present in the default language but absent from lang.
func (c *Catalog) Missing(lang string) []string {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil
	}
	var out []string
	for k := range c.tables[c.defaultLang.String()] {
		if _, ok := c.tables[tag.String()][k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

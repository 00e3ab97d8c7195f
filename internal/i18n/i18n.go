// ABOUTME: Localized UI and flash messages backed by embedded YAML catalogs
// ABOUTME: Resolves the request language from ?lang, a cookie or Accept-Language

package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

const (
	// BaseLocale is the canonical locale; every key must exist in it.
	BaseLocale = "en-US"
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the user's language preference.
	LangCookieName = "coven_chime_lang"
)

//go:embed locales/*.yaml
var localesFS embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Bundle holds every loaded locale.
type Bundle struct {
	tags     []language.Tag
	messages map[language.Tag]map[string]string
	catalog  *catalog.Builder
	matcher  language.Matcher
}

// Load reads the embedded catalogs.
func Load() (*Bundle, error) {
	return LoadFromFS(localesFS)
}

// LoadFromFS reads locales/*.yaml from fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	base := language.MustParse(BaseLocale)
	b := &Bundle{
		messages: map[language.Tag]map[string]string{},
		catalog:  catalog.NewBuilder(catalog.Fallback(base)),
	}

	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		fromPath := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if file.Locale != fromPath {
			return nil, fmt.Errorf("catalog %s: locale %q must match file name %q", p, file.Locale, fromPath)
		}
		tag, err := language.Parse(file.Locale)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: parse locale: %w", p, err)
		}
		if _, dup := b.messages[tag]; dup {
			return nil, fmt.Errorf("catalog %s: locale %q already defined", p, file.Locale)
		}

		msgs := make(map[string]string, len(file.Messages))
		for key, value := range file.Messages {
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, fmt.Errorf("catalog %s: message key cannot be blank", p)
			}
			msgs[key] = value
			if err := b.catalog.SetString(tag, key, value); err != nil {
				return nil, fmt.Errorf("catalog %s: key %q: %w", p, key, err)
			}
		}
		b.messages[tag] = msgs
		b.tags = append(b.tags, tag)
	}

	if _, ok := b.messages[base]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}

	// base first so it wins ties in the matcher
	for i, tag := range b.tags {
		if tag == base {
			b.tags[0], b.tags[i] = b.tags[i], b.tags[0]
			break
		}
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

// Default returns the base language tag.
func (b *Bundle) Default() language.Tag {
	return b.tags[0]
}

// Supported returns the loaded language tags, base first.
func (b *Bundle) Supported() []language.Tag {
	return append([]language.Tag(nil), b.tags...)
}

// Match returns the supported tag closest to the preferred ones.
func (b *Bundle) Match(preferred ...language.Tag) language.Tag {
	_, idx, conf := b.matcher.Match(preferred...)
	if conf == language.No {
		return b.Default()
	}
	return b.tags[idx]
}

// ResolveTag determines the best language for the request. The bool reports
// whether an explicit ?lang choice should be persisted as a cookie.
func (b *Bundle) ResolveTag(r *http.Request) (language.Tag, bool) {
	if r == nil {
		return b.Default(), false
	}

	if v := strings.TrimSpace(r.URL.Query().Get(LangParam)); v != "" {
		if tag, err := language.Parse(v); err == nil {
			return b.Match(tag), true
		}
	}

	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if tag, err := language.Parse(cookie.Value); err == nil {
			return b.Match(tag), false
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			return b.Match(tags...), false
		}
	}

	return b.Default(), false
}

// SetLanguageCookie persists the selected language on the response.
func SetLanguageCookie(w http.ResponseWriter, tag language.Tag) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    tag.String(),
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Has reports whether key exists in the base catalog.
func (b *Bundle) Has(key string) bool {
	_, ok := b.messages[b.Default()][key]
	return ok
}

// Printer returns a printer for tag backed by this bundle.
func (b *Bundle) Printer(tag language.Tag) *Printer {
	matched := b.Match(tag)
	return &Printer{
		tag:    matched,
		bundle: b,
		p:      message.NewPrinter(matched, message.Catalog(b.catalog)),
		base:   message.NewPrinter(b.Default(), message.Catalog(b.catalog)),
	}
}

// Printer localizes messages for one language.
type Printer struct {
	tag    language.Tag
	bundle *Bundle
	p      *message.Printer
	base   *message.Printer
}

// Tag returns the printer's language.
func (p *Printer) Tag() language.Tag { return p.tag }

// T formats the message for key, falling back to the base locale when the
// printer's locale lacks it. Unknown keys render as the key itself.
func (p *Printer) T(key string, args ...any) string {
	if _, ok := p.bundle.messages[p.tag][key]; ok {
		return p.p.Sprintf(key, args...)
	}
	if p.bundle.Has(key) {
		return p.base.Sprintf(key, args...)
	}
	return key
}

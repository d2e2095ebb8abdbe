package fixture

import (
	"fmt"
	"io/fs"
	"net/http"

	"github.com/flosch/pongo2/v6"
	"github.com/gin-gonic/gin"

	"github.com/qa-tooling/uiprobe/internal/i18n"
)

// Renderer renders pongo2 templates for gin handlers.
type Renderer struct {
	set     *pongo2.TemplateSet
	catalog *i18n.Catalog
	debug   bool
}

// NewRenderer creates a renderer over the templates in fsys. In debug mode
// templates are parsed on every request instead of once.
func NewRenderer(fsys fs.FS, catalog *i18n.Catalog, debug bool) *Renderer {
	set := pongo2.NewSet("fixture", pongo2.NewFSLoader(fsys))
	set.Debug = debug
	return &Renderer{set: set, catalog: catalog, debug: debug}
}

// Instance returns the parsed template, from the cache unless in debug mode.
func (r *Renderer) Instance(name string) (*pongo2.Template, error) {
	if r.debug {
		return r.set.FromFile(name)
	}
	return r.set.FromCache(name)
}

// Render renders a template with the request language and data.
func (r *Renderer) Render(c *gin.Context, code int, name string, data gin.H) error {
	lang := GetLanguage(c)
	if lang == "" {
		lang = r.catalog.Default()
	}

	ctx := pongo2.Context{
		"t": func(key string) string {
			return r.catalog.T(lang, key)
		},
		"Lang": lang,
	}
	for key, value := range data {
		ctx[key] = value
	}

	tmpl, err := r.Instance(name)
	if err != nil {
		return fmt.Errorf("failed to load template %s: %w", name, err)
	}
	out, err := tmpl.ExecuteBytes(ctx)
	if err != nil {
		return fmt.Errorf("failed to render template %s: %w", name, err)
	}
	c.Data(code, "text/html; charset=utf-8", out)
	return nil
}

// HTML renders an HTML template, answering 500 when rendering fails.
func (r *Renderer) HTML(c *gin.Context, code int, name string, data gin.H) {
	if err := r.Render(c, code, name, data); err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "Template error: %v", err)
	}
}

package notify

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	rherrors "github.com/railhead-io/railhead/internal/errors"
	"github.com/railhead-io/railhead/internal/fileutil"
)

//go:embed templates/*.yaml
var embeddedCatalog embed.FS

// templateMessage is the catalog entry the messenger renders for every
// outgoing notification.
const templateMessage = "message"

// maxCatalogSize caps an on-disk catalog override file.
const maxCatalogSize = 1 << 20

var titleCaser = cases.Title(language.English)

// catalogFile is the on-disk shape of a template catalog.
type catalogFile struct {
	Templates map[string]string `yaml:"templates"`
}

// Catalog holds the compiled message templates.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// LoadCatalog compiles the embedded template catalog.
func LoadCatalog() (*Catalog, error) {
	const op = "notify.LoadCatalog"

	raw, err := embeddedCatalog.ReadFile("templates/messages.yaml")
	if err != nil {
		return nil, rherrors.IOWrap(err, op, "failed to read embedded catalog")
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, rherrors.IOWrap(err, op, "failed to parse catalog")
	}
	if len(file.Templates) == 0 {
		return nil, rherrors.IO(op, "catalog defines no templates")
	}

	c := &Catalog{templates: make(map[string]*template.Template, len(file.Templates))}
	for name, body := range file.Templates {
		tmpl, err := template.New(name).Funcs(catalogFuncs()).Parse(body)
		if err != nil {
			return nil, rherrors.IOWrap(err, op, fmt.Sprintf("failed to parse template %s", name))
		}
		c.templates[name] = tmpl
	}

	return c, nil
}

// Render executes the named template with the given data.
func (c *Catalog) Render(name string, data any) (string, error) {
	const op = "notify.Catalog.Render"

	c.mu.RLock()
	tmpl, ok := c.templates[name]
	c.mu.RUnlock()
	if !ok {
		return "", rherrors.NotFound(op, fmt.Sprintf("template %s not in catalog", name))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", rherrors.IOWrap(err, op, fmt.Sprintf("failed to render template %s", name))
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// LoadOverrides reads a catalog file from disk and registers its
// templates over the embedded ones. Templates the file does not name
// keep their embedded bodies.
func (c *Catalog) LoadOverrides(path string) error {
	const op = "notify.Catalog.LoadOverrides"

	raw, err := fileutil.ReadFileLimited(path, maxCatalogSize)
	if err != nil {
		return rherrors.IOWrap(err, op, fmt.Sprintf("failed to read catalog %s", path))
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return rherrors.IOWrap(err, op, fmt.Sprintf("failed to parse catalog %s", path))
	}
	for name, body := range file.Templates {
		if err := c.Register(name, body); err != nil {
			return err
		}
	}
	return nil
}

// Register adds or replaces a template. Deployments use it to override
// the embedded bodies without rebuilding.
func (c *Catalog) Register(name, body string) error {
	const op = "notify.Catalog.Register"

	tmpl, err := template.New(name).Funcs(catalogFuncs()).Parse(body)
	if err != nil {
		return rherrors.ValidationWrap(err, op, fmt.Sprintf("failed to parse template %s", name))
	}

	c.mu.Lock()
	c.templates[name] = tmpl
	c.mu.Unlock()
	return nil
}

// Names returns the catalog's template names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// catalogFuncs creates the template function map.
func catalogFuncs() template.FuncMap {
	return template.FuncMap{
		"upper":         strings.ToUpper,
		"lower":         strings.ToLower,
		"title":         titleCaser.String,
		"trim":          strings.TrimSpace,
		"label":         fieldLabel,
		"platformLabel": platformLabel,
	}
}

// fieldLabel turns a camelCase field key into a display label, so
// "manualUploadsReady" renders as "Manual Uploads Ready".
func fieldLabel(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return titleCaser.String(b.String())
}

// platformLabel renders a platform name for humans. iOS keeps its brand
// capitalization; everything else is plain title case.
func platformLabel(name string) string {
	if strings.EqualFold(name, "ios") {
		return "iOS"
	}
	return titleCaser.String(strings.ToLower(name))
}

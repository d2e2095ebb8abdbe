// Package scenario loads declarative UI test suites.
//
// A suite is a YAML document naming locators, messages and translation
// tables, and a list of groups. Each group holds scenarios that share the
// group's setup and teardown steps. Documents are validated against an
// embedded JSON schema and then checked semantically (targets resolve,
// translation labels exist) so a broken suite fails before a browser starts.
package scenario

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qa-tooling/uiprobe/internal/i18n"
	"github.com/qa-tooling/uiprobe/internal/locator"
)

// Suite is a parsed and checked suite document. It is not modified after
// loading; WithBaseURL returns a copy.
type Suite struct {
	Name            string                       `yaml:"suite"`
	Description     string                       `yaml:"description,omitempty"`
	BaseURL         string                       `yaml:"base_url,omitempty"`
	DefaultLanguage string                       `yaml:"default_language,omitempty"`
	Vars            map[string]string            `yaml:"vars,omitempty"`
	Locators        map[string]string            `yaml:"locators,omitempty"`
	Messages        map[string]string            `yaml:"messages,omitempty"`
	Translations    map[string]map[string]string `yaml:"translations,omitempty"`
	// Labels maps a translation key to the locator alias showing it.
	Labels map[string]string `yaml:"labels,omitempty"`
	Groups []Group           `yaml:"groups"`

	// Source is the file the suite was read from, if any.
	Source string `yaml:"-"`

	locators map[string]locator.Locator
	catalog  *i18n.Catalog
}

// Group is a set of scenarios sharing setup and teardown.
type Group struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Pending     string     `yaml:"pending,omitempty"`
	Requires    []string   `yaml:"requires,omitempty"`
	Setup       []Step     `yaml:"setup,omitempty"`
	Teardown    []Step     `yaml:"teardown,omitempty"`
	Scenarios   []Scenario `yaml:"scenarios"`
}

// Scenario is a named, independent test case.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Pending     string   `yaml:"pending,omitempty"`
	Requires    []string `yaml:"requires,omitempty"`
	Setup       []Step   `yaml:"setup,omitempty"`
	Steps       []Step   `yaml:"steps,omitempty"`
	Teardown    []Step   `yaml:"teardown,omitempty"`
}

// Case is a scenario with its group's shared steps folded in, ready to run.
type Case struct {
	Group   string
	Name    string
	Pending string
	// Requires names variables that must be non-empty for the case to run.
	Requires []string
	// Setup is the group setup followed by the scenario setup.
	Setup []Step
	Body  []Step
	// Teardown is the scenario teardown followed by the group teardown.
	Teardown []Step
}

// ID is the "group/scenario" name of the case.
func (c Case) ID() string {
	if c.Group == "" {
		return c.Name
	}
	return c.Group + "/" + c.Name
}

// Unmet returns the required variables that env leaves empty.
func (c Case) Unmet(env *Env) []string {
	var missing []string
	for _, name := range c.Requires {
		if v, _ := env.Var(name); v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Parse reads a suite document. source names it in error messages.
func Parse(data []byte, source string) (*Suite, error) {
	problems, err := validateDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Source: source, Problems: problems}
	}

	s := &Suite{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%s: failed to decode suite: %w", source, err)
	}
	s.Source = source
	if problems := s.compile(); len(problems) > 0 {
		return nil, &ValidationError{Source: source, Problems: problems}
	}
	return s, nil
}

// LoadFile reads a suite from disk.
func LoadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}
	return Parse(data, path)
}

// LoadFS reads a suite from fsys.
func LoadFS(fsys fs.FS, name string) (*Suite, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}
	return Parse(data, name)
}

func (s *Suite) compile() []Problem {
	var problems []Problem
	add := func(path, format string, args ...interface{}) {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	s.locators = make(map[string]locator.Locator, len(s.Locators))
	for _, alias := range sortedKeys(s.Locators) {
		loc, err := locator.Parse(s.Locators[alias])
		if err != nil {
			add("locators."+alias, "%v", err)
			continue
		}
		s.locators[alias] = loc
	}

	if s.DefaultLanguage == "" {
		// the first language in code order keeps the choice deterministic
		if langs := sortedKeys(s.Translations); len(langs) > 0 {
			s.DefaultLanguage = langs[0]
		}
	}
	catalog, err := i18n.NewCatalog(s.Translations, s.DefaultLanguage)
	if err != nil {
		add("translations", "%v", err)
		catalog, _ = i18n.NewCatalog(nil, "")
	}
	s.catalog = catalog

	// LabelSet is keyed by locator, so two labels on one element would hide
	// each other.
	labelOf := make(map[locator.Locator]string, len(s.Labels))
	for _, key := range sortedKeys(s.Labels) {
		if loc, err := s.Locator(s.Labels[key]); err != nil {
			add("labels."+key, "%v", err)
		} else if prev, dup := labelOf[loc]; dup {
			add("labels."+key, "shows the same element as label %q (%s)", prev, loc)
		} else {
			labelOf[loc] = key
		}
		for _, lang := range catalog.Languages() {
			if _, ok := catalog.Lookup(lang, key); !ok {
				add("labels."+key, "no %s translation", lang)
			}
		}
	}

	checkSteps := func(path string, steps []Step) {
		for i, st := range steps {
			p := fmt.Sprintf("%s.%d", path, i)
			if err := st.check(); err != nil {
				add(p, "%v", err)
				continue
			}
			if st.Target != "" {
				if _, err := s.Locator(st.Target); err != nil {
					add(p, "%v", err)
				}
			}
			if st.Action == ActionAssertTranslation {
				if !catalog.Has(st.Language) {
					add(p, "no translations for language %q", st.Language)
				}
				if len(s.Labels) == 0 {
					add(p, "suite declares no labels to check")
				}
			}
		}
	}

	groups := map[string]bool{}
	for gi, g := range s.Groups {
		gp := fmt.Sprintf("groups.%d", gi)
		if groups[g.Name] {
			add(gp, "duplicate group name %q", g.Name)
		}
		groups[g.Name] = true
		checkSteps(gp+".setup", g.Setup)
		checkSteps(gp+".teardown", g.Teardown)

		names := map[string]bool{}
		for si, sc := range g.Scenarios {
			sp := fmt.Sprintf("%s.scenarios.%d", gp, si)
			if names[sc.Name] {
				add(sp, "duplicate scenario name %q", sc.Name)
			}
			names[sc.Name] = true
			checkSteps(sp+".setup", sc.Setup)
			checkSteps(sp+".steps", sc.Steps)
			checkSteps(sp+".teardown", sc.Teardown)
			if len(sc.Steps) == 0 && sc.Pending == "" && g.Pending == "" {
				add(sp, "scenario has no steps; mark it pending instead")
			}
		}
	}
	return problems
}

// Locator resolves a step target: a declared alias, or an inline locator
// written with an explicit strategy prefix or as an XPath expression.
func (s *Suite) Locator(target string) (locator.Locator, error) {
	if loc, ok := s.locators[target]; ok {
		return loc, nil
	}
	t := strings.TrimSpace(target)
	inline := strings.HasPrefix(t, "/") || strings.HasPrefix(t, "(")
	if i := strings.Index(t, "="); i > 0 {
		switch locator.Strategy(strings.ToLower(t[:i])) {
		case locator.XPath, locator.ID, locator.CSS:
			inline = true
		}
	}
	if !inline {
		return locator.Locator{}, fmt.Errorf("unknown locator alias %q", target)
	}
	return locator.Parse(t)
}

// Catalog returns the suite translations.
func (s *Suite) Catalog() *i18n.Catalog {
	if s.catalog == nil {
		c, _ := i18n.NewCatalog(nil, "")
		return c
	}
	return s.catalog
}

// LabelSet returns, for lang, every labelled locator with the text it must
// show. The caller owns the map.
func (s *Suite) LabelSet(lang string) (map[locator.Locator]string, error) {
	out := make(map[locator.Locator]string, len(s.Labels))
	for key, alias := range s.Labels {
		loc, err := s.Locator(alias)
		if err != nil {
			return nil, err
		}
		text, ok := s.Catalog().Lookup(lang, key)
		if !ok {
			return nil, fmt.Errorf("no %q translation for %q", lang, key)
		}
		out[loc] = text
	}
	return out, nil
}

// Cases flattens the groups into runnable cases in declaration order.
func (s *Suite) Cases() []Case {
	var out []Case
	for _, g := range s.Groups {
		for _, sc := range g.Scenarios {
			c := Case{
				Group:    g.Name,
				Name:     sc.Name,
				Pending:  sc.Pending,
				Requires: append(append([]string{}, g.Requires...), sc.Requires...),
				Setup:    append(append([]Step{}, g.Setup...), sc.Setup...),
				Body:     append([]Step{}, sc.Steps...),
				Teardown: append(append([]Step{}, sc.Teardown...), g.Teardown...),
			}
			if g.Pending != "" {
				c.Pending = g.Pending
			}
			out = append(out, c)
		}
	}
	return out
}

// WithBaseURL returns a copy of the suite pointing at another base URL.
func (s *Suite) WithBaseURL(u string) *Suite {
	cp := *s
	cp.BaseURL = u
	return &cp
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

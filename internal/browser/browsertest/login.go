package browsertest

import (
	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/locator"
)

// LoginPage configures a model of the bank login page: SmartID and PIN
// calculator tabs, a user id field capped at 14 characters, a password field
// capped at 16 that only appears once at least 6 characters of user id are
// typed, asynchronous error messages and a language menu.
//
// Locators are looked up by the aliases the login suite uses (user_id,
// password, error_message, ...). Missing aliases simply leave that part of
// the page out.
type LoginPage struct {
	Locators map[string]locator.Locator

	EmptyDetailsMsg string
	WrongDetailsMsg string

	// Labels maps language tag -> translation key -> text. The keys used are
	// login_option, account_number, account_ID, submit_button and
	// challenge_title.
	Labels      map[string]map[string]string
	DefaultLang string
	// LanguageLinks maps a locator alias to the language it switches to.
	LanguageLinks map[string]string

	User   string
	Secret string

	// RenderDelay is how many lookups pass before asynchronous changes
	// (dependent field, error message) show up.
	RenderDelay int
}

const passwordThreshold = 6

// NewPage returns a Page laid out as the login page.
func (lp LoginPage) NewPage() *Page {
	return NewPage(lp.build)
}

func (lp LoginPage) loc(alias string) (locator.Locator, bool) {
	l, ok := lp.Locators[alias]
	return l, ok
}

func (lp LoginPage) set(p *Page, alias string, el *Element) {
	if l, ok := lp.loc(alias); ok {
		p.Set(l, el)
	}
}

func (lp LoginPage) get(p *Page, alias string) *Element {
	if l, ok := lp.loc(alias); ok {
		return p.Get(l)
	}
	return nil
}

func (lp LoginPage) remove(p *Page, alias string) {
	if l, ok := lp.loc(alias); ok {
		p.Remove(l)
	}
}

func (lp LoginPage) label(lang, key string) string {
	if t, ok := lp.Labels[lang]; ok {
		if v, ok := t[key]; ok {
			return v
		}
	}
	return lp.Labels[lp.DefaultLang][key]
}

func (lp LoginPage) build(p *Page, url string) {
	lang := lp.DefaultLang
	submit := func(p *Page) { lp.submit(p) }

	lp.set(p, "smartid_tab", &Element{Visible: true, Text: "Smart-ID", OnClick: func(p *Page) {}})
	lp.set(p, "pincalc_tab", &Element{Visible: true, Text: "PIN-kalkulaator", OnClick: func(p *Page) {}})
	lp.set(p, "login_title", &Element{Visible: true, Text: lp.label(lang, "login_option")})
	lp.set(p, "user_id_label", &Element{Visible: true, Text: lp.label(lang, "account_number")})
	lp.set(p, "user_id", &Element{
		Visible:   true,
		MaxLength: 14,
		Attrs:     map[string]string{"id": "userId", "maxlength": "14"},
		OnInput: func(p *Page, value string) {
			if len([]rune(value)) >= passwordThreshold && lp.get(p, "password") == nil {
				current := lp.currentLang(p)
				p.After(lp.RenderDelay, func(p *Page) { lp.showPassword(p, current) })
			}
		},
		OnKey: func(p *Page, k browser.Key) {
			if k == browser.KeyEnter {
				submit(p)
			}
		},
	})
	lp.set(p, "login_button", &Element{Visible: true, OnClick: submit})
	lp.set(p, "login_button_link", &Element{
		Visible: true,
		Text:    lp.label(lang, "submit_button"),
		Attrs:   map[string]string{"href": "#", "data-lang": lang},
		OnClick: submit,
		OnKey: func(p *Page, k browser.Key) {
			if k == browser.KeyEnter || k == browser.KeySpace {
				submit(p)
			}
		},
	})

	menuOpen := false
	lp.set(p, "language_menu", &Element{Visible: true, Text: lang, OnClick: func(p *Page) {
		menuOpen = !menuOpen
		for alias := range lp.LanguageLinks {
			if el := lp.get(p, alias); el != nil {
				el.Visible = menuOpen
			}
		}
	}})
	for alias, target := range lp.LanguageLinks {
		target := target
		lp.set(p, alias, &Element{Visible: false, Text: target, OnClick: func(p *Page) {
			lp.switchLanguage(p, target)
		}})
	}
}

func (lp LoginPage) currentLang(p *Page) string {
	if el := lp.get(p, "login_button_link"); el != nil {
		if l := el.Attrs["data-lang"]; l != "" {
			return l
		}
	}
	return lp.DefaultLang
}

func (lp LoginPage) showPassword(p *Page, lang string) {
	lp.set(p, "password_container", &Element{Visible: true})
	lp.set(p, "password_label", &Element{Visible: true, Text: lp.label(lang, "account_ID")})
	lp.set(p, "password", &Element{
		Visible:   true,
		MaxLength: 16,
		Attrs:     map[string]string{"id": "authPwd", "maxlength": "16"},
		OnKey: func(p *Page, k browser.Key) {
			if k == browser.KeyEnter {
				lp.submit(p)
			}
		},
	})
}

// switchLanguage relabels everything in one step, as the page re-renders.
func (lp LoginPage) switchLanguage(p *Page, lang string) {
	if el := lp.get(p, "login_title"); el != nil {
		el.Text = lp.label(lang, "login_option")
	}
	if el := lp.get(p, "user_id_label"); el != nil {
		el.Text = lp.label(lang, "account_number")
	}
	if el := lp.get(p, "password_label"); el != nil {
		el.Text = lp.label(lang, "account_ID")
	}
	if el := lp.get(p, "login_button_link"); el != nil {
		el.Text = lp.label(lang, "submit_button")
		el.Attrs["data-lang"] = lang
	}
	if el := lp.get(p, "language_menu"); el != nil {
		el.Text = lang
	}
	for alias := range lp.LanguageLinks {
		if el := lp.get(p, alias); el != nil {
			el.Visible = false
		}
	}
}

func (lp LoginPage) submit(p *Page) {
	user, secret := "", ""
	if el := lp.get(p, "user_id"); el != nil {
		user = el.Value
	}
	if el := lp.get(p, "password"); el != nil {
		secret = el.Value
	}
	lang := lp.currentLang(p)
	lp.remove(p, "error_message")

	p.After(lp.RenderDelay, func(p *Page) {
		switch {
		case user == "":
			lp.set(p, "error_message", &Element{Visible: true, Text: lp.EmptyDetailsMsg})
		case lp.User != "" && user == lp.User && secret == lp.Secret:
			lp.set(p, "challenge_title", &Element{Visible: true, Text: lp.label(lang, "challenge_title")})
		default:
			lp.set(p, "error_message", &Element{Visible: true, Text: lp.WrongDetailsMsg})
		}
	})
}

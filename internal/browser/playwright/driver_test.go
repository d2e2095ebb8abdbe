package playwright

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qa-tooling/uiprobe/internal/browser"
	"github.com/qa-tooling/uiprobe/internal/locator"
)

func TestSelector(t *testing.T) {
	assert.Equal(t, `xpath=//input[@id="userId"]`, Selector(locator.ByXPath(`//input[@id="userId"]`)))
	assert.Equal(t, "id=loginButton", Selector(locator.ByID("loginButton")))
	assert.Equal(t, "css=div.errorMsg", Selector(locator.ByCSS("div.errorMsg")))
}

func TestUnknownEngine(t *testing.T) {
	l := NewLauncher(Options{Engine: "lynx"})
	_, err := l.engine(nil)
	assert.Error(t, err)
}

func TestBudget(t *testing.T) {
	timeout, err := budget(context.Background())
	require.NoError(t, err)
	assert.Nil(t, timeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	timeout, err = budget(ctx)
	require.NoError(t, err)
	require.NotNil(t, timeout)
	assert.InDelta(t, 60000, *timeout, 1000)

	cancel()
	_, err = budget(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	_, err = budget(expired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// A cancelled context must fail before any playwright call is made; the
// zero Driver has no page and would panic otherwise.
func TestCancelledContextStopsCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Driver{}
	loc := locator.ByID("userId")

	assert.ErrorIs(t, d.Navigate(ctx, "http://fixture.test/"), context.Canceled)
	_, err := d.Count(ctx, loc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, d.Click(ctx, loc), context.Canceled)
	assert.ErrorIs(t, d.Type(ctx, loc, "x"), context.Canceled)
	assert.ErrorIs(t, d.Press(ctx, loc, browser.KeyEnter), context.Canceled)
	_, err = d.Text(ctx, loc)
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = d.Attribute(ctx, loc, "value")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = d.Visible(ctx, loc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, d.Screenshot(ctx, "x.png"), context.Canceled)
}

const page = `<!doctype html><html><body>
<label for="userId">Kasutajatunnus</label>
<input id="userId" maxlength="14">
<span id="hidden" style="display:none">x</span>
</body></html>`

// TestDriverAgainstRealBrowser needs an installed playwright driver.
func TestDriverAgainstRealBrowser(t *testing.T) {
	if os.Getenv("UIPROBE_BROWSER_TESTS") != "1" {
		t.Skip("set UIPROBE_BROWSER_TESTS=1 to run against a real browser")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	ctx := context.Background()
	s, err := browser.Open(ctx, NewLauncher(Options{}), browser.Config{
		BaseURL: srv.URL,
		Launch:  browser.LaunchOptions{Headless: true, CommandTimeoutMs: 5000},
	})
	require.NoError(t, err)
	defer s.Close()

	input := s.Element(locator.ByXPath(`//input[@id="userId"]`))
	require.NoError(t, input.SendKeys(ctx, "ABCDEFGHIJKLMNO"))
	v, err := input.Attribute(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJKLMN", v)

	label, err := s.Element(locator.ByCSS(`label[for="userId"]`)).Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Kasutajatunnus", label)

	visible, err := s.Element(locator.ByID("hidden")).IsDisplayed(ctx)
	require.NoError(t, err)
	assert.False(t, visible)

	visible, err = s.Element(locator.ByID("absent")).IsDisplayed(ctx)
	require.NoError(t, err)
	assert.False(t, visible)
}

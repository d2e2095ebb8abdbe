// Package fixture serves a local stand-in for the bank login page. It has the
// same structure, field limits and messages as the production page and
// accepts a fixed set of test credentials, so every scenario of the login
// suite, including the ones that need a real account, can run offline.
package fixture

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qa-tooling/uiprobe/internal/i18n"
)

//go:embed templates translations
var assets embed.FS

const (
	// MaxUserLength and MaxSecretLength are the maxlength of the two fields.
	MaxUserLength   = 14
	MaxSecretLength = 16
	// PasswordThreshold is the user id length at which the password field
	// appears.
	PasswordThreshold = 6

	MethodSmartID       = "SMART_ID"
	MethodPINCalculator = "PIN_CALCULATOR"
)

// Config configures the fixture server.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	DefaultLanguage string        `mapstructure:"default_language"`
	User            string        `mapstructure:"user"`
	Secret          string        `mapstructure:"secret"`
	PINSecret       string        `mapstructure:"pin_secret"`
	PINCalculator   bool          `mapstructure:"pin_calculator"`
	RenderDelay     time.Duration `mapstructure:"render_delay"`
	// Debug reloads templates on every request.
	Debug bool `mapstructure:"debug"`
}

// DefaultConfig returns the settings the login suite expects.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8089",
		DefaultLanguage: "et",
		User:            "12345678",
		Secret:          "4242",
		PINSecret:       "1111",
		PINCalculator:   true,
		RenderDelay:     150 * time.Millisecond,
	}
}

// Server is the fixture HTTP server.
type Server struct {
	cfg      Config
	catalog  *i18n.Catalog
	renderer *Renderer
	engine   *gin.Engine
	logger   *zap.Logger
}

// New builds the server and its routes. It does not listen yet.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = def.DefaultLanguage
	}
	if cfg.User == "" {
		cfg.User, cfg.Secret = def.User, def.Secret
	}
	if cfg.PINSecret == "" {
		cfg.PINSecret = def.PINSecret
	}
	// maxlength and the max= binding both count characters
	if utf8.RuneCountInString(cfg.User) > MaxUserLength ||
		utf8.RuneCountInString(cfg.Secret) > MaxSecretLength ||
		utf8.RuneCountInString(cfg.PINSecret) > MaxSecretLength {
		return nil, fmt.Errorf("fixture credentials exceed the field limits (%d/%d)", MaxUserLength, MaxSecretLength)
	}

	catalog, err := i18n.Load(assets, "translations", cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture translations: %w", err)
	}
	if err := checkTranslations(catalog); err != nil {
		return nil, err
	}
	templates, err := fs.Sub(assets, "templates")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		catalog:  catalog,
		renderer: NewRenderer(templates, catalog, cfg.Debug),
		logger:   logger.Named("fixture"),
	}
	s.engine = s.routes()
	return s, nil
}

// checkTranslations fails when a language lacks keys the default language
// has, since the page would then render raw keys.
func checkTranslations(c *i18n.Catalog) error {
	var problems []string
	for _, lang := range c.Languages() {
		if missing := c.Missing(lang); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%s lacks %s", lang, strings.Join(missing, ", ")))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("incomplete fixture translations: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config { return s.cfg }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(s.logger))
	r.Use(Language(s.catalog))

	r.GET("/", s.handlePage)
	r.POST("/login", s.handleLogin)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/api/translations/:lang", s.handleTranslations)
	return r
}

type languageOption struct {
	Code  string
	Label string
}

func (s *Server) handlePage(c *gin.Context) {
	var langs []languageOption
	for _, code := range s.catalog.Languages() {
		langs = append(langs, languageOption{Code: code, Label: s.catalog.T(code, "page.language")})
	}
	s.renderer.HTML(c, http.StatusOK, "login.html", gin.H{
		"Languages":         langs,
		"PINCalculator":     s.cfg.PINCalculator,
		"RenderDelayMs":     s.cfg.RenderDelay.Milliseconds(),
		"PasswordThreshold": PasswordThreshold,
		"MaxUser":           MaxUserLength,
		"MaxSecret":         MaxSecretLength,
	})
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	User   string `json:"user" binding:"max=14"`
	Secret string `json:"secret" binding:"max=16"`
	Method string `json:"method"`
	Lang   string `json:"lang"`
}

// LoginResponse is either a challenge or an error message.
type LoginResponse struct {
	Status  string `json:"status"`
	Title   string `json:"title,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Status: "error", Message: err.Error()})
		return
	}
	lang := GetLanguage(c)
	if req.Lang != "" {
		lang = s.catalog.Match(req.Lang).String()
	}
	if req.Method == "" {
		req.Method = MethodSmartID
	}

	reject := func(code int, key string) {
		s.logger.Debug("login rejected", zap.String("method", req.Method), zap.String("reason", key))
		c.JSON(code, LoginResponse{Status: "error", Message: s.catalog.T(lang, "messages."+key)})
	}

	var secret string
	switch req.Method {
	case MethodSmartID:
		secret = s.cfg.Secret
	case MethodPINCalculator:
		if !s.cfg.PINCalculator {
			reject(http.StatusNotFound, "pin_disabled")
			return
		}
		secret = s.cfg.PINSecret
	default:
		c.JSON(http.StatusBadRequest, LoginResponse{Status: "error", Message: "unknown login method " + req.Method})
		return
	}

	switch {
	case req.User == "":
		reject(http.StatusBadRequest, "empty_details")
	case req.User != s.cfg.User || req.Secret != secret:
		reject(http.StatusUnauthorized, "wrong_details")
	default:
		s.logger.Info("login accepted", zap.String("method", req.Method))
		c.JSON(http.StatusOK, LoginResponse{
			Status: "challenge",
			Title:  s.catalog.T(lang, "labels.challenge_title"),
			Code:   fmt.Sprintf("%04d", rand.Intn(10000)),
		})
	}
}

func (s *Server) handleTranslations(c *gin.Context) {
	lang := c.Param("lang")
	if !s.catalog.Has(lang) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown language " + lang})
		return
	}
	c.JSON(http.StatusOK, s.catalog.Table(lang))
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("fixture listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("fixture shutdown: %w", err)
		}
		s.logger.Info("fixture stopped")
		return nil
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("fixture listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Start listens on addr and serves in the background. It returns the base
// URL of the page and a stop function, which is how the run command points a
// suite at the fixture.
func (s *Server) Start(ctx context.Context, addr string) (string, func() error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("fixture listen: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	stop := func() error {
		cancel()
		return <-done
	}
	return "http://" + ln.Addr().String() + "/", stop, nil
}

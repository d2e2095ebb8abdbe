package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
)

// secretNames are suite variable names treated as credentials.
var secretNames = []string{"secret", "password", "passwd", "pin", "token", "account"}

// SecretValidator looks for credentials kept in the config file, which
// tends to be committed next to the suites.
type SecretValidator struct {
	config   *Config
	inFile   func(key string) bool
	errors   []string
	warnings []string
}

// NewSecretValidator creates a validator. inFile reports whether a key
// was read from the config file; nil means nothing was.
func NewSecretValidator(cfg *Config, inFile func(key string) bool) *SecretValidator {
	if inFile == nil {
		inFile = func(string) bool { return false }
	}
	return &SecretValidator{
		config:   cfg,
		inFile:   inFile,
		errors:   []string{},
		warnings: []string{},
	}
}

// Validate runs every check. Problems are warnings unless
// UIPROBE_STRICT_SECRETS is true, in which case they fail the load.
func (v *SecretValidator) Validate() error {
	strict, _ := strconv.ParseBool(os.Getenv(EnvPrefix + "_STRICT_SECRETS"))

	v.validateVars(strict)
	v.validateRedisPassword(strict)
	v.validateFixtureAddr()

	if len(v.errors) > 0 {
		return fmt.Errorf("secret validation failed:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

// Warnings returns the problems that did not fail validation.
func (v *SecretValidator) Warnings() []string {
	return v.warnings
}

func (v *SecretValidator) validateVars(strict bool) {
	names := make([]string, 0, len(v.config.Run.Vars))
	for name := range v.config.Run.Vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !looksSecret(name) || !v.inFile("run.vars."+name) {
			continue
		}
		v.addError(fmt.Sprintf("run.vars.%s is stored in %s, set %s%s instead",
			name, v.config.File, VarEnvPrefix, strings.ToUpper(name)), strict)
	}
}

func (v *SecretValidator) validateRedisPassword(strict bool) {
	r := v.config.Report.Redis
	if !r.Enabled || r.Password == "" || !v.inFile("report.redis.password") {
		return
	}
	v.addError(fmt.Sprintf("report.redis.password is stored in %s, set %s_REPORT_REDIS_PASSWORD instead",
		v.config.File, EnvPrefix), strict)
}

// The fixture accepts fixed credentials, so it should stay on loopback.
func (v *SecretValidator) validateFixtureAddr() {
	host, _, err := net.SplitHostPort(v.config.Fixture.Addr)
	if err != nil {
		return
	}
	if host == "localhost" {
		return
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return
	}
	v.addWarning(fmt.Sprintf("fixture.addr %s is not a loopback address", v.config.Fixture.Addr))
}

func looksSecret(name string) bool {
	name = strings.ToLower(name)
	for _, s := range secretNames {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

func (v *SecretValidator) addError(message string, strict bool) {
	if strict {
		v.errors = append(v.errors, "   "+message)
	} else {
		v.warnings = append(v.warnings, message)
	}
}

func (v *SecretValidator) addWarning(message string) {
	v.warnings = append(v.warnings, message)
}

// ValidateSecrets runs a SecretValidator over cfg and appends its warnings to
// cfg.Warnings.
func ValidateSecrets(cfg *Config, inFile func(key string) bool) error {
	validator := NewSecretValidator(cfg, inFile)
	if err := validator.Validate(); err != nil {
		return err
	}
	cfg.Warnings = append(cfg.Warnings, validator.Warnings()...)
	return nil
}

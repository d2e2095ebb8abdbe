package scenario

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// RandomCharset is the alphabet of ${random:N}.
const RandomCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxRandom bounds ${random:N} so a typo cannot allocate gigabytes.
const maxRandom = 4096

var placeholder = regexp.MustCompile(`\$\{([^{}]+)\}`)

// RandomString returns n characters drawn from RandomCharset.
func RandomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = RandomCharset[rand.Intn(len(RandomCharset))]
	}
	return string(b)
}

// Env holds the variables of one scenario execution and expands ${...}
// placeholders in step values:
//
//	${random:N}  N random alphanumeric characters
//	${name}      a suite, override or saved variable
//	${name:N}    the first N characters of that variable
//	${msg:key}   a suite message
//	${t:key}     a translation in the step language
type Env struct {
	suite *Suite
	vars  map[string]string
	// Random generates ${random:N}; tests replace it for determinism.
	Random func(n int) string
}

// NewEnv starts a scenario environment from the suite variables and the
// run overrides. Neither map is modified.
func NewEnv(s *Suite, overrides map[string]string) *Env {
	vars := make(map[string]string, len(s.Vars)+len(overrides))
	for k, v := range s.Vars {
		vars[k] = v
	}
	for k, v := range overrides {
		vars[k] = v
	}
	return &Env{suite: s, vars: vars, Random: RandomString}
}

// Set stores a variable for later steps of the same scenario.
func (e *Env) Set(name, value string) {
	e.vars[name] = value
}

// Var returns a variable.
func (e *Env) Var(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Expand replaces every placeholder in s. lang selects the table for ${t:..};
// empty means the suite default language.
func (e *Env) Expand(s, lang string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if firstErr != nil {
			return m
		}
		v, err := e.resolve(placeholder.FindStringSubmatch(m)[1], lang)
		if err != nil {
			firstErr = err
			return m
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (e *Env) resolve(expr, lang string) (string, error) {
	name, arg, hasArg := strings.Cut(expr, ":")
	name = strings.TrimSpace(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "random":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 || n > maxRandom {
			return "", fmt.Errorf("${%s}: length must be between 0 and %d", expr, maxRandom)
		}
		return e.Random(n), nil
	case "msg":
		v, ok := e.suite.Messages[arg]
		if !ok {
			return "", fmt.Errorf("${%s}: unknown message %q", expr, arg)
		}
		return v, nil
	case "t":
		if lang == "" {
			lang = e.suite.DefaultLanguage
		}
		v, ok := e.suite.Catalog().Lookup(lang, arg)
		if !ok {
			return "", fmt.Errorf("${%s}: no %q translation for %q", expr, lang, arg)
		}
		return v, nil
	}

	v, ok := e.vars[name]
	if !ok {
		return "", fmt.Errorf("${%s}: undefined variable %q", expr, name)
	}
	if !hasArg {
		return v, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return "", fmt.Errorf("${%s}: prefix length must be a non-negative number", expr)
	}
	r := []rune(v)
	if n < len(r) {
		r = r[:n]
	}
	return string(r), nil
}

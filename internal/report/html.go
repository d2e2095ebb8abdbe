package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders r as a GitHub flavoured Markdown document, suitable for
// CI job summaries.
func Markdown(r *Report) string {
	var b strings.Builder
	s := r.Summary()

	fmt.Fprintf(&b, "# %s\n\n", mdEscape(r.Suite()))
	fmt.Fprintf(&b, "**%s**: %d passed, %d failed, %d errors, %d skipped in %s\n\n",
		verdict(r), s.Pass, s.Fail, s.Error, s.Skip, r.Duration().Round(time.Millisecond))
	if r.BaseURL() != "" {
		fmt.Fprintf(&b, "Base URL: %s  \n", mdCode(r.BaseURL()))
	}
	fmt.Fprintf(&b, "Run: %s\n\n", mdCode(r.RunID()))
	if r.Aborted() != "" {
		fmt.Fprintf(&b, "> Run aborted: %s\n\n", mdEscape(r.Aborted()))
	}

	b.WriteString("| Outcome | Group | Scenario | Duration | Message |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, res := range r.Results() {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			res.Outcome,
			mdEscape(res.Group),
			mdEscape(res.Scenario),
			res.Duration.Round(time.Millisecond),
			mdEscape(res.Message))
	}

	var failed []Result
	for _, res := range r.Results() {
		if res.Outcome.Failed() {
			failed = append(failed, res)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n## Failures\n")
		for _, res := range failed {
			fmt.Fprintf(&b, "\n### %s %s\n\n", res.Outcome, mdEscape(res.ID()))
			if res.Step != "" {
				fmt.Fprintf(&b, "Step: %s\n\n", mdCode(res.Step))
			}
			if res.Expected != "" || res.Actual != "" {
				b.WriteString(mdBlock(fmt.Sprintf("expected: %q\nactual:   %q", res.Expected, res.Actual)))
			} else if res.Message != "" {
				b.WriteString(mdBlock(res.Message))
			}
			if res.TeardownError != "" {
				fmt.Fprintf(&b, "\nTeardown: %s\n", mdEscape(res.TeardownError))
			}
		}
	}
	return b.String()
}

var mdReplacer = strings.NewReplacer(
	"|", `\|`,
	"\n", " ",
	"<", "&lt;",
	">", "&gt;",
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
)

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}

// longestRun returns the length of the longest run of backticks in s.
func longestRun(s string) int {
	longest, run := 0, 0
	for _, c := range s {
		if c != '`' {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	return longest
}

// mdCode wraps s in a code span whose fence is longer than any backtick run
// inside it.
func mdCode(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	fence := strings.Repeat("`", longestRun(s)+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}

// mdBlock is mdCode for fenced code blocks.
func mdBlock(s string) string {
	fence := strings.Repeat("`", max(3, longestRun(s)+1))
	return fence + "\n" + s + "\n" + fence + "\n"
}

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
	),
)

// reportPolicy allows what the Markdown renderer produces for a report
// and nothing else.
func reportPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("h1", "h2", "h3", "p", "br", "strong", "em", "code", "pre", "blockquote")
	p.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	p.AllowAttrs("style").Matching(bluemonday.Paragraph).OnElements("th", "td")
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")
	return p
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
</style>
</head>
<body class="{{.Class}}">
{{.Body}}
</body>
</html>
`))

// WriteHTML renders the Markdown report to sanitized HTML.
func WriteHTML(w io.Writer, r *Report) error {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(r)), &buf); err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	body := reportPolicy().SanitizeBytes(buf.Bytes())

	class := "passed"
	if r.Failed() {
		class = "failed"
	}
	return page.Execute(w, struct {
		Title string
		Class string
		Body  template.HTML
	}{
		Title: r.Suite(),
		Class: class,
		Body:  template.HTML(body),
	})
}

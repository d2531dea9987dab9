package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

type redactionRule struct {
	re          *regexp.Regexp
	replacement string
}

// Redactor masks credentials before log lines reach a sink.
type Redactor struct {
	rules []redactionRule
}

// NewRedactor creates a redactor with the built-in rules.
func NewRedactor() *Redactor {
	r := &Redactor{}
	for _, rule := range []struct{ pattern, replacement string }{
		// Google API keys, also inside realtime URLs
		{`AIza[0-9A-Za-z_-]{35}`, redacted},
		{`([?&]key=)[^&\s"]+`, "${1}" + redacted},
		// Together and other hex keys
		{`\b[a-f0-9]{64}\b`, redacted},
		// OpenAI-style keys
		{`sk-[a-zA-Z0-9_-]{20,}`, redacted},
		{`Bearer\s+[a-zA-Z0-9._-]+`, redacted},
		// Gateway shared secret header
		{`(X-Daisy-Secret["\s:=]+)[^\s"]+`, "${1}" + redacted},
		// Key/value assignments
		{`(?i)(password|passwd|pwd|secret|api_key|apikey)(["\s:=]+)[^\s",}]+`, "${1}${2}" + redacted},
		{`(?i)(token)(["\s:=]+)[a-zA-Z0-9._-]{20,}`, "${1}${2}" + redacted},
	} {
		r.rules = append(r.rules, redactionRule{re: regexp.MustCompile(rule.pattern), replacement: rule.replacement})
	}
	return r
}

// AddPattern masks every match of pattern entirely.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{re: re, replacement: redacted})
	return nil
}

// Redact applies every rule to s.
func (r *Redactor) Redact(s string) string {
	for _, rule := range r.rules {
		s = rule.re.ReplaceAllString(s, rule.replacement)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers never see a short write
// caused by redaction changing the length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

package telemetry

import (
	"io"
	"regexp"
)

var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)dapi[a-f0-9]{32}`), "dapi****"},
	{regexp.MustCompile(`(?i)(token[:\s=]+)['"]?[a-zA-Z0-9_-]{20,}['"]?`), "${1}****"},
	{regexp.MustCompile(`(?i)(Bearer\s+)[a-zA-Z0-9_.-]+`), "${1}****"},
	{regexp.MustCompile(`(?i)(password[:\s=]+)['"]?[^\s'"]+['"]?`), "${1}****"},
	{regexp.MustCompile(`(?i)(secret[:\s=]+)['"]?[^\s'"]+['"]?`), "${1}****"},
}

// MaskSecrets replaces access tokens, bearer credentials, passwords and
// secrets in s with a fixed mask.
func MaskSecrets(s string) string {
	for _, p := range secretPatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}

// maskingWriter masks secrets in every log line before it reaches out.
type maskingWriter struct {
	out io.Writer
}

func (w maskingWriter) Write(p []byte) (int, error) {
	masked := MaskSecrets(string(p))
	if _, err := io.WriteString(w.out, masked); err != nil {
		return 0, err
	}
	// zerolog treats a short count as an error.
	return len(p), nil
}

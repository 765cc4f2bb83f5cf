// Package masking redacts secrets from text before it reaches structured
// logs or error messages. Crypto-news article text and LLM payloads can
// incidentally contain API keys or tokens pasted into quotes or code
// blocks; this package strips them using the same ordered,
// compiled-regex-pattern approach the rest of this codebase uses for
// pattern classification.
package masking

import "regexp"

// pattern pairs a compiled regex with its replacement text.
type pattern struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

var builtinPatterns = []pattern{
	{
		name:        "anthropic_api_key",
		re:          regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
		replacement: "***ANTHROPIC_KEY***",
	},
	{
		name:        "openai_api_key",
		re:          regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		replacement: "***OPENAI_KEY***",
	},
	{
		name:        "bearer_token",
		re:          regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{10,}`),
		replacement: "Bearer ***TOKEN***",
	},
	{
		name:        "aws_access_key",
		re:          regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		replacement: "***AWS_KEY***",
	},
	{
		name:        "generic_secret_assignment",
		re:          regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[=:]\s*['"]?[A-Za-z0-9_\-./+]{12,}['"]?`),
		replacement: "$1=***REDACTED***",
	},
}

// Mask returns data with every built-in secret pattern replaced. It never
// errors: on any unexpected input it degrades to returning the input
// unchanged for patterns that fail to match, never panics.
func Mask(data string) string {
	out := data
	for _, p := range builtinPatterns {
		out = p.re.ReplaceAllString(out, p.replacement)
	}
	return out
}

// Fields masks every string value in a map in place and returns it,
// convenient for redacting structured logging fields (e.g. an LLM
// request/response payload) before they are written out.
func Fields(fields map[string]any) map[string]any {
	for k, v := range fields {
		if s, ok := v.(string); ok {
			fields[k] = Mask(s)
		}
	}
	return fields
}

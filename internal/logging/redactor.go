package logging

import (
	"regexp"
	"strings"
	"sync"
)

// Placeholder replaces every redacted secret.
const Placeholder = "***REDACTED***"

// Redactor scrubs secrets from strings. It matches known token shapes by
// pattern and runtime secrets (bot tokens, API keys) by literal value.
// Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor with DefaultPatterns and the given literals.
func NewRedactor(literals ...string) *Redactor {
	r := &Redactor{patterns: DefaultPatterns()}
	for _, l := range literals {
		r.AddLiteral(l)
	}
	return r
}

// AddLiteral registers a secret value. Values shorter than 6 characters are
// ignored so short config words never get blanked out of logs.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 6 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced by Placeholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, Placeholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, Placeholder)
	}
	return s
}

// DefaultPatterns matches the credential shapes sandy can encounter.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Discord bot token: base64 user id, timestamp, HMAC.
		regexp.MustCompile(`[MNO][A-Za-z\d_-]{23,25}\.[A-Za-z\d_-]{6}\.[A-Za-z\d_-]{27,38}`),
		// Authorization headers.
		regexp.MustCompile(`(?i)(Bot|Bearer) [A-Za-z0-9\-._~+/]{20,}=*`),
		// OpenAI-style keys, used by hosted ollama proxies.
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	}
}

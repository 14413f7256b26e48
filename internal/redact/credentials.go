package redact

import (
	"regexp"
	"strings"
)

// CredentialRedacted replaces any credential found in free-form text.
const CredentialRedacted = "[CREDENTIAL_REDACTED]"

// minCredentialLen is shorter than anything a credential rule can match.
const minCredentialLen = 8

type credentialRule struct {
	pattern *regexp.Regexp
	// keepKey keeps the `"name":` part of a JSON pair and redacts only the
	// value, so a scrubbed raw line still shows which header was present.
	keepKey bool
}

// Rules run in order over the same string. Header pairs go first so their
// values are replaced as a unit before the key patterns see them.
var credentialRules = []credentialRule{
	{pattern: regexp.MustCompile(`(?i)"(?:x-api-key|authorization|api-key|proxy-authorization)"\s*:\s*"[^"]*"?`), keepKey: true},
	// sk-ant-..., sk-proj-..., sk-...
	{pattern: regexp.MustCompile(`(?i)\bsk-[a-z0-9_-]{16,}`)},
	// sk_, pk_, rk_, Slack xox*_, GitHub gh*_ and pat_ tokens.
	{pattern: regexp.MustCompile(`(?i)\b(?:sk|pk|rk|xox[baprs]|gh[pousr]|pat)_[a-z0-9_-]{8,}\b`)},
	// JWTs.
	{pattern: regexp.MustCompile(`(?i)eyj[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}`)},
	{pattern: regexp.MustCompile(`(?i)\bBearer\s+[a-z0-9_.\-/+=]{8,}\b`)},
	// password=..., secret=..., token=... in connection strings and env dumps.
	{pattern: regexp.MustCompile(`(?i)\b(?:password|secret|token)\s*=\s*\S{4,}`)},
}

func (r credentialRule) scrub(s string) string {
	if !r.keepKey {
		return r.pattern.ReplaceAllString(s, CredentialRedacted)
	}
	return r.pattern.ReplaceAllStringFunc(s, func(pair string) string {
		colon := strings.IndexByte(pair, ':')
		return pair[:colon+1] + ` "` + CredentialRedacted + `"`
	})
}

// ContainsCredential reports whether s looks like it carries a credential.
func ContainsCredential(s string) bool {
	if len(s) < minCredentialLen {
		return false
	}
	for _, rule := range credentialRules {
		if rule.pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// ScrubCredentials replaces every detected credential in s with
// CredentialRedacted. Strings without credentials are returned as is.
func ScrubCredentials(s string) string {
	if !ContainsCredential(s) {
		return s
	}
	out := s
	for _, rule := range credentialRules {
		out = rule.scrub(out)
	}
	return strings.TrimSpace(out)
}

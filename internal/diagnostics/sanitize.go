package diagnostics

import "strings"

// SecretReplacement stands in for a stripped credential.
const SecretReplacement = "[Hidden Credential]"

var credentialTokens = []string{
	"Token=",
	"DefaultEndpointsProtocol=http",
	"AccountKey=",
	"Data Source=",
	"Server=",
	"Password=",
	"pwd=",
	"&amp;sig=",
	"&sig=",
	"?sig=",
	"SharedAccessKey=",
}

// Sanitize strips connection-string style credentials from s. A credential
// runs from its token to the next quote, angle bracket, or whitespace, or
// to the end of the string.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	for _, token := range credentialTokens {
		start := 0
		for start < len(s) {
			idx := indexFold(s[start:], token)
			if idx < 0 {
				break
			}
			idx += start
			end := strings.IndexAny(s[idx:], "\"'<> \t\r\n")
			if end < 0 {
				s = s[:idx] + SecretReplacement
			} else {
				s = s[:idx] + SecretReplacement + s[idx+end:]
			}
			start = idx + len(SecretReplacement)
		}
	}
	return s
}

// indexFold finds the ASCII token in s ignoring case. Offsets are into s
// itself, so arbitrary bytes before the token cannot shift the match.
func indexFold(s, token string) int {
	for i := 0; i+len(token) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(token)], token) {
			return i
		}
	}
	return -1
}

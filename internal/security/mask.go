package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns match a credential name followed by its value, in query
// strings (apikey=XYZ) and in key: value text.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|api[_-]?secret|secret[_-]?key|access[_-]?token|auth[_-]?token|token|password)=([^&\s"']+)`),
	regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|api[_-]?secret|secret[_-]?key|access[_-]?token|auth[_-]?token|bearer|password)(:\s*|\s+)["']?([^\s"'&]+)["']?`),
}

// MaskSecrets masks credential values embedded in free text such as request
// URLs inside transport errors.
func MaskSecrets(input string) string {
	result := sensitivePatterns[0].ReplaceAllStringFunc(input, func(match string) string {
		name, value, _ := strings.Cut(match, "=")
		return name + "=" + MaskCredential(value)
	})
	return sensitivePatterns[1].ReplaceAllStringFunc(result, func(match string) string {
		sub := sensitivePatterns[1].FindStringSubmatch(match)
		return sub[1] + sub[2] + MaskCredential(strings.Trim(sub[3], `"'`))
	})
}

// MaskError returns an error whose message has credentials masked. The
// original error stays reachable through errors.Is and errors.As.
func MaskError(err error) error {
	if err == nil {
		return nil
	}
	masked := MaskSecrets(err.Error())
	if masked == err.Error() {
		return err
	}
	return &maskedError{msg: masked, err: err}
}

type maskedError struct {
	msg string
	err error
}

func (e *maskedError) Error() string { return e.msg }
func (e *maskedError) Unwrap() error { return e.err }

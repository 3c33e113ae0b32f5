package logs

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// resolvedSecrets holds values resolved from the keyring or token files so
// they can be masked verbatim wherever they appear.
var resolvedSecrets sync.Map

// RegisterSecret marks a resolved secret value for masking in all loggers.
func RegisterSecret(value string) {
	if len(value) < 4 {
		return
	}
	resolvedSecrets.Store(value, struct{}{})
}

type maskPattern struct {
	regex *regexp.Regexp
	apply func(string) string
}

// Credential shapes the client actually handles: Authorization headers,
// OAuth token JSON, and JWTs.
var maskPatterns = []maskPattern{
	{
		regex: regexp.MustCompile(`\b(Bearer\s+[A-Za-z0-9\-._~+/]+=*)`),
		apply: func(match string) string {
			parts := strings.SplitN(match, " ", 2)
			if len(parts) != 2 || len(parts[1]) <= 6 {
				return "Bearer ****"
			}
			token := parts[1]
			return "Bearer " + token[:4] + "***" + token[len(token)-2:]
		},
	},
	{
		regex: regexp.MustCompile(`"(access_token|refresh_token|client_secret|code_verifier)"\s*:\s*"[^"]*"`),
		apply: func(match string) string {
			idx := strings.Index(match, ":")
			return match[:idx] + `:"****"`
		},
	},
	{
		regex: regexp.MustCompile(`\beyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\b`),
		apply: func(jwt string) string {
			parts := strings.Split(jwt, ".")
			if len(parts) != 3 || len(parts[2]) < 4 {
				return "****"
			}
			return parts[0] + ".***." + parts[2][len(parts[2])-4:]
		},
	},
}

// Masker wraps a zapcore.Core and masks credential material in messages and
// string fields before they are written.
type Masker struct {
	zapcore.Core
}

// NewMasker wraps core with credential masking.
func NewMasker(core zapcore.Core) *Masker {
	return &Masker{Core: core}
}

func maskString(s string) string {
	out := s
	resolvedSecrets.Range(func(key, _ interface{}) bool {
		secret := key.(string)
		if len(secret) >= 8 && strings.Contains(out, secret) {
			out = strings.ReplaceAll(out, secret, maskValue(secret))
		}
		return true
	})
	for _, p := range maskPatterns {
		out = p.regex.ReplaceAllStringFunc(out, p.apply)
	}
	return out
}

func maskValue(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:3] + "***" + value[len(value)-2:]
}

func maskField(field zapcore.Field) zapcore.Field {
	switch field.Type {
	case zapcore.StringType:
		field.String = maskString(field.String)
	case zapcore.ByteStringType:
		if b, ok := field.Interface.([]byte); ok {
			field.Interface = []byte(maskString(string(b)))
		}
	}
	return field
}

// Write masks the entry before delegating to the wrapped core.
func (m *Masker) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = maskString(entry.Message)
	masked := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		masked[i] = maskField(f)
	}
	return m.Core.Write(entry, masked)
}

// With creates a masking child core.
func (m *Masker) With(fields []zapcore.Field) zapcore.Core {
	masked := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		masked[i] = maskField(f)
	}
	return &Masker{Core: m.Core.With(masked)}
}

// Check delegates to the wrapped core, keeping the masker in the write path.
func (m *Masker) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if m.Enabled(entry.Level) {
		return checked.AddCore(entry, m)
	}
	return checked
}

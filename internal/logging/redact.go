package logging

import (
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const fullMask = "****"

// sensitiveKeyPatterns flag field keys whose string values must be masked.
var sensitiveKeyPatterns = compile(
	`(?i)^login$`,
	`(?i)identifier`,
	`(?i)password`,
	`(?i)passwd`,
	`(?i)secret`,
	`(?i)token`,
	`(?i)credential`,
	`(?i)cookie`,
	`(?i)bearer`,
	`(?i)jwt`,
	`(?i)api_?key`,
	`(?i)private_key`,
	`(?i)access_key`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// IsSensitiveKey reports whether a field or parameter named key may hold a
// credential.
func IsSensitiveKey(key string) bool {
	for _, re := range sensitiveKeyPatterns {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// Mask keeps at most the first two and last two runes of value:
// "" stays "", anything of four runes or less becomes "****".
func Mask(value string) string {
	if value == "" {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= 4 {
		return fullMask
	}
	return string(runes[:2]) + fullMask + string(runes[len(runes)-2:])
}

// Redact wraps core so sensitive fields are masked on With and Write.
func Redact(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

type redactingCore struct {
	zapcore.Core
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !IsSensitiveKey(f.Key) {
			continue
		}
		masked, ok := maskField(f)
		if !ok {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = masked
	}
	if out == nil {
		return fields
	}
	return out
}

func maskField(f zapcore.Field) (zapcore.Field, bool) {
	switch f.Type {
	case zapcore.StringType:
		return zap.String(f.Key, Mask(f.String)), true
	case zapcore.BoolType, zapcore.SkipType,
		zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return f, false
	default:
		// Stringers, byte strings, reflected values: the content is unknown.
		return zap.String(f.Key, fullMask), true
	}
}

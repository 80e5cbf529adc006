package logx

import (
	"encoding/json"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/rs/zerolog"
)

// journalWriter re-sends zerolog JSON events through the native journald
// protocol: the message becomes MESSAGE, the level becomes PRIORITY and every
// other field becomes an upper-case journal field (comp=engine -> COMP=engine).
type journalWriter struct{}

func (w journalWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (journalWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	var ev map[string]any
	if err := json.Unmarshal(p, &ev); err != nil {
		return 0, err
	}
	msg, _ := ev[zerolog.MessageFieldName].(string)
	if err := journal.Send(msg, journalPriority(level), journalVars(ev)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func journalVars(ev map[string]any) map[string]string {
	vars := make(map[string]string, len(ev))
	for k, v := range ev {
		switch k {
		case zerolog.MessageFieldName, zerolog.LevelFieldName, zerolog.TimestampFieldName:
			continue
		}
		name := journalVarName(k)
		if name == "" {
			continue
		}
		if s, ok := v.(string); ok {
			vars[name] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		vars[name] = string(b)
	}
	return vars
}

// journalVarName maps a field key to a valid journal field name: upper-case
// letters, digits and underscores, not starting with an underscore or digit.
func journalVarName(k string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(k) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.TrimLeft(b.String(), "_")
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "F_" + name
	}
	return name
}

func journalPriority(l zerolog.Level) journal.Priority {
	switch l {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return journal.PriDebug
	case zerolog.InfoLevel:
		return journal.PriInfo
	case zerolog.WarnLevel:
		return journal.PriWarning
	case zerolog.ErrorLevel:
		return journal.PriErr
	case zerolog.FatalLevel:
		return journal.PriCrit
	case zerolog.PanicLevel:
		return journal.PriEmerg
	}
	return journal.PriNotice
}

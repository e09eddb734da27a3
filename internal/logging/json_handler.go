package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
)

const (
	jsonTimeLayout = "2006-01-02T15:04:05.000Z07:00"
	redacted       = "[redacted]"
	serviceName    = "nexus"
)

// secretKeys never reach a log line verbatim.
var secretKeys = map[string]struct{}{
	"api_key":       {},
	"api_token":     {},
	"token":         {},
	"authorization": {},
	"password":      {},
	"dsn":           {},
	"database_url":  {},
}

// newJSONHandler writes one object per record, stamped with the service name.
// Secret-bearing keys are masked and credentials embedded in feed or source
// URLs are stripped.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	}
	return slog.NewJSONHandler(w, &opts).WithAttrs([]slog.Attr{slog.String("service", serviceName)})
}

func replaceJSONAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(jsonTimeLayout))
		}
		return attr
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
		return attr
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
		return attr
	}

	key := strings.ToLower(attr.Key)
	if _, ok := secretKeys[key]; ok {
		return slog.String(attr.Key, redacted)
	}
	if (key == "url" || strings.HasSuffix(key, "_url")) && attr.Value.Kind() == slog.KindString {
		attr.Value = slog.StringValue(redactURL(attr.Value.String()))
	}
	return attr
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

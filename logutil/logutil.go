// logutil.go - Logging-Hilfsfunktionen auf Basis von log/slog
//
// Dieses Modul enthaelt:
// - LevelTrace: Log-Level unterhalb von Debug fuer sehr feine Ablaufverfolgung
// - NewLogger: Erstellt einen slog.Logger mit Quellangabe und Level-Umbenennung
// - Trace: Loggt eine Nachricht auf Trace-Level
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

// LevelTrace liegt unterhalb von slog.LevelDebug
const LevelTrace slog.Level = slog.LevelDebug - 4

// NewLogger erstellt einen Logger der auf w schreibt und Eintraege
// unterhalb von level verwirft. Quellpfade werden auf den Dateinamen
// gekuerzt, das Trace-Level wird als "TRACE" ausgegeben.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if level, ok := attr.Value.Any().(slog.Level); ok && level == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// Trace loggt auf Trace-Level ueber den Default-Logger
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

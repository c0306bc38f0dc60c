// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - Var: Liest eine Umgebungsvariable (getrimmt)
// - UintWithDefault: Integer-Getter mit Default-Wert
// - Bool: Boolean-Getter
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var liest eine Umgebungsvariable und entfernt Anfuehrungszeichen und Leerraum
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// UintWithDefault liest einen uint mit Default-Wert
func UintWithDefault(key string, defaultValue uint) uint {
	if s := Var(key); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err != nil {
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
		} else {
			return uint(n)
		}
	}

	return defaultValue
}

// Bool liest einen Bool (Default: false)
func Bool(key string) bool {
	if s := Var(key); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return true
		}
		return b
	}

	return false
}

// EnvVar beschreibt eine Umgebungsvariable fuer Dokumentation und Logging
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"TB_HOST":              {"TB_HOST", Host(), "IP Address for the tensorbatch server (default 127.0.0.1:11477)"},
		"TB_DEBUG":             {"TB_DEBUG", LogLevel(), "Show additional debug information (e.g. TB_DEBUG=1, TB_DEBUG=2 for trace)"},
		"TB_ORIGINS":           {"TB_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"TB_NUM_BATCH_THREADS": {"TB_NUM_BATCH_THREADS", NumBatchThreads(), "Number of batch scheduler worker threads"},
		"TB_MAX_QUEUE":         {"TB_MAX_QUEUE", MaxQueue(), "Maximum number of queued requests"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck, fuer das Startup-Log
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// config.go - Haupt-Konfigurationsfunktionen fuer tensorbatch
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (TB_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (TB_ORIGINS)
// - LogLevel: Gibt Log-Level zurueck (TB_DEBUG)
// - NumBatchThreads: Anzahl der Batch-Worker (TB_NUM_BATCH_THREADS)
// - MaxQueue: Maximale Anzahl gleichzeitig wartender Requests (TB_MAX_QUEUE)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"runtime"
	"strconv"
	"strings"

	"github.com/7blacky7/tensorbatch/logutil"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via TB_HOST
// Default: http://127.0.0.1:11477
func Host() *url.URL {
	defaultPort := "11477"

	s := strings.TrimSpace(Var("TB_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via TB_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("TB_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	// Standard-Origins fuer localhost
	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via TB_DEBUG
// TB_DEBUG=1 aktiviert Debug, TB_DEBUG=2 (oder hoeher) aktiviert Trace
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("TB_DEBUG"); s != "" {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			if i >= 2 {
				level = logutil.LevelTrace
			} else if i == 1 {
				level = slog.LevelDebug
			}
		} else if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		}
	}

	return level
}

// NumBatchThreads gibt die Anzahl der Batch-Worker zurueck
// Konfigurierbar via TB_NUM_BATCH_THREADS
// Default: Anzahl der CPUs, hoechstens 8
func NumBatchThreads() uint {
	return UintWithDefault("TB_NUM_BATCH_THREADS", uint(min(runtime.NumCPU(), 8)))
}

// MaxQueue gibt die maximale Anzahl gleichzeitig wartender Requests zurueck
// Konfigurierbar via TB_MAX_QUEUE
func MaxQueue() uint {
	return UintWithDefault("TB_MAX_QUEUE", 512)
}

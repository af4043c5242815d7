package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"gallery-sync/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Config holds all application configuration
type Config struct {
	LibraryDir  string
	DatabaseDir string
	Port        string
	MetricsPort string

	ScanBatchSize           int
	ScanRemoveMissing       bool
	ProgressPersistInterval time.Duration

	MetricsEnabled  bool
	LogHealthChecks bool

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	libraryDir := getEnv("LIBRARY_DIR", "/library")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", false)
	batchSize := getEnvInt("SCAN_BATCH_SIZE", 50)
	removeMissing := getEnvBool("SCAN_REMOVE_MISSING", true)
	persistIntervalStr := getEnv("PROGRESS_PERSIST_INTERVAL", "1s")

	logging.Info("  LIBRARY_DIR:               %s", libraryDir)
	logging.Info("  DATABASE_DIR:              %s", databaseDir)
	logging.Info("  PORT:                      %s", port)
	logging.Info("  METRICS_PORT:              %s", metricsPort)
	logging.Info("  METRICS_ENABLED:           %v", metricsEnabled)
	logging.Info("  SCAN_BATCH_SIZE:           %d", batchSize)
	logging.Info("  SCAN_REMOVE_MISSING:       %v", removeMissing)
	logging.Info("  PROGRESS_PERSIST_INTERVAL: %s", persistIntervalStr)
	logging.Info("  LOG_LEVEL:                 %s", logging.GetLevel())

	persistInterval, err := time.ParseDuration(persistIntervalStr)
	if err != nil {
		logging.Warn("  Invalid PROGRESS_PERSIST_INTERVAL, using default: 1s")
		persistInterval = time.Second
	}

	if err := validateDir("LIBRARY_DIR", libraryDir, false); err != nil {
		return nil, err
	}
	if err := validateDir("DATABASE_DIR", databaseDir, true); err != nil {
		return nil, err
	}

	config := &Config{
		LibraryDir:              libraryDir,
		DatabaseDir:             databaseDir,
		Port:                    port,
		MetricsPort:             metricsPort,
		MetricsEnabled:          metricsEnabled,
		LogHealthChecks:         logHealthChecks,
		ScanBatchSize:           batchSize,
		ScanRemoveMissing:       removeMissing,
		ProgressPersistInterval: persistInterval,
		DatabasePath:            filepath.Join(databaseDir, "catalog.db"),
	}

	logging.Info("------------------------------------------------------------")
	return config, nil
}

// validateDir checks that a configured directory exists. When writable
// is set, a write probe is performed too.
func validateDir(name, dir string, writable bool) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%s %q is not accessible: %w", name, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %q is not a directory", name, dir)
	}

	if writable {
		probe := filepath.Join(dir, ".perm-test")
		if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
			return fmt.Errorf("%s %q is not writable: %w", name, dir, err)
		}
		_ = os.Remove(probe) // Explicitly ignore cleanup error
	}
	return nil
}

func printBanner() {
	logging.Info("============================================================")
	logging.Info("  gallery-sync %s (%s)", Version, Commit)
	logging.Info("  built %s with %s on %s/%s", BuildTime, GoVersion, runtime.GOOS, runtime.GOARCH)
	logging.Info("============================================================")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// LogHTTPRoutes walks the router and logs every registered route.
func LogHTTPRoutes(router *mux.Router) {
	type routeInfo struct {
		methods string
		path    string
	}
	var routes []routeInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil //nolint:nilerr // subrouters without templates are fine
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		routes = append(routes, routeInfo{methods: strings.Join(methods, ","), path: path})
		return nil
	})
	if err != nil {
		logging.Warn("Failed to enumerate routes: %v", err)
		return
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].path < routes[j].path })

	logging.Info("HTTP ROUTES")
	for _, r := range routes {
		logging.Info("  %-12s %s", r.methods, r.path)
	}
	logging.Info("------------------------------------------------------------")
}

// LogServerStarted logs the final startup line.
func LogServerStarted(port string, elapsed time.Duration) {
	logging.Info("Listening on :%s (startup took %v)", port, elapsed.Round(time.Millisecond))
}

// LogShutdownInitiated logs the beginning of graceful shutdown.
func LogShutdownInitiated(signal string) {
	logging.Info("Received %s, shutting down gracefully...", signal)
}

// LogShutdownStep logs one shutdown step.
func LogShutdownStep(step string) {
	logging.Info("  %s...", step)
}

// LogShutdownComplete logs the end of graceful shutdown.
func LogShutdownComplete() {
	logging.Info("Shutdown complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

package app

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"vending/pkg/storage"
)

// Config captures CLI flags. Every flag falls back to an environment variable, which in turn may
// come from a .env file.
type Config struct {
	showVersion     bool
	domain          string
	port            int
	dbType          string
	dbPath          string
	catalogPath     string
	logLevel        string
	devMode         bool
	monitorSchedule string
	corsOrigins     string
}

// address converts the port into a binding string.
func (c Config) address() string {
	return ":" + strconv.Itoa(c.port)
}

// origins splits the comma separated CORS origin list.
func (c Config) origins() []string {
	var out []string
	for _, origin := range strings.Split(c.corsOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// monitorEnabled reports whether the reserve check should be scheduled.
func (c Config) monitorEnabled() bool {
	s := strings.TrimSpace(c.monitorSchedule)
	return s != "" && s != "off"
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.dbType {
	case storage.TypeMemory, storage.TypeSQLite:
	default:
		return fmt.Errorf("unsupported db-type %q: use %s or %s", c.dbType, storage.TypeMemory, storage.TypeSQLite)
	}
	if c.port < 0 || c.port > 65535 {
		return fmt.Errorf("port %d out of range", c.port)
	}
	return nil
}

// parseFlags uses a dedicated FlagSet so Run can be called from multiple entry points.
func parseFlags(args []string) (Config, error) {
	set := flag.NewFlagSet("vending", flag.ContinueOnError)
	set.SetOutput(os.Stderr)

	var cfg Config
	set.BoolVar(&cfg.showVersion, "version", false, "Show the application version")
	set.StringVar(&cfg.domain, "domain", getEnv("VENDING_DOMAIN", ""), "Serve HTTPS on 80/443 with an ephemeral certificate when a domain is provided.")
	set.IntVar(&cfg.port, "port", getEnvAsInt("PORT", 8765), "Port for running the HTTP server when not using -domain.")
	set.StringVar(&cfg.dbType, "db-type", getEnv("VENDING_DB_TYPE", storage.TypeMemory), "Database driver: memory (JSON snapshot) or sqlite")
	set.StringVar(&cfg.dbPath, "db-path", getEnv("VENDING_DB_PATH", ""), "Snapshot or database file; defaults to the working directory.")
	set.StringVar(&cfg.catalogPath, "catalog", getEnv("VENDING_CATALOG", ""), "YAML file with the initial stock and change reserve.")
	set.StringVar(&cfg.logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	set.BoolVar(&cfg.devMode, "dev", getEnvAsBool("DEV_MODE", false), "Pretty console logs and uncompressed responses.")
	set.StringVar(&cfg.monitorSchedule, "monitor", getEnv("VENDING_MONITOR_SCHEDULE", "@every 1m"), "Cron schedule for the reserve check; \"off\" disables it.")
	set.StringVar(&cfg.corsOrigins, "cors-origin", getEnv("VENDING_CORS_ORIGIN", "http://localhost:5173"), "Comma separated origins allowed to call the API.")

	if err := set.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

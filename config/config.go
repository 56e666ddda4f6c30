package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	RoundDuration  time.Duration
	GracePeriod    time.Duration
	TickHz         int
	GridSize       int
	SpawnChance    float64
	AllowedOrigins []string
	LogLevel       slog.Level
	LogFormat      string // "text" or "json"
}

func Defaults() Config {
	return Config{
		Addr:           ":3000",
		RoundDuration:  2 * time.Minute,
		GracePeriod:    5 * time.Second,
		TickHz:         60,
		GridSize:       100,
		SpawnChance:    0.05,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5000"},
		LogLevel:       slog.LevelInfo,
		LogFormat:      "text",
	}
}

// InitConfig loads .env into the process environment if one exists. Real
// environment variables win over the file.
func InitConfig() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.String("error", err.Error()))
		return
	}
	slog.Info("Successfully loaded environment variables")
}

func GetEnvVariable(v string) (string, error) {
	if v == "" {
		return "", fmt.Errorf("input param empty")
	}
	b := os.Getenv(v)
	if b == "" {
		return "", fmt.Errorf("failed to get variable for %s", v)
	}

	return b, nil
}

// Load reads the environment on top of Defaults. Unset variables keep their
// default; malformed ones are reported.
func Load() (Config, error) {
	c := Defaults()

	if v, err := GetEnvVariable("ADDR"); err == nil {
		c.Addr = v
	}
	if v, err := GetEnvVariable("ROUND_DURATION"); err == nil {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return c, fmt.Errorf("ROUND_DURATION %q: must be a positive duration", v)
		}
		c.RoundDuration = d
	}
	if v, err := GetEnvVariable("GRACE_PERIOD"); err == nil {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return c, fmt.Errorf("GRACE_PERIOD %q: must be a non-negative duration", v)
		}
		c.GracePeriod = d
	}
	if v, err := GetEnvVariable("TICK_HZ"); err == nil {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			return c, fmt.Errorf("TICK_HZ %q: must be in 1..1000", v)
		}
		c.TickHz = n
	}
	if v, err := GetEnvVariable("GRID_SIZE"); err == nil {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 20 {
			return c, fmt.Errorf("GRID_SIZE %q: must be an integer above 20", v)
		}
		c.GridSize = n
	}
	if v, err := GetEnvVariable("SPAWN_CHANCE"); err == nil {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return c, fmt.Errorf("SPAWN_CHANCE %q: must be in [0,1]", v)
		}
		c.SpawnChance = f
	}
	if v, err := GetEnvVariable("ALLOWED_ORIGINS"); err == nil {
		c.AllowedOrigins = splitList(v)
	}
	if v, err := GetEnvVariable("LOG_LEVEL"); err == nil {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return c, fmt.Errorf("LOG_LEVEL %q: %w", v, err)
		}
	}
	if v, err := GetEnvVariable("LOG_FORMAT"); err == nil {
		switch strings.ToLower(v) {
		case "text", "json":
			c.LogFormat = strings.ToLower(v)
		default:
			return c, fmt.Errorf("LOG_FORMAT %q: must be text or json", v)
		}
	}
	return c, nil
}

// TickInterval converts TickHz to the simulation period.
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}

// NewLogger builds the process logger on stderr.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

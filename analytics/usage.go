// Package analytics reports anonymous usage events. Collection is
// opt-out via --disable-metrics; the only identity involved is a random
// id minted on first run and kept in ~/.raiseattention/.env.
package analytics

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/posthog/posthog-go"
)

// Event names reported by the frontends.
const (
	CheckCommand    = "executed_check_command"
	CheckJSONMode   = "executed_check_command_json_mode"
	LSPSession      = "started_lsp_session"
	CacheCommand    = "executed_cache_command"
	InternalFailure = "internal_error"
)

var (
	// PublicKey is injected at build time; an empty key disables
	// reporting entirely.
	PublicKey     string
	enableMetrics bool
)

// Init prepares usage reporting for the process: it records the opt-out
// decision and, when reporting stays enabled, mints the anonymous id on
// first run and loads it. A failure to set up the id disables reporting
// and is returned so the caller can mention it once; it must never
// abort an analysis run.
func Init(disableMetrics bool) error {
	enableMetrics = !disableMetrics
	if !enableMetrics || PublicKey == "" {
		return nil
	}
	if err := loadEnvFile(); err != nil {
		enableMetrics = false
		return err
	}
	return nil
}

func envFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".raiseattention", ".env"), nil
}

// loadEnvFile creates the anonymous id on first run and loads it into
// the environment for ReportEvent.
func loadEnvFile() error {
	envFile, err := envFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(envFile), 0o755); err != nil {
			return err
		}
		if err := godotenv.Write(map[string]string{"uuid": uuid.New().String()}, envFile); err != nil {
			return err
		}
	}
	return godotenv.Load(envFile)
}

// ReportEvent enqueues one usage event; failures are silent because
// analytics must never affect an analysis run.
func ReportEvent(event string) {
	if !enableMetrics || PublicKey == "" {
		return
	}
	client, err := posthog.NewWithConfig(PublicKey, posthog.Config{
		Endpoint: "https://us.i.posthog.com",
	})
	if err != nil {
		return
	}
	defer client.Close()
	_ = client.Enqueue(posthog.Capture{
		DistinctId: os.Getenv("uuid"),
		Event:      event,
	})
}

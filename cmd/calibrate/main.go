package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/Rajchodisetti/guardrail-agent/internal/audit"
	"github.com/Rajchodisetti/guardrail-agent/internal/calibrate"
	"github.com/Rajchodisetti/guardrail-agent/internal/observ"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	auditPath := flag.String("audit", envOr("GUARDRAIL_AUDIT", "logs/guardrail_audit.jsonl"), "path to the guardrail audit log")
	output := flag.String("output", "logs/guardrail_calibration.json", "where to write the calibration report")
	lastHours := flag.Float64("last-hours", 0, "only use the last N hours of the audit log (0 = all)")
	flag.Parse()

	logger := observ.Setup("info", "console", os.Stderr)

	records, err := audit.Load(*auditPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Fatal().Str("path", *auditPath).Msg("audit log not found")
	case errors.Is(err, audit.ErrEmpty):
		logger.Fatal().Str("path", *auditPath).Msg("audit log is empty; need 24h of data to calibrate")
	case err != nil:
		logger.Fatal().Err(err).Msg("load audit log")
	}

	if *lastHours > 0 {
		cutoff := float64(time.Now().Unix()) - *lastHours*3600
		records = audit.Since(records, cutoff)
		if len(records) == 0 {
			logger.Fatal().Float64("last_hours", *lastHours).Msg("audit window empty after --last-hours filter")
		}
	}

	report := calibrate.Summarize(records)
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("encode report")
	}
	if dir := filepath.Dir(*output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Msg("create output dir")
		}
	}
	if err := os.WriteFile(*output, append(body, '\n'), 0o644); err != nil {
		logger.Fatal().Err(err).Msg("write report")
	}
	observ.Log("calibration_written", map[string]any{"records": len(records), "output": *output})
	fmt.Printf("Wrote calibration to %s\n", *output)
}

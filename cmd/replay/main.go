package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Rajchodisetti/guardrail-agent/internal/config"
	"github.com/Rajchodisetti/guardrail-agent/internal/guard"
	"github.com/Rajchodisetti/guardrail-agent/internal/observ"
	"github.com/Rajchodisetti/guardrail-agent/internal/sim"
)

// frame is one recorded control-loop tick.
type frame struct {
	TS       float64        `json:"ts"`
	Snapshot guard.Snapshot `json:"snapshot"`
}

type output struct {
	TS       float64            `json:"ts"`
	Decision guard.Decision     `json:"decision"`
	Steps    []guard.StepResult `json:"steps,omitempty"`
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("GUARDRAIL_CONFIG", "configs/guardrail.yaml"), "guardrail config")
	snapshots := flag.String("snapshots", "fixtures/snapshots.jsonl", "JSONL of {ts, snapshot} frames")
	auditPath := flag.String("audit", "", "audit log path (default: config audit_log_path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := observ.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	fh, err := os.Open(*snapshots)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *snapshots).Msg("open snapshots")
	}
	defer fh.Close()

	clock := sim.NewClock(time.Unix(0, 0).UTC())
	host := sim.NewHost()
	opts := []guard.Option{guard.WithClock(clock), guard.WithLogger(logger)}
	if *auditPath != "" {
		opts = append(opts, guard.WithAuditLog(*auditPath))
	}
	agent := guard.New(cfg, host, opts...)

	enc := json.NewEncoder(os.Stdout)
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var fr frame
		if err := json.Unmarshal([]byte(text), &fr); err != nil {
			logger.Warn().Err(err).Int("line", line).Msg("skipping malformed frame")
			continue
		}
		sec, frac := math.Modf(fr.TS)
		clock.Set(time.Unix(int64(sec), int64(frac*1e9)).UTC())
		host.SetPositions(fr.Snapshot.OpenPositions)

		res := agent.Tick(fr.Snapshot, nil)
		if res.Decision.IsEmpty() && len(guard.Failed(res.Steps)) == 0 {
			continue
		}
		if err := enc.Encode(output{TS: fr.TS, Decision: res.Decision, Steps: res.Steps}); err != nil {
			logger.Fatal().Err(err).Msg("write output")
		}
	}
	if err := sc.Err(); err != nil {
		logger.Fatal().Err(err).Msg("read snapshots")
	}

	st := agent.Status()
	logger.Info().
		Int("frames", line).
		Bool("paused", host.Paused()).
		Bool("skip_entry", host.SkipEntry()).
		Float64("peak_equity", st.SessionPeakEquity).
		Msg("replay finished")
}

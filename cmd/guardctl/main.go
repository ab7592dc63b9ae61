package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/Rajchodisetti/guardrail-agent/internal/audit"
	"github.com/Rajchodisetti/guardrail-agent/internal/config"
	"github.com/Rajchodisetti/guardrail-agent/internal/guard"
	"github.com/Rajchodisetti/guardrail-agent/internal/observ"
	"github.com/Rajchodisetti/guardrail-agent/internal/sim"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: guardctl [-config path] status | tail-audit [N]\n")
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("GUARDRAIL_CONFIG", "configs/guardrail.yaml"), "guardrail config")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := observ.Setup(cfg.Logging.Level, "console", os.Stderr)

	switch flag.Arg(0) {
	case "status":
		agent := guard.New(cfg, sim.NewHost(), guard.WithLogger(logger), guard.WithAuditSink(&audit.Memory{}))
		out, _ := json.MarshalIndent(agent.Status(), "", "  ")
		fmt.Println(string(out))
	case "tail-audit":
		n := 20
		if flag.NArg() > 1 {
			if n, err = strconv.Atoi(flag.Arg(1)); err != nil || n < 0 {
				fmt.Fprintf(os.Stderr, "tail-audit: N must be a non-negative integer\n")
				os.Exit(2)
			}
		}
		if err := tailAudit(cfg.AuditLogPath, n); err != nil {
			logger.Error().Err(err).Str("path", cfg.AuditLogPath).Msg("tail audit")
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

type auditLine struct {
	TS               float64         `json:"ts"`
	Symbol           string          `json:"symbol"`
	UnrealizedPnLPct float64         `json:"unrealized_pnl_pct"`
	Volatility       *float64        `json:"volatility"`
	Decision         json.RawMessage `json:"decision"`
}

func tailAudit(path string, n int) error {
	lines, err := audit.Tail(path, n)
	if err != nil {
		return err
	}
	for _, line := range lines {
		var rec auditLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			fmt.Println(line)
			continue
		}
		out, _ := json.Marshal(rec)
		fmt.Println(string(out))
	}
	return nil
}

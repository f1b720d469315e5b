package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/antrian"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Load configuration from --config, ANTRIAN_* environment variables and
defaults, validate it and print the result.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := antrian.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	data := newTableData("Key", "Value")
	data.addRow("logging.level", cfg.Logging.Level)
	data.addRow("logging.format", cfg.Logging.Format)
	data.addRow("queue.max_processing", fmt.Sprint(cfg.Queue.MaxProcessing))
	data.addRow("queue.limit_per_second", fmt.Sprint(cfg.Queue.LimitPerSecond))
	data.addRow("cache.enabled", fmt.Sprint(cfg.Cache.Enabled))
	data.addRow("cache.durable_path", cfg.Cache.DurablePath)
	data.addRow("cache.max_entries", fmt.Sprint(cfg.Cache.MaxEntries))
	data.addRow("cache.max_age", cfg.Cache.MaxAge.String())
	data.addRow("cache.single_flight", fmt.Sprint(cfg.Cache.SingleFlight))
	data.addRow("transport.timeout", cfg.Transport.Timeout.String())
	data.addRow("transport.max_retries", fmt.Sprint(cfg.Transport.MaxRetries))
	data.addRow("transport.circuit_breaker.enabled", fmt.Sprint(cfg.Transport.CircuitBreaker.Enabled))
	data.addRow("metrics.enabled", fmt.Sprint(cfg.Metrics.Enabled))
	data.addRow("metrics.addr", cfg.Metrics.Addr)

	keys := make([]string, 0, len(cfg.Transport.Headers))
	for k := range cfg.Transport.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data.addRow("transport.headers."+k, cfg.Transport.Headers[k])
	}

	printTable(cmd.OutOrStdout(), data)
	return nil
}

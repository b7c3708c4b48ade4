package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl/cache"
	"github.com/sells-group/xbrl/instance"
	"github.com/sells-group/xbrl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "xbrl",
	Short: "Parse XBRL and Inline XBRL filings",
	Long:  "Resolves a filing's taxonomy closure, extracts facts with contexts and units, and exports xBRL-JSON.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func newParser() (*instance.Parser, error) {
	c, err := cache.New(cfg.Cache.Dir,
		cache.WithDelay(time.Duration(cfg.Cache.DelayMS)*time.Millisecond),
		cache.WithRetries(cfg.Cache.Retries),
		cache.WithBackoffFactor(cfg.Cache.BackoffFactor),
	)
	if err != nil {
		return nil, err
	}
	c.SetHeaders(cfg.Cache.Headers())
	return instance.NewParser(c, instance.Options{})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

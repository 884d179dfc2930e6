package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/markjoshwel/raiseattention/analytics"
	"github.com/markjoshwel/raiseattention/cache"
	"github.com/markjoshwel/raiseattention/config"
	"github.com/markjoshwel/raiseattention/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or maintain the on-disk analysis cache",
}

// openCacheStore loads configuration from the working directory and
// opens the store. A store another process holds the lock on still
// reports its directory.
func openCacheStore() (*cache.Store, config.CacheConfig, *output.Logger, error) {
	logger := output.NewLogger(output.VerbosityDefault)
	wd, err := os.Getwd()
	if err != nil {
		return nil, config.CacheConfig{}, logger, err
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return nil, config.CacheConfig{}, logger, err
	}
	store, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return nil, cfg.Cache, logger, err
	}
	return store, cfg.Cache, logger, nil
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache location, entry counts and disk usage",
	Run: func(_ *cobra.Command, _ []string) {
		analytics.ReportEvent(analytics.CacheCommand)
		store, knobs, logger, err := openCacheStore()
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(2)
		}
		defer store.Close()

		st := store.Status()
		dir := st.Dir
		if dir == "" {
			dir = cache.DirFor(knobs)
		}
		fmt.Printf("Cache directory: %s\n", dir)
		if !st.Persistent {
			fmt.Println("Status: unavailable (disabled, or locked by another process)")
			return
		}
		fmt.Printf("File entries: %d\n", st.FileEntries)
		fmt.Printf("Signature entries: %d\n", st.SigEntries)
		fmt.Printf("Disk usage: %s\n", humanize.Bytes(uint64(st.DiskBytes)))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached entry",
	Run: func(_ *cobra.Command, _ []string) {
		analytics.ReportEvent(analytics.CacheCommand)
		store, _, logger, err := openCacheStore()
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(2)
		}
		defer store.Close()

		if err := store.Clear(); err != nil {
			logger.Errorf("clearing cache: %v", err)
			os.Exit(2)
		}
		fmt.Println("Cache cleared")
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete entries older than the configured TTL",
	Run: func(cmd *cobra.Command, _ []string) {
		analytics.ReportEvent(analytics.CacheCommand)
		store, knobs, logger, err := openCacheStore()
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(2)
		}
		defer store.Close()

		maxAge := time.Duration(knobs.TTLHours) * time.Hour
		removed, err := store.Prune(maxAge)
		if err != nil {
			logger.Errorf("pruning cache: %v", err)
			os.Exit(2)
		}
		fmt.Printf("Pruned %d entries\n", removed)
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

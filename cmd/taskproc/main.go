package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/koheimiya/taskproc/pkg/database"
	"github.com/koheimiya/taskproc/pkg/log"
	"github.com/koheimiya/taskproc/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskproc",
	Short: "Taskproc - persistent content-addressed task-graph cache",
	Long: `Taskproc executes typed task graphs with on-disk memoization keyed by a
canonical fingerprint of each task's identity and inputs.

The CLI inspects and maintains a cache root produced by programs embedding
the taskproc library.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Taskproc version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("cache-root", "", "Cache root directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	// Add subcommands
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(clearCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadConfig merges the optional YAML config file with flag overrides
func loadConfig() (*types.Config, error) {
	cfg := &types.Config{}

	path, _ := rootCmd.PersistentFlags().GetString("config")
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if root, _ := rootCmd.PersistentFlags().GetString("cache-root"); root != "" {
		cfg.CacheRoot = root
	}
	if cfg.CacheRoot == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("no cache root configured and no user cache dir: %w", err)
		}
		cfg.CacheRoot = filepath.Join(dir, "taskproc")
	}
	return cfg, nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <class>",
	Short: "List the cached instances of a task class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.CacheRoot, args[0], 0)
		if err != nil {
			return err
		}
		defer db.Close()

		keys, err := db.IdTable().ListKeys()
		if err != nil {
			return err
		}
		type row struct {
			id  int
			key string
		}
		rows := make([]row, 0, len(keys))
		for _, key := range keys {
			id, err := db.IdTable().Get([]byte(key))
			if err != nil {
				return err
			}
			rows = append(rows, row{id: id, key: key})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

		for _, r := range rows {
			status := "no result"
			if inst, err := db.InstanceByID(r.id); err == nil {
				if ts, err := inst.Timestamp(); err == nil {
					status = ts.Format("2006-01-02 15:04:05")
				}
			}
			fmt.Printf("%6d  %-20s  %s\n", r.id, status, r.key)
		}
		return nil
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps <class> <id>",
	Short: "Print the recorded dependency links of an instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid instance id %q: %w", args[1], err)
		}
		db, err := database.Open(cfg.CacheRoot, args[0], 0)
		if err != nil {
			return err
		}
		defer db.Close()

		inst, err := db.InstanceByID(id)
		if err != nil {
			return err
		}
		deps, err := inst.Deps()
		if err != nil {
			return err
		}
		if len(deps) == 0 {
			fmt.Println("(no dependencies)")
			return nil
		}
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s -> %s\n", name, deps[name])
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <class>",
	Short: "Invalidate a whole class, or one instance with --id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.CacheRoot, args[0], 0)
		if err != nil {
			return err
		}
		defer db.Close()

		logger := log.WithComponent("clear")
		id, _ := cmd.Flags().GetInt("id")
		if id >= 0 {
			inst, err := db.InstanceByID(id)
			if err != nil {
				return err
			}
			if err := inst.Delete(); err != nil {
				return err
			}
			logger.Info().Str("task_class", args[0]).Int("instance_id", id).Msg("Cleared instance")
			return nil
		}
		if err := db.Clear(); err != nil {
			return err
		}
		logger.Info().Str("task_class", args[0]).Msg("Cleared class")
		return nil
	},
}

func init() {
	clearCmd.Flags().Int("id", -1, "Instance id to clear (default: whole class)")
}

package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/synjan/qascan/pkg/models"
)

func NewConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Manage QAScan configuration",
		Long: `Manage QAScan configuration files: initialize defaults, view current
settings, and read or write individual values.`,
	}

	cmd.AddCommand(newConfigureInitCommand())
	cmd.AddCommand(newConfigureShowCommand())
	cmd.AddCommand(newConfigureSetCommand())
	cmd.AddCommand(newConfigureGetCommand())
	return cmd
}

func newConfigureInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a configuration file with defaults",
		Long:  `Write a configuration file with default values to $HOME/.qascan/config.yaml.`,
		RunE:  runConfigureInit,
	}
}

func newConfigureShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  `Show the effective configuration after defaults, file, env, and flags.`,
		RunE:  runConfigureShow,
	}
}

func newConfigureSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the config file. Supports dotted keys
(e.g. "cache.ttl") and basic type parsing:
- booleans: true/false
- integers/floats: 10, 3.14
- durations (for keys containing timeout|interval|retention|delay|ttl): "30m", "10s"`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigureSet,
	}
}

func newConfigureGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long:  `Get the effective value of a configuration key.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigureGet,
	}
}

func configFilePath() (string, error) {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		return cfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".qascan", "config.yaml"), nil
}

func runConfigureInit(cmd *cobra.Command, args []string) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configFile); err == nil {
		logrus.Warnf("Configuration file already exists: %s", configFile)
		ok, ierr := confirmOverwrite()
		if ierr != nil {
			return ierr
		}
		if !ok {
			logrus.Info("Configuration initialization cancelled")
			return nil
		}
	}

	if err := models.DefaultConfig().Save(configFile); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	logrus.Infof("Configuration initialized: %s", configFile)
	logrus.Info("Edit this file to customize defaults. Run `qascan configure show` to view.")
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	fmt.Println("Current configuration:")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "GLOBAL:\t")
	fmt.Fprintf(w, "  Log Level:\t%s\n", cfg.Global.LogLevel)
	fmt.Fprintf(w, "  Log Format:\t%s\n", cfg.Global.LogFormat)
	fmt.Fprintf(w, "  Data Directory:\t%s\n", cfg.Global.DataDir)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SERVER:\t")
	fmt.Fprintf(w, "  Listen:\t%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(w, "  Metrics Enabled:\t%t\n", cfg.Server.MetricsEnabled)
	fmt.Fprintf(w, "  Session Secret:\t%s\n", redact(cfg.Server.SessionSecret))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SCANNER:\t")
	fmt.Fprintf(w, "  Max Concurrent Scans:\t%d\n", cfg.Scanner.MaxConcurrentScans)
	fmt.Fprintf(w, "  Default Model:\t%s\n", cfg.Scanner.DefaultModel)
	fmt.Fprintf(w, "  Issue Sample Size:\t%d\n", cfg.Scanner.IssueSampleSize)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "GITHUB:\t")
	fmt.Fprintf(w, "  Base URL:\t%s\n", cfg.GitHub.BaseURL)
	fmt.Fprintf(w, "  Rate Limit:\t%.0f req/s (burst %d)\n", cfg.GitHub.RateLimit, cfg.GitHub.Burst)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "AI:\t")
	fmt.Fprintf(w, "  Base URL:\t%s\n", cfg.AI.BaseURL)
	fmt.Fprintf(w, "  API Key:\t%s\n", redact(cfg.AI.APIKey))
	fmt.Fprintf(w, "  Default Model:\t%s\n", cfg.AI.DefaultModel)
	fmt.Fprintf(w, "  Max Passes:\t%d\n", cfg.AI.MaxPasses)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CACHE:\t")
	fmt.Fprintf(w, "  Enabled:\t%t\n", cfg.Cache.Enabled)
	fmt.Fprintf(w, "  TTL:\t%s\n", cfg.Cache.TTL)
	fmt.Fprintf(w, "  Max Entries:\t%d\n", cfg.Cache.MaxEntries)
	fmt.Fprintf(w, "  Stale Retention:\t%s\n", cfg.Cache.StaleRetention)
	fmt.Fprintln(w)

	_ = w.Flush()
	return nil
}

func runConfigureSet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	rawVal := args[1]

	configFile, err := configFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := map[string]interface{}{}
	if b, rerr := os.ReadFile(configFile); rerr == nil {
		if uerr := yaml.Unmarshal(b, &cfg); uerr != nil {
			return fmt.Errorf("failed to parse YAML: %w", uerr)
		}
	}

	val := parseValueForKey(key, rawVal)
	setNested(cfg, strings.Split(key, "."), val)

	if err := writeYAMLFile(configFile, cfg); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	logrus.Infof("Set %s = %v in %s", key, val, configFile)
	return nil
}

func runConfigureGet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])

	val := viper.Get(key)
	if val == nil {
		fmt.Printf("%s = <nil>\n", key)
		return nil
	}
	fmt.Printf("%s = %v\n", key, val)
	return nil
}

func writeYAMLFile(path string, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func setNested(dst map[string]interface{}, keys []string, val interface{}) {
	if len(keys) == 0 {
		return
	}
	if len(keys) == 1 {
		dst[keys[0]] = val
		return
	}
	k := keys[0]
	child, ok := dst[k].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
	}
	setNested(child, keys[1:], val)
	dst[k] = child
}

func parseValueForKey(key, s string) interface{} {
	trim := strings.TrimSpace(s)

	if containsAny(strings.ToLower(key), []string{"timeout", "interval", "retention", "delay", "ttl"}) {
		if d, err := time.ParseDuration(trim); err == nil {
			return d.String()
		}
	}

	if b, err := strconv.ParseBool(trim); err == nil {
		return b
	}

	if i, err := strconv.Atoi(trim); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(trim, 64); err == nil {
		return f
	}

	return trim
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func redact(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	return "********"
}

func confirmOverwrite() (bool, error) {
	fmt.Print("Configuration file already exists. Overwrite? (y/N): ")
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	resp = strings.TrimSpace(resp)
	return resp == "y" || resp == "Y", nil
}

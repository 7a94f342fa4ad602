// Package cli provides the command-line interface for Pyromaniac
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pyromaniac/pyromaniac/pkg/config"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the settings that exist before any configuration is read
type Config struct {
	ConfigFile string
	Version    string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{Version: "dev"}
}

// CLI holds the command tree and its I/O. Each instance has its own viper
// store, so tests can run commands side by side.
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	console  *logger.ConsoleLogger
	input    io.Reader
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	return NewCLIWithIO(cfg, os.Stdin, os.Stdout, os.Stderr)
}

// NewCLIWithIO creates a CLI with custom input and output (for testing)
func NewCLIWithIO(cfg *Config, input io.Reader, output, errorOut io.Writer) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &CLI{
		config:   cfg,
		viper:    viper.New(),
		input:    input,
		output:   output,
		errorOut: errorOut,
	}
	c.console = logger.NewConsoleLogger(output, errorOut)
	config.SetDefaults(c.viper)

	c.setupCommands()
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "pyromaniac",
		Short: "Burn one reference image onto many USB drives at once",
		Long: `🔥 Pyromaniac - USB mass-imaging station

Plug drives into the mapped ports, press B, and every drive is wiped,
partitioned and imaged from the same reference set in parallel.`,

		PersistentPreRunE: c.initializeConfig,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	c.rootCmd.SetIn(c.input)
	c.rootCmd.SetOut(c.output)
	c.rootCmd.SetErr(c.errorOut)

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("🔥 Pyromaniac v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newConvertCmd())
	c.rootCmd.AddCommand(c.newPortsCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "config file (default: ./pyromaniac.yaml or /etc/pyromaniac/pyromaniac.yaml)")
	flags.StringP("image-dir", "i", "", "directory holding the geometry file and both partition images")
	flags.StringP("usb-map", "m", "", "port map file (yaml, json or toml)")
	flags.StringP("verbosity", "v", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "log file")

	_ = c.viper.BindPFlag("image_dir", flags.Lookup("image-dir"))
	_ = c.viper.BindPFlag("usb_map", flags.Lookup("usb-map"))
	_ = c.viper.BindPFlag("verbosity", flags.Lookup("verbosity"))
	_ = c.viper.BindPFlag("log_file", flags.Lookup("log-file"))
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	v := c.viper

	if c.config.ConfigFile != "" {
		v.SetConfigFile(c.config.ConfigFile)
	} else {
		v.SetConfigName("pyromaniac")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pyromaniac")
	}

	v.SetEnvPrefix("PYROMANIAC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.config.ConfigFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return nil
}

// station decodes and validates the station settings
func (c *CLI) station() (*config.Station, error) {
	st, err := config.FromViper(c.viper)
	if err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "🔥 Pyromaniac v%s\n", c.config.Version)
		},
	}
}

// Execute runs the CLI against the process arguments
func Execute(version string) error {
	cfg := NewConfig()
	cfg.Version = version
	return NewCLI(cfg).Execute(os.Args[1:])
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magefile/mage/mg"
	"github.com/spf13/cobra"

	libbuild "github.com/contriboss/libcuba-build"
)

var (
	// Set by the release build
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	sourceDir string
	distDir   string
	patchDir  string

	// Build flags
	checkTools    bool
	verifySymbols bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(mg.ExitStatus(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "libcuba-build",
	Short: "Build the Cuba library as a shared library",
	Long: `libcuba-build patches the Cuba sources, builds the static archive with the
library's own configure and make, relinks the archive members into a shared
library (libcuba.so on Linux, libcuba.dylib on macOS) and moves the artifacts
into the dist directory. The source tree is restored afterwards.

Without a subcommand it runs the build. CC overrides the compiler and CFLAGS
replaces the computed compiler flags entirely.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the build pipeline",
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Print the path the binding will load the library from",
	Long: `Locate resolves the shared library the way the scripting binding does:
the LIBCUBA environment variable if set, otherwise the dist directory.`,
	Args: cobra.NoArgs,
	RunE: runLocate,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [library]",
	Short: "Check that the shared library exports the integration routines",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVerify,
}

var checkToolsCmd = &cobra.Command{
	Use:   "check-tools",
	Short: "Verify that patch, the compiler, make and ar are on PATH",
	Args:  cobra.NoArgs,
	RunE:  runCheckTools,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("libcuba-build %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&sourceDir, "source-dir", "", "Cuba source tree (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&distDir, "dist-dir", "", "distribution directory (default: dist)")
	rootCmd.PersistentFlags().StringVar(&patchDir, "patch-dir", "", "patch directory (default: patches)")

	for _, cmd := range []*cobra.Command{rootCmd, buildCmd} {
		cmd.Flags().BoolVar(&checkTools, "check-tools", false, "verify the toolchain is on PATH before building")
		cmd.Flags().BoolVar(&verifySymbols, "verify-symbols", false, "check the library exports before relocating it")
	}

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(checkToolsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if verifySymbols {
		cfg.VerifySymbols = true
	}

	pipeline, err := libbuild.NewPipeline(cfg, libbuild.WithLogger(logger))
	if err != nil {
		return err
	}

	if checkTools {
		if err := pipeline.Toolchain().CheckTools(); err != nil {
			return err
		}
	}

	_, err = pipeline.Run(ctx)
	return err
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loc, err := libbuild.Locate(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), loc.Path)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		loc, err := libbuild.Locate(cfg)
		if err != nil {
			return err
		}
		path = loc.Path
	}

	if err := libbuild.VerifyLibrary(path, cfg.RequiredSymbols); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s exports %d required symbols\n", path, len(cfg.RequiredSymbols))
	return nil
}

func runCheckTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	platform, err := libbuild.ResolvePlatform(cfg.GOOS)
	if err != nil {
		return err
	}

	tc := libbuild.ResolveToolchain(cfg, platform)
	if err := tc.CheckTools(); err != nil {
		return err
	}

	for _, req := range tc.RequiredTools() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", req.Name, req.Purpose)
	}
	return nil
}

// loadConfig layers the config file, the environment and the flags.
func loadConfig() (*libbuild.Config, error) {
	cfg := libbuild.DefaultConfig()
	if cfgFile != "" {
		loaded, err := libbuild.LoadConfig(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if sourceDir != "" {
		cfg.SourceDir = sourceDir
	}
	if distDir != "" {
		cfg.DistDir = distDir
	}
	if patchDir != "" {
		cfg.PatchDir = patchDir
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/geoprep/internal/gdalio"
	"github.com/forest-guardian/geoprep/internal/logging"
	"github.com/forest-guardian/geoprep/internal/notification"
	"github.com/forest-guardian/geoprep/internal/properties"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile  string
	logLevel string
	quiet    bool
	noBanner bool

	restoreLogger = func() {}
)

func printBanner() {
	figure1 := figure.NewFigure("geoprep", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	fmt.Println()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "geoprep",
		Short:         "Remote sensing preprocessing toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			if err := properties.Load(files...); err != nil {
				return fmt.Errorf("failed to load environment: %w", err)
			}
			level := logLevel
			if level == "" {
				level = properties.LogLevel()
			}
			logger, err := logging.New(level, properties.LogJSON())
			if err != nil {
				return err
			}
			restoreLogger = logging.Install(logger)
			if !quiet && !noBanner {
				printBanner()
			}
			gdalio.RegisterAll()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			restoreLogger()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "environment file (default ./.env)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default LOG_LEVEL)")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "hide banner and progress bars")
	root.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "hide the banner")

	root.AddCommand(
		newIndicesCmd(),
		newTerrainCmd(),
		newMosaicCmd(),
		newGapFillCmd(),
		newExtractCmd(),
		newRunCmd(),
		newFetchCmd(),
	)
	return root
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			bannercolor.Red("PANIC: %v", r)
			msg := fmt.Sprintf("geoprep panic:\n\n%v\n\nStack trace:\n%s", r, debug.Stack())
			if err := notification.FromEnv().Error(context.Background(), msg); err != nil {
				bannercolor.Red("Failed to send notification: %s", err)
			}
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		bannercolor.Red("Error: %s", err)
		restoreLogger()
		os.Exit(1)
	}
}

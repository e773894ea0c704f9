package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	logjson "github.com/apex/log/handlers/json"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/ecosystem-dashboard/internal/metrics"
	"github.com/forest-guardian/ecosystem-dashboard/internal/notification"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/server"
	"github.com/forest-guardian/ecosystem-dashboard/internal/ui"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func printBanner() {
	figure1 := figure.NewFigure("Ecosistema", "standard", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(properties.ReportSubtitle)
	fmt.Println()
}

func setupLogging(verbose bool) {
	if properties.LogFormat() == "json" {
		log.SetHandler(logjson.New(os.Stderr))
	} else {
		log.SetHandler(cli.New(os.Stderr))
	}
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func loadEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "ecosystem",
		Short:         "Territorial and agro-environmental diagnostic for a polygon of interest",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
			metrics.Register()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newServeCommand(), newMenuCommand(), newAnalyzeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var httpPort, grpcPort int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDependencies(nil)
			if err != nil {
				return err
			}
			srv := server.New(server.Config{
				Runner:       deps.runner,
				VectorSource: deps.vectorSource,
				VectorMode:   deps.vectorMode,
				Layers:       deps.layers,
				Completer:    deps.completer,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, httpPort, grpcPort)
		},
	}
	cmd.Flags().IntVar(&httpPort, "port", properties.HttpPort(), "HTTP port")
	cmd.Flags().IntVar(&grpcPort, "grpc-port", properties.DefaultGrpcPort(), "gRPC health port")
	return cmd
}

func newMenuCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive terminal menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			notifier := notification.FromEnv()
			defer func() {
				if r := recover(); r != nil {
					bannercolor.Red("\nPANIC: %v", r)
					message := fmt.Sprintf("Ecosystem CLI panic:\n\n%v\n\nStack trace:\n%s", r, debug.Stack())
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := notifier.SendError(ctx, message); err != nil {
						bannercolor.Red("Failed to send notification: %s", err.Error())
					}
					os.Exit(1)
				}
			}()

			printBanner()
			deps, err := buildDependencies(ui.TerminalPrompter{})
			if err != nil {
				return err
			}
			deps.connectEarthEngine(cmd.Context())
			app := ui.NewApp(deps.runner, deps.completer, deps.openData)
			app.ShowMenu()
			return nil
		},
	}
}

func newAnalyzeCommand() *cobra.Command {
	var polygonPath, outPath, csvDir string
	var featureIndex int
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the diagnostic for a polygon file and write the HTML report",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDependencies(nil)
			if err != nil {
				return err
			}
			return analyze(cmd.Context(), deps, polygonPath, featureIndex, outPath, csvDir)
		},
	}
	cmd.Flags().StringVar(&polygonPath, "polygon", "", "polygon file (.geojson, .json, .zip shapefile or .csv vertices)")
	cmd.Flags().StringVar(&outPath, "out", "reporte.html", "HTML report path")
	cmd.Flags().StringVar(&csvDir, "csv", "", "folder for the CSV tables (optional)")
	cmd.Flags().IntVar(&featureIndex, "index", -1, "shapefile feature index (default: first polygon)")
	_ = cmd.MarkFlagRequired("polygon")
	return cmd
}

func main() {
	loadEnv()
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		bannercolor.Red("Error: %s", err.Error())
		os.Exit(1)
	}
}

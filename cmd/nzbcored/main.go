package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nzbcore/nzbcore/internal/app"
	"github.com/nzbcore/nzbcore/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "nzbcored",
	Short: "nzbcored is a Usenet download-repair-extract daemon",
	Long:  "A queue-driven NZB downloader that verifies, repairs and unpacks what it fetches.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: load the queue, start downloading and post-processing",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

var addCmd = &cobra.Command{
	Use:   "add [nzb file]",
	Short: "Queue one NZB file without starting the daemon loop",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAdd(args[0])
	},
}

var (
	addCategory string
	addPriority int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml")
	addCmd.Flags().StringVar(&addCategory, "category", "", "category to file this NZB under")
	addCmd.Flags().IntVar(&addPriority, "priority", 0, "queue priority")
	rootCmd.AddCommand(serveCmd, addCmd)
}

func runServe() {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	facade, err := app.New(cfg)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		facade.Logger.Info("nzbcored: signal received, shutting down")
		cancel()
	}()

	if err := facade.Run(ctx); err != nil {
		facade.Logger.Error("nzbcored: %v", err)
	}
	facade.Close()
}

func runAdd(path string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	facade, err := app.New(cfg)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	defer facade.Close()

	if err := facade.Store.Reconcile(facade.Queue); err != nil {
		log.Fatalf("reconcile error: %v", err)
	}

	col, err := facade.AddNZBFile(path, addCategory, addPriority)
	if err != nil {
		log.Fatalf("add failed: %v", err)
	}
	fmt.Printf("queued %s as collection %s\n", col.Name, col.ID)

	if err := facade.Store.Sync(facade.Queue); err != nil {
		log.Fatalf("sync failed: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

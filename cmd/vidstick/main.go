package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/vidstick/vidstick/internal/api"
	"github.com/vidstick/vidstick/internal/config"
	"github.com/vidstick/vidstick/internal/encode"
	"github.com/vidstick/vidstick/internal/jobs"
	"github.com/vidstick/vidstick/internal/logger"
	"github.com/vidstick/vidstick/internal/probe"
	"github.com/vidstick/vidstick/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config/vidstick.yaml)")
	port := flag.Int("port", 8080, "Port to listen on")
	tempDir := flag.String("temp", "", "Override temp directory from config")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("VIDSTICK_CONFIG"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/vidstick.yaml"
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("Warning: could not load config from %s: %v", cfgPath, err)
		cfg = config.Default()
	}

	if envTemp := os.Getenv("VIDSTICK_MEDIA_TEMP"); envTemp != "" {
		cfg.TempDir = envTemp
	}
	if *tempDir != "" {
		cfg.TempDir = *tempDir
	}

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		log.Fatalf("cannot create temp dir %s: %v", cfg.TempDir, err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)

	printBanner(cfg, cfgPath, *port)

	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		log.Fatalf("encoder binary not found on PATH: %s", cfg.FFmpegPath)
	}
	if _, err := exec.LookPath(cfg.FFprobePath); err != nil {
		log.Fatalf("probe binary not found on PATH: %s", cfg.FFprobePath)
	}

	registry := jobs.NewRegistry()
	prober := probe.New(cfg.FFprobePath)
	runner := encode.NewRunner(cfg.FFmpegPath)
	statsSink := stats.New(cfg.StatsFile)
	driver := jobs.NewDriver(registry, prober, runner, statsSink, cfg.TempDir)

	handler := api.NewHandler(registry, driver, cfg)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		server.Close()
	}()

	logger.Info("listening", "port", *port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// printBanner writes the startup banner; color escapes are only emitted
// when stdout is a real terminal, matching the teacher's colorable/isatty
// handling of non-interactive output (log files, piped CI runs).
func printBanner(cfg *config.Config, cfgPath string, port int) {
	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	bold := func(s string) string {
		if !color {
			return s
		}
		return "\x1b[1m" + s + "\x1b[0m"
	}

	fmt.Println(bold("vidstick"))
	fmt.Printf("  config:       %s\n", cfgPath)
	fmt.Printf("  ffmpeg:       %s\n", cfg.FFmpegPath)
	fmt.Printf("  ffprobe:      %s\n", cfg.FFprobePath)
	fmt.Printf("  temp dir:     %s\n", cfg.TempDir)
	fmt.Printf("  stats file:   %s\n", cfg.StatsFile)
	fmt.Printf("  max jobs:     %d\n", cfg.MaxConcurrentJobs)
	fmt.Printf("  port:         %d\n", port)
	fmt.Println()
}

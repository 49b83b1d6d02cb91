package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ArrEssJay/chimera/modem/pipeline"
)

// Global debug flag
var DebugMode bool

// Global start time for process uptime tracking
var StartTime time.Time

func main() {
	// Record start time for uptime tracking
	StartTime = time.Now()

	// Parse command line flags
	configFile := flag.String("config", "", "Path to configuration file (empty = built-in defaults)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Set global debug mode - check environment variable first, then CLI flag
	DebugMode = *debug
	if debugEnv := os.Getenv("DEBUG"); debugEnv != "" {
		DebugMode = debugEnv == "true" || debugEnv == "1" || debugEnv == "yes"
	}
	if DebugMode {
		log.Println("Debug mode enabled")
	}

	// Load configuration
	var config *Config
	var err error
	if *configFile != "" {
		config, err = LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	} else {
		config = DefaultAppConfig()
		log.Println("No config file given, using built-in defaults")
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting chimera modem host...")
	log.Printf("Carrier: %.0f Hz, symbol rate: %.0f baud, sample rate: %.0f Hz",
		config.Protocol.CarrierHz, config.Protocol.SymbolRate, config.Protocol.SampleRate)
	log.Printf("LDPC: dv=%d dc=%d seed=%d, max %d iterations",
		config.LDPC.VariableDegree, config.LDPC.CheckDegree, config.LDPC.Seed, config.LDPC.MaxIterations)
	log.Printf("Channel: %.1f dB SNR in %.0f Hz, %.1f dB link loss",
		config.Channel.SNRdB, config.Channel.NoiseBandwidthHz, config.Channel.LinkLossDB)

	// Build the modem pipeline
	pipeCfg, err := config.PipelineConfig()
	if err != nil {
		log.Fatalf("Failed to build pipeline configuration: %v", err)
	}
	pipe, err := pipeline.New(pipeCfg)
	if err != nil {
		log.Fatalf("Failed to initialize modem pipeline: %v", err)
	}

	// Initialize metrics
	var metrics *PrometheusMetrics
	if config.Prometheus.Enabled {
		metrics = NewPrometheusMetrics()
	}

	// Initialize diagnostics hub
	var hub *DiagnosticsHub
	if config.Diagnostics.Enabled {
		hub = NewDiagnosticsHub(metrics)
	}

	// HTTP surface
	mux := http.NewServeMux()
	if config.Prometheus.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if hub != nil {
		if config.Server.EnableCORS {
			diagUpgrader.CheckOrigin = func(r *http.Request) bool { return true }
		}
		mux.HandleFunc("/ws/diagnostics", hub.HandleWebSocket)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "ok",
			"uptime_seconds": time.Since(StartTime).Seconds(),
		})
	})

	server := &http.Server{
		Addr:    config.Server.Listen,
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	if metrics != nil {
		metrics.StartResourceMonitor(done)
	}

	go func() {
		log.Printf("HTTP server listening on %s", config.Server.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Run the loopback simulation if enabled
	simDone := make(chan error, 1)
	if config.Simulation.Enabled {
		sim, err := NewSimulator(config, pipe, hub, metrics)
		if err != nil {
			log.Fatalf("Failed to initialize simulator: %v", err)
		}
		defer sim.Close()
		go func() {
			simDone <- sim.Run(ctx)
		}()
	}

	// Wait for shutdown signal or simulation completion
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down", sig)
	case err := <-simDone:
		if err != nil && err != context.Canceled {
			log.Printf("Simulation ended with error: %v", err)
		} else {
			log.Printf("Simulation complete")
		}
		if config.Simulation.Repeat || hub == nil {
			break
		}
		// Keep serving diagnostics until interrupted
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down", sig)
	}

	cancel()
	close(done)
	if hub != nil {
		hub.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Shutdown complete")
}

package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override file and environment
	port := flag.String("port", cfg.Server.Port, "HTTP server port")
	grpcAddr := flag.String("grpc", cfg.GRPC.Address, "gRPC listen address")
	noGRPC := flag.Bool("no-grpc", !cfg.GRPC.Enabled, "Disable the gRPC transport")
	provider := flag.String("provider", cfg.Surface.Provider, "Surface provider: software or chrome")
	root := flag.String("root", cfg.Surface.ResourceRoot, "Resource root for local navigation")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.GRPC.Address = *grpcAddr
	cfg.GRPC.Enabled = !*noGRPC
	cfg.Surface.Provider = *provider
	cfg.Surface.ResourceRoot = *root
	cfg.Logging.Development = *dev
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		_ = srv.Close()
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}

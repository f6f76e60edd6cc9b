package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/client"
	surfacegrpc "github.com/GriffinCanCode/AgentOS/surfacehost/internal/grpc"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/logging"
)

func main() {
	wsURL := flag.String("ws", "ws://localhost:8000/ws", "Surface host websocket URL")
	grpcAddr := flag.String("grpc", "", "Surface host gRPC address; overrides -ws when set")
	token := flag.String("token", os.Getenv("SURFACE_TOKEN"), "Bearer token")
	local := flag.Bool("local", false, "Treat the target as a path under the host's resource root")
	width := flag.Int("width", 1024, "Surface width")
	height := flag.Int("height", 768, "Surface height")
	quiet := flag.Duration("quiet", 500*time.Millisecond, "Settle time without paints")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	out := flag.String("out", "snapshot.png", "Output PNG file")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: snapshot [flags] <url-or-path>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := logging.NewDefault()
	if *dev {
		logger = logging.NewDevelopment()
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var transport client.Transport
	if *grpcAddr != "" {
		c, err := surfacegrpc.Dial(ctx, *grpcAddr, surfacegrpc.ClientOptions{Token: *token, Logger: logger.Component("grpc")})
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		transport = c
	} else {
		t, err := client.DialWS(ctx, *wsURL, client.WSOptions{Token: *token, Logger: logger.Component("ws")})
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		transport = t
	}
	defer transport.Close()

	res, err := capture(ctx, transport, request{
		Target:  flag.Arg(0),
		IsLocal: *local,
		Width:   *width,
		Height:  *height,
		Quiet:   *quiet,
	}, logger.Component("snapshot"))
	if err != nil {
		log.Fatalf("Capture failed: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	if err := png.Encode(f, res.Image); err != nil {
		f.Close()
		log.Fatalf("Failed to encode PNG: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}

	logger.Info("Snapshot written",
		zap.String("file", *out),
		zap.String("url", res.URL),
		zap.String("title", res.Title),
		zap.Int("frames", res.Frames),
	)
}

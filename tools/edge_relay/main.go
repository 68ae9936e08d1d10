// Command edge_relay subscribes to the live dashboard feed and prints
// every frame to stdout as a JSON line. Used for wall displays and for
// exercising the reconnect and polling-fallback paths against a running
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harborgrid-cloud/internal/live"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/api/v1/live", "websocket feed endpoint")
	snapshot := flag.String("snapshot", "http://localhost:8080/api/v1/readings/latest", "snapshot endpoint for degraded mode")
	token := flag.String("token", os.Getenv("RELAY_TOKEN"), "bearer token (defaults to RELAY_TOKEN)")
	fallbackAfter := flag.Int("fallback-after", 5, "failed dials before polling fallback")
	pollInterval := flag.Duration("poll-interval", 10*time.Second, "snapshot cadence while degraded")
	flag.Parse()

	logger := log.New(os.Stderr, "edge_relay ", log.LstdFlags)

	client, err := live.NewClient(live.ClientConfig{
		URL:           *url,
		SnapshotURL:   *snapshot,
		Token:         *token,
		FallbackAfter: *fallbackAfter,
		PollInterval:  *pollInterval,
		Logger:        logger,
		Handler: func(frame []byte) {
			fmt.Println(string(frame))
		},
	})
	if err != nil {
		logger.Fatalf("client error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, live.ErrClientClosed) {
		logger.Fatalf("run error: %v", err)
	}
}

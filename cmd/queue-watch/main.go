// queue-watch follows a beready server and prints each estimate as it
// changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-beready/internal/httpc"
	"github.com/teslashibe/go-beready/internal/log"
	"github.com/teslashibe/go-beready/pkg/web"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "beready base URL")
	once := flag.Bool("once", false, "Print the current estimate and exit")
	retry := flag.Duration("retry", 3*time.Second, "Delay before reconnecting")
	flag.Parse()

	log.Init(os.Getenv("LOG_LEVEL"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		var est web.EstimateResponse
		if err := httpc.GetJSON(ctx, httpc.Client, *server+"/api/estimate", &est); err != nil {
			log.Error("fetch estimate", "error", err)
			os.Exit(1)
		}
		printEstimate(est)
		return
	}

	wsURL, err := websocketURL(*server)
	if err != nil {
		log.Error("bad server URL", "error", err)
		os.Exit(2)
	}

	for {
		err := follow(ctx, wsURL, printEstimate)
		if ctx.Err() != nil {
			return
		}
		log.Warn("connection lost, retrying", "error", err, "in", *retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(*retry):
		}
	}
}

// follow prints updates until the connection drops or ctx ends. Frames
// older than the last one printed are skipped.
func follow(ctx context.Context, wsURL string, emit func(web.EstimateResponse)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected", "url", wsURL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var last uint64
	for {
		var est web.EstimateResponse
		if err := conn.ReadJSON(&est); err != nil {
			return err
		}
		if est.Revision != 0 && est.Revision <= last {
			continue
		}
		last = est.Revision
		emit(est)
	}
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/estimate"
	return u.String(), nil
}

func printEstimate(e web.EstimateResponse) {
	fmt.Printf("%s  people=%d  wait=%s  (%s)\n",
		e.UpdatedAt.Local().Format(time.TimeOnly), e.People, e.WaitTime, e.Source)
}

// agentdash-watch follows a dashboard backend from the terminal: it mirrors
// the board over the live channel and prints metrics and activity as they
// arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"agentdash/client"
	"agentdash/domain"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "dashboard backend base URL")
	flag.Parse()

	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiClient := client.NewAPI(*baseURL)
	board := client.NewBoard()
	reconciler := client.NewReconciler(board, apiClient, logger)
	feed := client.NewFeed()

	if err := reconciler.Refresh(ctx); err != nil {
		logger.Warnf("initial task fetch failed: %v", err)
	}
	if activities, err := apiClient.Activities(ctx, client.DefaultFeedLimit); err == nil {
		feed.Replace(activities)
	}

	wsURL := strings.Replace(*baseURL, "http", "ws", 1) + "/ws"
	conn := client.NewConn(wsURL, logger)
	conn.Start(ctx)
	defer conn.Close()

	events := conn.Subscribe()
	defer conn.Unsubscribe(events)

	printBoard(board)
	wasConnected := conn.Connected()
	status := time.NewTicker(time.Second)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-status.C:
			if connected := conn.Connected(); connected != wasConnected {
				wasConnected = connected
				if connected {
					fmt.Println("-- connected --")
				} else {
					fmt.Println("-- disconnected --")
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			handleEvent(ctx, ev, reconciler, board, feed, logger)
		}
	}
}

func handleEvent(ctx context.Context, ev domain.Event, reconciler *client.Reconciler, board *client.Board, feed *client.Feed, logger *log.Logger) {
	switch ev.Type {
	case domain.EventMetricsUpdate:
		var m domain.Metrics
		if err := sonic.Unmarshal(ev.Data, &m); err != nil {
			logger.Warnf("metrics payload: %v", err)
			return
		}
		fmt.Println(client.FormatMetrics(m))
	case domain.EventActivityCreated, domain.EventIngestReceived:
		var a domain.Activity
		if err := sonic.Unmarshal(ev.Data, &a); err != nil {
			logger.Warnf("activity payload: %v", err)
			return
		}
		if ev.Type == domain.EventActivityCreated {
			feed.Add(a)
			fmt.Printf("[%s] %s (%s)\n", a.Type, a.Message, client.RelativeTime(a.CreatedAt, time.Now()))
		}
	default:
		if ev.TouchesTasks() {
			reconciler.Apply(ctx, ev)
			printBoard(board)
		}
	}
}

func printBoard(board *client.Board) {
	for _, status := range domain.Statuses {
		tasks := board.ByStatus(status)
		fmt.Printf("%s (%d):\n", status, len(tasks))
		for _, t := range tasks {
			fmt.Printf("  [%s] %s\n", t.Priority, t.Title)
		}
	}
}

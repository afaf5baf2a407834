// Command client is a terminal watcher for the task board: it logs in,
// pulls the full task list, then follows the push channel and logs every
// change and notification as it arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"example.com/teamboard/internal/client"
	"example.com/teamboard/internal/event"
)

func main() {
	if err := mainInner(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	baseURL := flag.String("url", "http://127.0.0.1:8080", "server base url")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	token := flag.String("token", "", "bearer token (skips login)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	c, err := client.New(*baseURL, *token, logger)
	if err != nil {
		return err
	}
	c.OnNotification(func(n event.NotificationPayload) {
		logger.Info("notification", "kind", n.Kind, "task", n.TaskID, "message", n.Message)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-exit
		logger.Info("signal caught", "sig", sig.String())
		cancel()
	}()

	if *token == "" {
		user, err := c.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		logger.Info("logged in", "user", user.ID, "name", user.Name)
	}

	tasks, err := c.FetchTasks(ctx)
	if err != nil {
		return err
	}
	logger.Info("initial fetch", "tasks", len(tasks))

	return c.Run(ctx)
}

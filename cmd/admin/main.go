package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"SOSBeacon/internal/adminview"
	"SOSBeacon/internal/apiclient"
	"SOSBeacon/internal/models"
	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/util"

	"go.uber.org/zap"
)

const usage = `usage: admin [flags] [command]

commands:
  tail (default)   list alerts, then follow the live relay
  list             print the current alerts and exit
  resolve <id>     mark an alert resolved

flags:
`

func main() {
	_ = util.LoadEnv(util.GetEnvOr("APP_ENV", "development"))

	serverURL := flag.String("server", util.GetEnvOr("ADMIN_SERVER_URL", apiclient.DefaultBaseURL), "alert service base URL")
	email := flag.String("email", util.GetEnv("ADMIN_BOOTSTRAP_EMAIL"), "admin email")
	password := flag.String("password", util.GetEnv("ADMIN_BOOTSTRAP_PASSWORD"), "admin password")
	token := flag.String("token", strings.TrimSpace(util.GetEnv("ADMIN_TOKEN")), "admin bearer token; skips login")
	timeout := flag.Duration("timeout", util.GetDurationEnv("ADMIN_TIMEOUT", 15*time.Second), "per-request timeout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logger.Init(logger.LogConfig{Level: util.GetEnvOr("LOG_LEVEL", "info")}, "development"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(*serverURL, *token, &http.Client{Timeout: *timeout})
	if client.Token() == "" {
		if *email == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "admin: -token or -email and -password are required")
			os.Exit(2)
		}
		lctx, cancel := context.WithTimeout(ctx, *timeout)
		_, err := client.Login(lctx, *email, *password)
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "admin: login:", err)
			os.Exit(1)
		}
	}

	cmd := "tail"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	var err error
	switch cmd {
	case "tail":
		err = tail(ctx, client)
	case "list":
		err = list(ctx, client)
	case "resolve":
		if flag.NArg() != 2 {
			err = errors.New("resolve takes exactly one alert id")
			break
		}
		err = resolve(ctx, client, flag.Arg(1))
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "admin:", err)
		stop()
		logger.Sync()
		os.Exit(1)
	}
}

func printAlert(prefix string, a models.Alert) {
	who := "anonymous"
	if a.UserID != nil {
		who = *a.UserID
	}
	fmt.Printf("%-9s %s  %-8s  %s  (%.5f, %.5f)  by %s  %q\n",
		prefix, a.ID, a.Status, a.CreatedAt.Local().Format(time.DateTime),
		a.Location.Latitude, a.Location.Longitude, who, a.Message)
}

func list(ctx context.Context, client *apiclient.Client) error {
	alerts, err := client.ListAlerts(ctx)
	if err != nil {
		return err
	}
	state := adminview.NewState()
	state.Load(alerts)
	for _, a := range state.Alerts() {
		printAlert("", a)
	}
	fmt.Printf("%d alerts, %d pending\n", len(alerts), state.Pending())
	return nil
}

func resolve(ctx context.Context, client *apiclient.Client, id string) error {
	a, err := client.ResolveAlert(ctx, id)
	if err != nil {
		return err
	}
	printAlert("resolved", *a)
	return nil
}

// tail prints the list once up front, then reloads it on every (re)connect
// so alerts created while the relay was down still show up. With no relay
// the first list stays on screen and `admin list` refreshes by hand.
func tail(ctx context.Context, client *apiclient.Client) error {
	state := adminview.NewState()
	refresh := func() {
		alerts, err := client.ListAlerts(ctx)
		if err != nil {
			logger.Warn("alert list refresh failed", zap.Error(err))
			return
		}
		state.Load(alerts)
		for _, a := range state.Alerts() {
			printAlert("", a)
		}
		fmt.Printf("%d alerts, %d pending\n", len(alerts), state.Pending())
	}
	refresh()

	sub := &adminview.Subscriber{
		URL: client.WebSocketURL,
		OnConnect: func() {
			logger.Info("connected to relay")
			refresh()
		},
		OnDisconnect: func(err error) {
			logger.Warn("relay connection lost", zap.Error(err))
		},
		OnUnavailable: func(err error) {
			logger.Warn("relay unavailable, live updates paused; run `admin list` to refresh", zap.Error(err))
		},
		OnEvent: func(ev adminview.Event) {
			if !state.Apply(ev) {
				return
			}
			label := "new"
			if ev.Type == constants.EventAlertUpdated {
				label = "updated"
			}
			printAlert(label, ev.Alert)
		},
	}
	return sub.Run(ctx)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"SOSBeacon/internal/apiclient"
	"SOSBeacon/internal/models"
	"SOSBeacon/internal/pending"
	"SOSBeacon/internal/syncer"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/scheduler"
	"SOSBeacon/pkg/util"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const usage = `usage: beacon [flags] <command> [args]

commands:
  send -message TEXT -lat N -lon N   submit an alert, queueing it when offline
  drain                              deliver queued alerts once
  watch                              keep draining on reconnect and on schedule
  pending                            list queued alerts
  discard <local-id>                 drop a queued alert

flags:
`

type options struct {
	serverURL     string
	storePath     string
	token         string
	syncInterval  time.Duration
	syncCron      string
	probeInterval time.Duration
	timeout       time.Duration
	logLevel      string
}

func main() {
	_ = util.LoadEnv(util.GetEnvOr("APP_ENV", "development"))

	var opts options
	flag.StringVar(&opts.serverURL, "server", util.GetEnvOr("BEACON_SERVER_URL", apiclient.DefaultBaseURL), "alert service base URL")
	flag.StringVar(&opts.storePath, "store", util.GetEnvOr("BEACON_STORE_PATH", "beacon_pending.db"), "pending store path")
	flag.StringVar(&opts.token, "token", strings.TrimSpace(util.GetEnv("BEACON_TOKEN")), "optional bearer token of the submitting user")
	flag.DurationVar(&opts.syncInterval, "sync-interval", util.GetDurationEnv("BEACON_SYNC_INTERVAL", time.Minute), "scheduled drain interval (watch)")
	flag.StringVar(&opts.syncCron, "sync-cron", util.GetEnv("BEACON_SYNC_CRON"), "extra cron schedule for drains (watch)")
	flag.DurationVar(&opts.probeInterval, "probe-interval", util.GetDurationEnv("BEACON_PROBE_INTERVAL", 15*time.Second), "health probe interval (watch)")
	flag.DurationVar(&opts.timeout, "timeout", util.GetDurationEnv("BEACON_TIMEOUT", 15*time.Second), "per-request timeout")
	flag.StringVar(&opts.logLevel, "log-level", util.GetEnvOr("LOG_LEVEL", "info"), "log level")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logger.Init(logger.LogConfig{Level: opts.logLevel, Filename: util.GetEnv("LOG_FILENAME")}, "development"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "beacon:", err)
		stop()
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, cmd string, args []string) error {
	store, err := pending.Open(opts.storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := apiclient.New(opts.serverURL, opts.token, &http.Client{Timeout: opts.timeout})

	switch cmd {
	case "send":
		return runSend(ctx, opts, store, client, args)
	case "drain":
		return runDrain(ctx, opts, store, client)
	case "watch":
		return runWatch(ctx, opts, store, client)
	case "pending":
		return runPending(ctx, store)
	case "discard":
		return runDiscard(ctx, store, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runSend(ctx context.Context, opts options, store *pending.Store, client *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	message := fs.String("message", "", "what is happening")
	lat := fs.String("lat", "", "latitude")
	lon := fs.String("lon", "", "longitude")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *message == "" && fs.NArg() > 0 {
		*message = strings.Join(fs.Args(), " ")
	}
	latitude, err := cast.ToFloat64E(*lat)
	if err != nil || *lat == "" {
		return fmt.Errorf("%w: -lat must be a number", syncer.ErrValidation)
	}
	longitude, err := cast.ToFloat64E(*lon)
	if err != nil || *lon == "" {
		return fmt.Errorf("%w: -lon must be a number", syncer.ErrValidation)
	}

	beacon := syncer.NewBeacon(store, client, nil, opts.timeout)
	res, err := beacon.Send(ctx, pending.Payload{
		Message:  *message,
		Location: models.Location{Latitude: latitude, Longitude: longitude},
	})
	if err != nil {
		return err
	}
	switch res.Outcome {
	case syncer.OutcomeSent:
		fmt.Printf("sent: alert %s (%s)\n", res.Alert.ID, res.Alert.Status)
	case syncer.OutcomeQueued:
		fmt.Printf("queued: local id %d, will be delivered when the service is reachable\n", res.LocalID)
	}
	return nil
}

func newEngine(opts options, store *pending.Store, client *apiclient.Client, onDrain func(syncer.DrainReport)) (*syncer.Engine, error) {
	return syncer.NewEngine(store, client, syncer.EngineOptions{
		Logger:        logger.L(),
		SubmitTimeout: opts.timeout,
		OnDrain:       onDrain,
	})
}

func runDrain(ctx context.Context, opts options, store *pending.Store, client *apiclient.Client) error {
	engine, err := newEngine(opts, store, client, nil)
	if err != nil {
		return err
	}
	report, err := engine.Drain(ctx)
	if err != nil {
		return err
	}
	for _, d := range report.Delivered {
		fmt.Printf("delivered: local id %d -> alert %s\n", d.LocalID, d.Alert.ID)
	}
	for _, r := range report.Rejected {
		fmt.Printf("rejected: local id %d (%d) %s\n", r.LocalID, r.StatusCode, r.Reason)
	}
	fmt.Printf("attempted %d, delivered %d, rejected %d, remaining %d\n",
		report.Attempted, len(report.Delivered), len(report.Rejected), report.Remaining)
	if report.StoppedBy != nil {
		fmt.Printf("stopped early: %v\n", report.StoppedBy)
	}
	return nil
}

func runWatch(ctx context.Context, opts options, store *pending.Store, client *apiclient.Client) error {
	engine, err := newEngine(opts, store, client, func(r syncer.DrainReport) {
		if r.StoppedBy != nil && r.Remaining > 0 {
			logger.Warn("drain interrupted", zap.Int("remaining", r.Remaining), zap.Error(r.StoppedBy))
		}
	})
	if err != nil {
		return err
	}
	monitor := syncer.NewMonitor(client, opts.probeInterval, engine.Trigger)

	sched := scheduler.NewWithContext(ctx)
	defer sched.Stop()
	if opts.syncInterval > 0 {
		sched.Every(opts.syncInterval, scheduler.FuncJob(func(context.Context) {
			if monitor.Online() {
				engine.Trigger()
			}
		}))
	}
	if opts.syncCron != "" {
		cr := scheduler.NewCron(ctx, time.Local)
		if _, err := cr.AddWithCtx(opts.syncCron, func(context.Context) { engine.Trigger() }); err != nil {
			return fmt.Errorf("sync cron: %w", err)
		}
		cr.Start()
		defer cr.Stop()
	}

	logger.Info("watching pending queue",
		zap.String("server", opts.serverURL),
		zap.Duration("sync_interval", opts.syncInterval),
		zap.Duration("probe_interval", opts.probeInterval))

	errCh := make(chan error, 1)
	go func() { errCh <- monitor.Run(ctx) }()
	err = engine.Run(ctx)
	<-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runPending(ctx context.Context, store *pending.Store) error {
	records, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no queued alerts")
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func runDiscard(ctx context.Context, store *pending.Store, args []string) error {
	if len(args) != 1 {
		return errors.New("discard takes exactly one local id")
	}
	id, err := cast.ToUintE(args[0])
	if err != nil || id == 0 {
		return fmt.Errorf("invalid local id %q", args[0])
	}
	rec, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no queued alert with local id %d", id)
	}
	if err := store.Remove(ctx, rec.LocalID); err != nil {
		return err
	}
	fmt.Printf("discarded local id %d\n", rec.LocalID)
	return nil
}

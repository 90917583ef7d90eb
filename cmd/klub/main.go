package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"klub/pkg/config"
	"klub/pkg/events"
	"klub/pkg/notify"
	"klub/pkg/rest"
)

var version = "dev"

// ErrToasted is returned when a command finished but the core reported a
// failure through an error toast.
var ErrToasted = errors.New("operation failed")

type flags struct {
	configPath string
	logLevel   string
	apiURL     string
	token      string
	community  string
	kafkaAddr  string
	kafkaTopic string
	demo       bool
}

// app holds everything a subcommand needs once the root command has run.
type app struct {
	cfg       *config.Config
	client    *rest.Client
	notifier  *failureCounter
	publisher events.Publisher
	demo      *demoBackend

	closers []func() error
}

func main() {
	a := &app{}
	rootCmd := newRootCmd(a)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if cerr := a.close(); cerr != nil {
		log.Errorf("[main] shutdown: %v", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           "klub",
		Short:         "Klub community feed and payments client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(f)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "klub.toml", "path to the TOML config file")
	pf.StringVar(&f.logLevel, "log", "", "log level: debug, info, warn, error")
	pf.StringVar(&f.apiURL, "api", "", "klub API base URL")
	pf.StringVar(&f.token, "token", "", "klub API bearer token")
	pf.StringVar(&f.community, "community", "", "community ID")
	pf.StringVar(&f.kafkaAddr, "kafka", "", "Kafka broker address for events")
	pf.StringVar(&f.kafkaTopic, "topic", "", "Kafka topic for events")
	pf.BoolVar(&f.demo, "demo", false, "run against an in-memory backend with demo data")

	rootCmd.AddCommand(feedCmd(a))
	rootCmd.AddCommand(workspaceCmd(a))
	rootCmd.AddCommand(payCmd(a))
	return rootCmd
}

func (a *app) setup(f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	// Override config with command line values
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.apiURL != "" {
		cfg.APIURL = f.apiURL
	}
	if f.token != "" {
		cfg.APIToken = f.token
	}
	if f.community != "" {
		cfg.CommunityID = f.community
	}
	if f.kafkaAddr != "" {
		cfg.Kafka.Addr = f.kafkaAddr
	}
	if f.kafkaTopic != "" {
		cfg.Kafka.Topic = f.kafkaTopic
	}

	setLogLevel(cfg.LogLevel)

	if f.demo {
		a.demo, err = startDemo(cfg)
		if err != nil {
			return fmt.Errorf("failed to start demo backend: %w", err)
		}
		a.closers = append(a.closers, a.demo.Close)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Debugf("[main] config: %s", cfg)

	a.cfg = cfg
	a.client, err = rest.New(cfg.APIURL, cfg.APIToken, cfg.RequestTimeout())
	if err != nil {
		return err
	}

	toasts := notify.Multi{notify.Log{}}
	if cfg.KafkaEnabled() {
		if err := events.CreateTopic(cfg.Kafka.Addr, cfg.Kafka.Topic); err != nil {
			log.Warnf("[main] failed to create topic %s: %v", cfg.Kafka.Topic, err)
		}
		k := events.NewKafka(cfg.ServiceName, cfg.Kafka.Addr, cfg.Kafka.Topic, cfg.Kafka.Batch)
		a.publisher = k
		a.closers = append(a.closers, k.Close)
		toasts = append(toasts, events.Toasts{Publisher: k})
		log.Infof("[main] publishing events to %s/%s", cfg.Kafka.Addr, cfg.Kafka.Topic)
	} else {
		log.Debug("[main] Kafka is not configured, events are not published")
	}
	a.notifier = &failureCounter{next: toasts}

	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// result turns error toasts raised during the command into a non-zero exit.
func (a *app) result() error {
	if n := a.notifier.failures(); n > 0 {
		return fmt.Errorf("%w: %d error(s) reported", ErrToasted, n)
	}
	return nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Warnf("[main] unknown log level %q, using info", level)
		log.SetLevel(log.InfoLevel)
	}
}

// failureCounter forwards toasts and counts the error ones.
type failureCounter struct {
	next notify.Notifier

	mu    sync.Mutex
	count int
}

func (c *failureCounter) ShowToast(t notify.Toast) {
	if t.Type == notify.Error {
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
	}
	c.next.ShowToast(t)
}

func (c *failureCounter) failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

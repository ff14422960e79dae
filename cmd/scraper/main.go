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
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/shanehull/bullionscraper/internal/config"
	"github.com/shanehull/bullionscraper/internal/extract"
	"github.com/shanehull/bullionscraper/internal/history"
	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/metrics"
	"github.com/shanehull/bullionscraper/internal/notify"
	"github.com/shanehull/bullionscraper/internal/ocr"
	"github.com/shanehull/bullionscraper/internal/ocr/gemini"
	"github.com/shanehull/bullionscraper/internal/ocr/tesseract"
	"github.com/shanehull/bullionscraper/internal/orchestrator"
	"github.com/shanehull/bullionscraper/internal/publish"
	"github.com/shanehull/bullionscraper/internal/source"
	"github.com/shanehull/bullionscraper/internal/validate"
)

// Exit codes.
const (
	exitAccepted    = 0
	exitRejected    = 1
	exitConfigError = 2
)

var (
	configPath = flag.String("config", "config.yaml", "(-c) Path to the YAML configuration file")
	outputPath = flag.String("output", "", "(-o) Output JSON path (overrides output.path)")
	dryRun     = flag.Bool("dry-run", false, "(-n) Run the full pipeline and print the snapshot without writing it")
	engineName = flag.String("engine", "", "(-e) Recognition engine: tesseract or gemini (overrides recognition.engine)")
	logLevel   = flag.String("log-level", "", "Log level (overrides log.level)")
)

func init() {
	flag.StringVar(configPath, "c", "config.yaml", "(-c) Path to the YAML configuration file (shorthand)")
	flag.StringVar(outputPath, "o", "", "(-o) Output JSON path (shorthand)")
	flag.BoolVar(dryRun, "n", false, "(-n) Dry run (shorthand)")
	flag.StringVar(engineName, "e", "", "(-e) Recognition engine (shorthand)")

	flag.Usage = func() {
		flagSet := flag.CommandLine
		fmt.Printf("Usage of %s:\n", os.Args[0])

		order := []string{
			"config",
			"output",
			"dry-run",
			"engine",
			"log-level",
		}

		for _, name := range order {
			f := flagSet.Lookup(name)
			if f != nil {
				fmt.Printf("  -%s\n", f.Name)
				fmt.Printf("    %s\n", f.Usage)
			}
		}
	}
}

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error loading configuration: %v\n", err)
		return exitConfigError
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error setting up logging: %v\n", err)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.New()
	defer pushMetrics(cfg, recorder, log)

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		log.Error("recognition engine unavailable", logger.Error(err))
		return exitConfigError
	}

	extractor := extract.New(engine, log,
		extract.WithVariantTimeout(cfg.Recognition.VariantTimeout),
		extract.WithWorkers(cfg.Recognition.VariantWorkers),
		extract.WithOutlierRule(cfg.Recognition.OutlierRatio, cfg.Recognition.OutlierFloor),
		extract.WithMetrics(recorder),
	)

	primary, backup := newSources(cfg, log)
	validator := validate.NewSnapshotValidator(validate.Plausibility(cfg.Plausibility), cfg.Validation.CoverageThreshold)

	machine := orchestrator.New(orchestrator.Config{
		Instruments:     cfg.InstrumentKeys(),
		PrimaryAttempts: cfg.Orchestrator.PrimaryAttempts,
		RetryPause:      cfg.Orchestrator.RetryPause,
		Workers:         cfg.Orchestrator.Workers,
		FieldTimeout:    cfg.Orchestrator.FieldTimeout,
	}, primary, backup, extractor, validator, log, orchestrator.WithMetrics(recorder))

	historyManager, err := history.NewManager(cfg.History.Dir, cfg.History.Timezone, log)
	if err != nil {
		log.Warn("run history disabled", logger.Error(err))
	}

	log.Info("starting extraction",
		logger.String("engine", engine.Name()),
		logger.String("primary", primary.Name()),
		logger.Int("instruments", len(cfg.InstrumentKeys())),
		logger.Bool("dry_run", *dryRun))

	out, runErr := machine.Run(ctx)

	failure := runErr
	switch {
	case runErr != nil:
		log.Error("extraction failed", logger.Error(runErr))
	case *dryRun:
		if err := printSnapshot(out); err != nil {
			failure = fmt.Errorf("print snapshot: %w", err)
			log.Error("failed to print snapshot", logger.Error(err))
		}
	default:
		if err := publishSnapshot(ctx, cfg, out, recorder, log); err != nil {
			failure = fmt.Errorf("persist snapshot: %w", err)
			log.Error("failed to persist snapshot", logger.Error(err))
		}
	}

	written := cfg.Output.Path
	if *dryRun {
		written = ""
	}
	notify.ReportOutcome(out, written)

	recorder.RecordRun(failure == nil)
	if historyManager != nil {
		recordHistory(cfg, historyManager, out, failure, log)
	}

	if failure != nil {
		return exitRejected
	}
	return exitAccepted
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return nil, err
	}

	if *outputPath != "" {
		cfg.Output.Path = *outputPath
	}
	if *engineName != "" {
		cfg.Recognition.Engine = *engineName
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}
	return cfg, nil
}

func newEngine(ctx context.Context, cfg *config.Config) (ocr.Engine, error) {
	switch cfg.Recognition.Engine {
	case "gemini":
		return gemini.New(ctx, cfg.Recognition.GeminiAPIKey, cfg.Recognition.GeminiModel)
	default:
		return tesseract.New(cfg.Recognition.Language), nil
	}
}

func newSources(cfg *config.Config, log *logger.Logger) (source.Source, source.Source) {
	client := &http.Client{Timeout: 60 * time.Second}

	p := cfg.Sources.Primary
	primary := source.NewPanels(p.Name, p.URL,
		source.WithHTTPClient(client),
		source.WithUserAgent(p.UserAgent),
		source.WithTimeout(p.Timeout),
		source.WithLogger(log),
	)

	b := cfg.Sources.Backup
	if b.URL == "" {
		return primary, nil
	}
	backup := source.NewTable(b.Name, b.URL, b.SellColumn, b.BuyColumn, []source.Option{
		source.WithHTTPClient(client),
		source.WithUserAgent(b.UserAgent),
		source.WithTimeout(b.Timeout),
		source.WithLogger(log),
	})
	return primary, backup
}

func printSnapshot(out orchestrator.Outcome) error {
	data, err := json.MarshalIndent(out.Snapshot, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func publishSnapshot(ctx context.Context, cfg *config.Config, out orchestrator.Outcome, recorder *metrics.Recorder, log *logger.Logger) error {
	publisher := publish.NewPublisher(publish.NewFileSink(cfg.Output.Path), optionalSinks(ctx, cfg, log), log, recorder)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("failed to close sinks", logger.Error(err))
		}
	}()

	return publisher.Publish(ctx, out.Snapshot)
}

// optionalSinks connects every configured fan-out sink. A sink that cannot connect is skipped.
func optionalSinks(ctx context.Context, cfg *config.Config, log *logger.Logger) []publish.Sink {
	var sinks []publish.Sink

	if cfg.Redis.Enabled() {
		sink, err := publish.NewRedisSink(
			publish.WithRedisAddr(cfg.Redis.Addr),
			publish.WithRedisPassword(cfg.Redis.Password),
			publish.WithRedisDB(cfg.Redis.DB),
			publish.WithRedisPrefix(cfg.Redis.Prefix),
			publish.WithRedisHistory(cfg.Redis.HistoryLen),
			publish.WithRedisTTL(cfg.Redis.TTL),
		)
		if err != nil {
			log.Warn("redis sink disabled", logger.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.Kafka.Enabled() {
		sink, err := publish.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.RequiredAcks, cfg.Kafka.WriteTimeout)
		if err != nil {
			log.Warn("kafka sink disabled", logger.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.ClickHouse.Enabled() {
		sink, err := publish.NewClickHouseSink(ctx, cfg.ClickHouse.DSN(), cfg.ClickHouse.Table)
		if err != nil {
			log.Warn("clickhouse sink disabled", logger.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	return sinks
}

func recordHistory(cfg *config.Config, m *history.Manager, out orchestrator.Outcome, failure error, log *logger.Logger) {
	run := history.Run{
		Time:     time.Now(),
		Accepted: failure == nil,
		Source:   out.Source(),
		Attempts: len(out.Attempts),
	}
	if n := len(out.Attempts); n > 0 {
		run.Coverage = out.Attempts[n-1].Verdict.Coverage
	}
	if failure != nil {
		run.Reason = failure.Error()
	}
	if err := m.RecordRun(run); err != nil {
		log.Warn("failed to save run history", logger.Error(err))
	}

	if run.Accepted || !m.ShouldAlert() {
		return
	}
	if errors.Is(failure, context.Canceled) {
		return
	}

	sender := notify.NewEmailSender(notify.EmailConfig{
		SMTPServer: cfg.Email.SMTPServer,
		SMTPPort:   cfg.Email.SMTPPort,
		SMTPUser:   cfg.Email.SMTPUser,
		SMTPPass:   cfg.Email.SMTPPass,
		FromEmail:  cfg.Email.FromEmail,
		ToEmail:    cfg.Email.ToEmail,
		Enabled:    cfg.Email.Enabled,
	}, log)
	if !sender.Enabled() {
		return
	}

	data := notify.NewNotificationData(out, failure, m.FailuresToday(), time.Now())
	if err := notify.AlertFailure(data, sender, notify.NewHTMLEmailRenderer()); err != nil {
		log.Warn("failure alert not sent", logger.Error(err))
		return
	}
	if err := m.MarkAlerted(); err != nil {
		log.Warn("failed to save alert state", logger.Error(err))
	}
}

func pushMetrics(cfg *config.Config, recorder *metrics.Recorder, log *logger.Logger) {
	if cfg.Metrics.Pushgateway == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := recorder.Push(ctx, cfg.Metrics.Pushgateway, cfg.Metrics.Job); err != nil {
		log.Warn("metrics push failed", logger.Error(err))
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ddbox/cmd/internal/secret"
	"ddbox/config"
	"ddbox/core"
	"ddbox/core/receipts"
	"ddbox/core/types"
	"ddbox/native/blindbox"
	"ddbox/observability"
	"ddbox/observability/logging"
	telemetry "ddbox/observability/otel"
	"ddbox/ops"
	"ddbox/report"
	"ddbox/storage"
)

const (
	defaultConfig  = "./config.toml"
	defaultSaltEnv = "DDBOX_REVEAL_SALT"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "exec":
		err = runExec(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	case "commitment":
		err = runCommitment(os.Args[2:])
	case "receipts":
		err = runReceipts(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: ddbox <command> [flags]

Commands:
  init        create the sale from a YAML manifest
  exec        run one invocation
  query       run a read-only query
  commitment  compute a reveal commitment
  receipts    list recorded invocation receipts
  serve       run the ops server
`)
}

// node bundles everything opened from a config file.
type node struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *storage.LevelDB
	host     *core.Host
	receipts *receipts.Store
	closers  []io.Closer
	shutdown func(context.Context) error
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

func openNode(ctx context.Context, configPath string) (*node, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	n := &node{cfg: cfg}
	var fileSink *logging.FileSink
	if strings.TrimSpace(cfg.Logging.File) != "" {
		fileSink = &logging.FileSink{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Environment,
		Level:   cfg.Logging.Level,
		File:    fileSink,
		Output:  os.Stderr,
	})
	n.logger = logger
	n.closers = append(n.closers, logCloser)

	n.shutdown, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		n.close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	n.db, err = storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		n.close()
		return nil, fmt.Errorf("open state: %w", err)
	}
	n.closers = append(n.closers, closeFunc(func() error { n.db.Close(); return nil }))

	opts := []core.HostOption{core.WithLogger(logger), core.WithMetrics(observability.BlindBox())}
	if strings.TrimSpace(cfg.ReceiptsDSN) != "" {
		gdb, err := receipts.Open(cfg.ReceiptsDSN)
		if err != nil {
			n.close()
			return nil, err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			n.closers = append(n.closers, sqlDB)
		}
		n.receipts = receipts.NewStore(gdb)
		opts = append(opts, core.WithReceipts(n.receipts))
	}
	if cfg.AllowMigrate {
		opts = append(opts, core.WithAllowMigrate())
	}
	n.host, err = core.NewHost(n.db, cfg.ContractAddress, opts...)
	if err != nil {
		n.close()
		return nil, err
	}
	return n, nil
}

func (n *node) close() {
	if n.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = n.shutdown(ctx)
		cancel()
	}
	for i := len(n.closers) - 1; i >= 0; i-- {
		_ = n.closers[i].Close()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the node config file")
	manifestPath := fs.String("manifest", "./manifest.yaml", "Path to the deployment manifest")
	height := fs.Uint64("height", 0, "Block height recorded for the creation")
	blockTime := fs.Uint64("time", uint64(time.Now().Unix()), "Block time recorded for the creation")
	fs.Parse(args)

	manifest, err := config.LoadManifest(*manifestPath)
	if err != nil {
		return err
	}
	params, err := manifest.CreateParams()
	if err != nil {
		return err
	}
	ctx := context.Background()
	n, err := openNode(ctx, *configPath)
	if err != nil {
		return err
	}
	defer n.close()

	inv := core.Invocation{Caller: manifest.Owner, Height: *height, Time: *blockTime}
	inv.Msg = core.ExecuteMsg{Create: &core.CreateMsg{
		Scale:           params.Scale,
		BasePrice:       params.BasePrice,
		FirstPrizeCount: params.FirstPrizeCount,
		LedgerMode:      params.LedgerMode,
		ExternalLedger:  params.ExternalLedger,
	}}
	results := make([]*core.Result, 0, 4)
	res, err := n.host.Execute(ctx, inv)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	results = append(results, res)
	for _, w := range manifest.WindowSettings() {
		inv.Msg = core.ExecuteMsg{SetWindow: &core.SetWindowMsg{Window: w.Kind, Bounds: w.Window}}
		res, err := n.host.Execute(ctx, inv)
		if err != nil {
			return fmt.Errorf("set %s window: %w", w.Kind, err)
		}
		results = append(results, res)
	}
	return printJSON(results)
}

func runExec(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the node config file")
	caller := fs.String("caller", "", "Address of the invoking account")
	height := fs.Uint64("height", 0, "Block height")
	blockTime := fs.Uint64("time", uint64(time.Now().Unix()), "Block time in unix seconds")
	txIndex := fs.Int("tx-index", -1, "Transaction index within the block; negative when absent")
	funds := fs.String("funds", "", "Attached funds, e.g. 300ujunox")
	rawMsg := fs.String("msg", "", "Execute message as JSON")
	saltEnv := fs.String("salt-env", defaultSaltEnv, "Environment variable holding the reveal salt when the message omits it")
	reportDir := fs.String("report-dir", "", "Write CSV and Parquet settlement reports here on finalize")
	fs.Parse(args)

	msg, err := core.ParseExecuteMsg([]byte(*rawMsg))
	if err != nil {
		return err
	}
	if msg.Reveal != nil && msg.Reveal.Salt == "" {
		salt, err := secret.NewSource(*saltEnv, "reveal salt").Get()
		if err != nil {
			return err
		}
		msg.Reveal.Salt = salt
	}
	coins, err := types.ParseCoins(*funds)
	if err != nil {
		return err
	}
	inv := core.Invocation{
		Caller: *caller,
		Height: *height,
		Time:   *blockTime,
		Funds:  coins,
		Msg:    msg,
	}
	if *txIndex >= 0 {
		idx := uint32(*txIndex)
		inv.TxIndex = &idx
	}

	ctx := context.Background()
	n, err := openNode(ctx, *configPath)
	if err != nil {
		return err
	}
	defer n.close()

	res, err := n.host.Execute(ctx, inv)
	if err != nil {
		return err
	}
	if res.Settlement != nil && *reportDir != "" {
		// The settlement is already committed; a failed export is only reported.
		files, err := report.Write(*reportDir, res.Settlement)
		if err != nil {
			n.logger.Warn("settlement report failed", slog.Any("error", err))
		} else if files.Rows > 0 {
			n.logger.Info("settlement report written",
				slog.String("csv", files.CSVPath),
				slog.String("parquet", files.ParquetPath),
				slog.Int("rows", files.Rows))
		}
	}
	return printJSON(res)
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the node config file")
	rawMsg := fs.String("msg", "", "Query message as JSON")
	fs.Parse(args)

	msg, err := core.ParseQueryMsg([]byte(*rawMsg))
	if err != nil {
		return err
	}
	ctx := context.Background()
	n, err := openNode(ctx, *configPath)
	if err != nil {
		return err
	}
	defer n.close()

	payload, err := n.host.Query(ctx, msg)
	if err != nil {
		return err
	}
	return printJSON(payload)
}

func runCommitment(args []string) error {
	fs := flag.NewFlagSet("commitment", flag.ExitOnError)
	caller := fs.String("caller", "", "Address that will commit and reveal")
	value := fs.String("value", "", "Vote value")
	saltEnv := fs.String("salt-env", defaultSaltEnv, "Environment variable holding the salt; prompts when unset")
	fs.Parse(args)

	if strings.TrimSpace(*caller) == "" {
		return errors.New("--caller required")
	}
	salt, err := secret.NewSource(*saltEnv, "reveal salt").Get()
	if err != nil {
		return err
	}
	fmt.Println(blindbox.CommitmentFor(*caller, *value, salt))
	return nil
}

func runReceipts(args []string) error {
	fs := flag.NewFlagSet("receipts", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the node config file")
	limit := fs.Int("limit", 20, "Number of receipts to list, newest first")
	id := fs.String("id", "", "Show a single invocation")
	fs.Parse(args)

	ctx := context.Background()
	n, err := openNode(ctx, *configPath)
	if err != nil {
		return err
	}
	defer n.close()
	if n.receipts == nil {
		return errors.New("receipts are disabled; set ReceiptsDSN")
	}
	if *id != "" {
		rec, err := n.receipts.Get(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(rec)
	}
	list, err := n.receipts.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	return printJSON(list)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the node config file")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := openNode(ctx, *configPath)
	if err != nil {
		return err
	}
	defer n.close()
	if strings.TrimSpace(n.cfg.Ops.ListenAddress) == "" {
		return errors.New("ops.ListenAddress required")
	}

	srv := ops.NewServer(ops.Config{
		ListenAddress: n.cfg.Ops.ListenAddress,
		Contract:      n.host.Contract(),
		Health:        n.host.Health,
		RateLimiter:   ops.NewRateLimiter(n.cfg.Ops.RequestsPerSecond, n.cfg.Ops.Burst),
		ReadTimeout:   n.cfg.Ops.ReadTimeout(),
		Logger:        n.logger,
	})
	return srv.ListenAndServe(ctx)
}

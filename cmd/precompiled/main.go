// Command precompiled is a thin operator-facing shell around the
// precompile set: it runs a single call against decoded CLI input, and
// optionally serves Prometheus metrics while that call runs.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nexusvm/coreth-precompiles/core/vm"
	"github.com/nexusvm/coreth-precompiles/internal/logging"
	"github.com/nexusvm/coreth-precompiles/internal/metrics"
	"github.com/nexusvm/coreth-precompiles/params"
)

func main() {
	app := &cli.App{
		Name:  "precompiled",
		Usage: "run a single precompile call and print its result",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Required: true, Usage: "precompile address, hex (e.g. 0x01, 0xf4, 0x0402)"},
			&cli.StringFlag{Name: "input", Usage: "call input, hex-encoded"},
			&cli.Uint64Flag{Name: "gas", Usage: "gas budget; 0 means unmetered"},
			&cli.StringFlag{Name: "config", Usage: "gas schedule override file (.json or .yaml)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "if set, serve Prometheus metrics here while the call runs (e.g. :6060)"},
			&cli.StringFlag{Name: "log-file", Usage: "rotate logs to this file instead of stderr"},
			&cli.IntFlag{Name: "verbosity", Value: 3, Usage: "log verbosity, 0 (crit) through 5 (trace)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := logging.Setup(c.Int("verbosity"), c.String("log-file")); err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}

	cfg, err := loadGasConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("load gas config: %w", err)
	}

	reg := prometheus.NewRegistry()
	opts := []vm.Option{vm.WithMetrics(metrics.NewRegistry(reg))}
	set := vm.NewPrecompileSet(cfg, opts...)

	addr, err := parseAddress(c.String("address"))
	if err != nil {
		return err
	}
	input, err := hex.DecodeString(trimHexPrefix(c.String("input")))
	if err != nil {
		return fmt.Errorf("decode --input: %w", err)
	}

	var budget *uint64
	if g := c.Uint64("gas"); g > 0 {
		budget = &g
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	if addr := c.String("metrics-addr"); addr != "" {
		group.Go(func() error { return serveMetrics(groupCtx, addr, reg) })
	}

	result := set.Execute(addr, input, budget, &vm.CallContext{}, false)
	if result == nil {
		return fmt.Errorf("address %s is not a recognized precompile", addr.Hex())
	}
	if err := printResult(result); err != nil {
		return err
	}

	cancel()
	if err := group.Wait(); err != nil && groupCtx.Err() == nil {
		return err
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

func loadGasConfig(path string) (params.GasConfig, error) {
	if path == "" {
		return params.GasConfig{}, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return params.GasConfig{}, err
	}
	data, err := json.Marshal(v.AllSettings())
	if err != nil {
		return params.GasConfig{}, err
	}
	return params.DecodeGasConfig(data)
}

func parseAddress(s string) (common.Address, error) {
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return common.Address{}, fmt.Errorf("decode --address: %w", err)
	}
	return common.BytesToAddress(b), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func printResult(out *vm.PrecompileOutput) error {
	enc, err := json.MarshalIndent(struct {
		Status  string `json:"status"`
		GasUsed uint64 `json:"gasUsed"`
		Output  string `json:"output"`
		Error   string `json:"error,omitempty"`
	}{
		Status:  out.Status.String(),
		GasUsed: out.GasUsed,
		Output:  "0x" + hex.EncodeToString(out.Output),
		Error:   errString(out.Err),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

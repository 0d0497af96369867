package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/gidref"
	"github.com/hupe1980/gidref/agas"
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/handle"
	"github.com/hupe1980/gidref/metrics"
	"github.com/hupe1980/gidref/metrics/prom"
	"github.com/hupe1980/gidref/wire"
)

type simulateOptions struct {
	configPath  string
	localities  int
	messages    int
	initialLog2 uint8
	metricsAddr string
	timeout     time.Duration
}

type simulationReport struct {
	Localities int                  `json:"localities"`
	Messages   int                  `json:"messages"`
	Destroyed  bool                 `json:"destroyed"`
	Elapsed    string               `json:"elapsed"`
	Credit     metrics.BasicStats   `json:"credit"`
	Authority  agas.ServiceStats    `json:"authority"`
	Home       gidref.LocalityStats `json:"home"`
}

type tracked struct {
	closed chan struct{}
}

func (t *tracked) Close() error {
	close(t.closed)
	return nil
}

func newSimulateCmd(out printer) *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Send one component to other localities and check it is destroyed exactly when the last copy goes away",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, reg, err := simulate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := out(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if opts.metricsAddr == "" {
				return nil
			}
			return serveMetrics(cmd.Context(), opts.metricsAddr, reg)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "TOML configuration applied to every locality")
	cmd.Flags().IntVarP(&opts.localities, "localities", "l", 3, "number of localities, including the home locality")
	cmd.Flags().IntVarP(&opts.messages, "messages", "m", 1000, "parcels sent by the home locality")
	cmd.Flags().Uint8Var(&opts.initialLog2, "initial-log2", 0, "exponent of the initial credit (0: configuration)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address after the run")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "maximum time to wait for the destruction")
	return cmd
}

func simulate(ctx context.Context, opts simulateOptions) (*simulationReport, *prometheus.Registry, error) {
	if opts.localities < 2 || opts.messages < 0 {
		return nil, nil, core.NewError(core.ErrBadParameter, "gidctl simulate", "need at least two localities")
	}

	cfg := gidref.DefaultConfig()
	cfg.LogFormat = "none"
	if opts.configPath != "" {
		var err error
		if cfg, err = gidref.LoadConfig(opts.configPath); err != nil {
			return nil, nil, err
		}
	}
	if opts.initialLog2 != 0 {
		cfg.Authority.InitialCreditLog2 = opts.initialLog2
	}

	authority, err := gidref.NewAuthority(ctx, cfg.Authority, nil)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	promObs, err := prom.New(reg)
	if err != nil {
		return nil, nil, err
	}
	basic := &metrics.BasicObserver{}
	obs := metrics.Multi{basic, promObs}

	base, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}

	locs := make([]*gidref.Locality, 0, opts.localities)
	defer func() {
		for _, l := range locs {
			_ = l.Shutdown(context.Background())
		}
	}()
	for i := range opts.localities {
		l, err := gidref.New(authority, append(base,
			gidref.WithLocalityID(core.LocalityID(i)),
			gidref.WithMetricsObserver(obs),
		)...)
		if err != nil {
			return nil, nil, err
		}
		if err := l.Start(ctx); err != nil {
			return nil, nil, err
		}
		locs = append(locs, l)
	}

	start := time.Now()
	home := locs[0]
	target := &tracked{closed: make(chan struct{})}
	id, err := home.NewComponent(ctx, core.ComponentFirstUser, target)
	if err != nil {
		return nil, nil, err
	}

	remotes := locs[1:]
	g, gctx := errgroup.WithContext(ctx)
	for i, remote := range remotes {
		n := opts.messages / len(remotes)
		if i < opts.messages%len(remotes) {
			n++
		}
		g.Go(func() error {
			return exchange(gctx, home, remote, id, n)
		})
	}
	err = g.Wait()
	home.Release(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	report := &simulationReport{
		Localities: opts.localities,
		Messages:   opts.messages,
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	select {
	case <-target.closed:
		report.Destroyed = true
	case <-waitCtx.Done():
	}

	report.Elapsed = time.Since(start).String()
	report.Credit = basic.Stats()
	report.Authority = authority.Stats()
	report.Home = home.Stats()
	if !report.Destroyed {
		return report, reg, core.NewError(core.ErrUnexpectedFailure, "gidctl simulate", "component was not destroyed")
	}
	return report, reg, nil
}

func exchange(ctx context.Context, home, remote *gidref.Locality, id handle.ID, n int) error {
	for range n {
		data, err := home.Encode(ctx, &wire.Parcel{
			Destination: remote.ID(),
			Action:      "simulate.ping",
			IDs:         []handle.ID{id},
		})
		if err != nil {
			return err
		}
		p, err := remote.Decode(data)
		if err != nil {
			return err
		}
		for _, received := range p.IDs {
			remote.Release(ctx, received)
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

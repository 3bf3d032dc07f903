package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrip-network/scrip/internal/api"
	"github.com/scrip-network/scrip/internal/app/bounty"
	"github.com/scrip-network/scrip/internal/app/dispute"
	"github.com/scrip-network/scrip/internal/app/escrow"
	"github.com/scrip-network/scrip/internal/app/ledger"
	"github.com/scrip-network/scrip/internal/app/reputation"
	"github.com/scrip-network/scrip/internal/daemon"
	"github.com/scrip-network/scrip/internal/domain"
	"github.com/scrip-network/scrip/internal/infra/identity"
	"github.com/scrip-network/scrip/internal/infra/logging"
	"github.com/scrip-network/scrip/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the settlement daemon",
	Long: `Start the scripd HTTP API and serve it until interrupted. The store,
listener, and settlement parameters come from the config file.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	srv := api.NewServer(core.Ledger, core.Bounties, core.Disputes, core.Reputation, core.Log)
	if core.Config.API.MetricsEnabled {
		srv.EnableMetrics()
	}

	httpSrv := &http.Server{
		Addr:              core.Config.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		core.Log.Info("listening", zap.String("addr", httpSrv.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		core.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// ─── Core Wiring ────────────────────────────────────────────────────────────

// core bundles the opened store and the services every command works
// through.
type core struct {
	Config     daemon.Config
	Log        *zap.Logger
	DB         *sqlite.DB
	Ledger     *ledger.Service
	Escrow     *escrow.Service
	Reputation *reputation.Service
	Bounties   *bounty.Service
	Disputes   *dispute.Service
}

// openCore loads the config, opens the store, and wires the services.
func openCore() (*core, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logging.Configure(cfg.Log.Level)

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	promoCap, err := cfg.PromoLifetimeCap()
	if err != nil {
		db.Close()
		return nil, err
	}
	bcfg, dcfg, err := settlementConfigs(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	policies, err := cfg.SpendPolicies()
	if err != nil {
		db.Close()
		return nil, err
	}

	ldg := ledger.New(db, log, promoCap)
	esc := escrow.New(db, ldg, log)
	rep := reputation.New(db, log, decimal.NewFromFloat(cfg.Settlement.DecayFactor))
	bty := bounty.New(db, esc, rep,
		identity.Ed25519Verifier{},
		identity.StaticDirectory(cfg.Directory()),
		identity.StaticPolicies(policies),
		bcfg, log)
	dsp := dispute.New(db, ldg, esc, rep, dcfg, log)

	return &core{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Ledger:     ldg,
		Escrow:     esc,
		Reputation: rep,
		Bounties:   bty,
		Disputes:   dsp,
	}, nil
}

// Close releases the store and flushes logs.
func (c *core) Close() {
	c.DB.Close()
	c.Log.Sync()
}

// settlementConfigs maps the TOML settlement section onto the service
// configs.
func settlementConfigs(cfg daemon.Config) (bounty.Config, dispute.Config, error) {
	min, err := cfg.MinReward()
	if err != nil {
		return bounty.Config{}, dispute.Config{}, err
	}
	max, err := cfg.MaxReward()
	if err != nil {
		return bounty.Config{}, dispute.Config{}, err
	}
	bcfg := bounty.Config{
		MinReward:      min,
		MaxReward:      max,
		CompletionRate: decimal.NewFromFloat(cfg.Settlement.CompletionRate),
		ClosureWeights: map[domain.ClosureType]decimal.Decimal{
			domain.ClosureTests:     decimal.NewFromFloat(cfg.Settlement.TestsWeight),
			domain.ClosureQuorum:    decimal.NewFromFloat(cfg.Settlement.QuorumWeight),
			domain.ClosureRequester: decimal.NewFromFloat(cfg.Settlement.RequesterWeight),
		},
		ApprovalTTL: cfg.ApprovalTTL(),
	}
	dcfg := dispute.Config{
		StakeRate:      decimal.NewFromFloat(cfg.Settlement.StakeRate),
		Window:         cfg.DisputeWindow(),
		ArbitrationTTL: cfg.ArbitrationTTL(),
		ClawbackRate:   decimal.NewFromFloat(cfg.Settlement.ClawbackRate),
	}
	return bcfg, dcfg, nil
}

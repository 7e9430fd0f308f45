package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/berkmancenter/equalpass/badge"
	"github.com/berkmancenter/equalpass/challenge"
	"github.com/berkmancenter/equalpass/config"
	"github.com/berkmancenter/equalpass/logging"
	"github.com/berkmancenter/equalpass/metrics"
	"github.com/berkmancenter/equalpass/proof"
	"github.com/berkmancenter/equalpass/router"
	"github.com/berkmancenter/equalpass/verification"
)

const (
	appName         = "equalpass"
	shutdownTimeout = 10 * time.Second
)

func main() {
	app := &cli.App{
		Name:   appName,
		Usage:  "student credential verification backend",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:  "setup-keys",
				Usage: "Run the Groth16 setup for the eligibility circuit and write the keys",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Value: "keys", Usage: "directory for eligibility_pk.bin and eligibility_vk.bin"},
					&cli.Int64Flag{Name: "min-year", Value: 2000, Usage: "minimum enrollment year baked into the statement"},
				},
				Action: setupKeys,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

type server struct {
	echo       *echo.Echo
	challenges *challenge.Service
	closers    []func()
}

func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newServer wires every component from cfg. A nil prover selects the
// backend named by PROOF_BACKEND.
func newServer(ctx context.Context, cfg config.Config, log *logrus.Logger, prover proof.Gateway) (*server, error) {
	s := &server{}
	rec := metrics.New()

	store, credentials, err := newStores(ctx, cfg, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	rpID, err := cfg.RPID()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.challenges, err = challenge.NewService(store, credentials, challenge.Options{
		RPDisplayName: cfg.RPName,
		RPID:          rpID,
		RPOrigins:     []string{strings.TrimRight(cfg.FrontendURL, "/")},
		TTL:           cfg.ChallengeTTL,
		Logger:        log,
		Metrics:       rec,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	if prover == nil {
		prover, err = newProver(cfg, log)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	ledger, err := newLedger(ctx, cfg, log, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	orch := verification.New(s.challenges, prover,
		badge.NewService(ledger, cfg.MaxTokenSearch, cfg.ScanConcurrency, log),
		verification.Options{ExplorerURL: cfg.ExplorerURL, Logger: log, Metrics: rec},
	)

	e := echo.New()
	e.HideBanner = true
	router.UseMiddleware(e, log, cfg.CORSOrigin)
	if err := router.RegisterRoutes(e, router.Deps{
		Orchestrator: orch,
		Config:       cfg,
		Logger:       log,
		Metrics:      rec,
	}); err != nil {
		s.Close()
		return nil, err
	}
	s.echo = e
	return s, nil
}

func newStores(ctx context.Context, cfg config.Config, s *server) (challenge.Store, challenge.CredentialStore, error) {
	if cfg.StoreBackend != config.StoreRedis {
		return challenge.NewMemoryStore(), challenge.NewMemoryCredentialStore(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid %s: %w", config.EnvRedisURL, err)
	}
	client := redis.NewClient(opts)
	s.closers = append(s.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return challenge.NewRedisStore(client, cfg.ChallengeTTL), challenge.NewRedisCredentialStore(client), nil
}

func newProver(cfg config.Config, log *logrus.Logger) (proof.Gateway, error) {
	if cfg.ProofBackend == config.ProofSnarkJS {
		log.Infof("Proving with snarkjs circuits in %s", cfg.CircuitsDir)
		return &proof.SnarkJS{
			Bin:         cfg.SnarkJSBin,
			CircuitsDir: cfg.CircuitsDir,
			WasmFile:    cfg.WasmFile,
			ZkeyFile:    cfg.ZkeyFile,
			VkeyFile:    cfg.VkeyFile,
			Timeout:     cfg.ProofTimeout,
			Log:         log,
		}, nil
	}

	minYear := int64(cfg.MinEnrollmentYear)
	if cfg.ProofKeysDir == "" {
		log.Warn("PROOF_KEYS_DIR not set, running a throwaway Groth16 setup")
		g, err := proof.NewGroth16(minYear)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	g, generated, err := proof.LoadGroth16(cfg.ProofKeysDir, minYear)
	if err != nil {
		return nil, err
	}
	if generated {
		log.Warnf("No Groth16 keys in %s, generated a new setup", cfg.ProofKeysDir)
		if err := g.SaveKeys(cfg.ProofKeysDir); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func newLedger(ctx context.Context, cfg config.Config, log *logrus.Logger, s *server) (badge.Ledger, error) {
	if cfg.LedgerBackend == config.LedgerEthereum {
		l, err := badge.DialEthereum(ctx, cfg.RPCURL, cfg.ContractAddress, cfg.PrivateKey, cfg.ChainID, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, l.Close)
		return l, nil
	}

	issuer := common.Address{}
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", config.EnvPrivateKey, err)
		}
		issuer = crypto.PubkeyToAddress(key.PublicKey)
	}
	log.Warn("Using the in-memory badge ledger, badges are lost on restart")
	return badge.NewMemoryLedger(common.HexToAddress(cfg.ContractAddress), issuer), nil
}

func serve(c *cli.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	log := logging.New(appName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newServer(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.challenges.StartSweeper(ctx, cfg.SweepInterval); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("Listening on :%d", cfg.Port)
		errc <- s.echo.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func setupKeys(c *cli.Context) error {
	log := logging.New(appName, "info")
	dir := c.String("out")

	g, err := proof.NewGroth16(c.Int64("min-year"))
	if err != nil {
		return err
	}
	if err := g.SaveKeys(dir); err != nil {
		return err
	}
	log.Infof("Wrote Groth16 keys to %s", dir)
	return nil
}

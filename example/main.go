// Example settlement node: an in-memory chain with a marketplace, a
// renting protocol and an NFT bundler, serving the event feed and metrics over HTTP. With -demo
// it also settles a sample sale and rental through the SDK.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/bundler"
	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/config"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/feed"
	"github.com/kaifufi/nftspace-settlement-go/ledger"
	"github.com/kaifufi/nftspace-settlement-go/market"
	"github.com/kaifufi/nftspace-settlement-go/metrics"
	"github.com/kaifufi/nftspace-settlement-go/renting"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", "", "optional .env file")
	demo := flag.Bool("demo", false, "settle a sample sale and rental after start-up")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *envFile, *demo); err != nil {
		log.Fatalf("nftspace-node: %v", err)
	}
}

type node struct {
	cfg         *config.Config
	logger      *logrus.Logger
	world       *ledger.World
	admin       *chain.OrderSigner
	marketplace *market.Marketplace
	renting     *renting.Protocol
	bundler     *bundler.Bundler
}

func run(ctx context.Context, configPath, envFile string, demo bool) error {
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(configPath, envFiles...)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	store, closeStore, err := cfg.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer closeStore()

	admin, err := adminSigner(cfg, logger)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(cfg.Feed.MetricsNamespace)
	hub := feed.NewHub(logger)
	defer hub.Close()
	sink := events.Multi(hub, events.LogSink{Logger: logger})

	n := &node{
		cfg:    cfg,
		logger: logger,
		world:  ledger.NewWorld(big.NewInt(cfg.ChainID), uint64(time.Now().Unix())),
		admin:  admin,
	}
	n.marketplace = market.Deploy(n.world, market.Options{
		Admin:   admin.Address(),
		Store:   store,
		Sink:    sink,
		Metrics: collector,
		Logger:  logger,
	})
	n.renting = renting.Deploy(n.world, renting.Options{
		Admin:   admin.Address(),
		Store:   store,
		Sink:    sink,
		Metrics: collector,
		Logger:  logger,
	})
	n.bundler = bundler.Deploy(n.world, bundler.Options{
		Admin:           admin.Address(),
		RentingProtocol: n.renting.Address(),
		Sink:            sink,
		Metrics:         collector,
		Logger:          logger,
	})
	if err := n.configure(ctx); err != nil {
		return err
	}
	if cfg.RPCURL != "" {
		checkSettlementTokens(ctx, cfg, logger)
	}

	listener, err := net.Listen("tcp", cfg.Feed.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Feed.ListenAddr, err)
	}
	server := &http.Server{
		Handler:           feed.Router(hub, collector.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", listener.Addr().String()).Info("Serving event feed")
		serveErr <- server.Serve(listener)
	}()

	if demo {
		if err := n.runDemo(ctx, feedEndpoint(listener.Addr().String())); err != nil {
			logger.WithError(err).Error("Demo failed")
		}
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Node stopped")
	return nil
}

func adminSigner(cfg *config.Config, logger *logrus.Logger) (*chain.OrderSigner, error) {
	if cfg.PrivateKey != "" {
		return chain.NewOrderSignerFromHex(cfg.PrivateKey)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate admin key: %w", err)
	}
	signer := chain.NewOrderSigner(key)
	logger.WithField("admin", signer.Address().Hex()).Warn("No private key configured, using an ephemeral admin")
	return signer, nil
}

// configure applies the initial commission, settlement tokens and rental fee.
func (n *node) configure(ctx context.Context) error {
	admin := n.admin.Address()
	if n.cfg.Marketplace.CommissionPermille > 0 {
		if _, err := n.marketplace.SetMarketplaceCommissionPermille(ctx, admin, n.cfg.Marketplace.CommissionPermille); err != nil {
			return fmt.Errorf("set commission: %w", err)
		}
		beneficiary := common.HexToAddress(n.cfg.Marketplace.Beneficiary)
		if _, err := n.marketplace.SetMarketplaceBeneficiary(ctx, admin, beneficiary); err != nil {
			return fmt.Errorf("set beneficiary: %w", err)
		}
	}
	for _, token := range n.cfg.SettlementTokenAddresses() {
		if _, err := n.marketplace.SetSettlementTokenStatus(ctx, admin, token, true); err != nil {
			return fmt.Errorf("allow settlement token %s: %w", token.Hex(), err)
		}
	}
	if n.cfg.Renting.FeeBasisPoints > 0 {
		if _, err := n.renting.SetProtocolFeeBasisPoints(ctx, admin, n.cfg.Renting.FeeBasisPoints); err != nil {
			return fmt.Errorf("set protocol fee: %w", err)
		}
	}
	if n.cfg.Renting.FeeReceiver != "" {
		if _, err := n.renting.SetProtocolFeeReceiver(ctx, admin, common.HexToAddress(n.cfg.Renting.FeeReceiver)); err != nil {
			return fmt.Errorf("set protocol fee receiver: %w", err)
		}
	}
	return nil
}

// checkSettlementTokens reads the decimals of every configured settlement
// token from the live chain so misconfigured addresses show up at start-up.
func checkSettlementTokens(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	caller, err := chain.DialContractCaller(ctx, cfg.RPCURL)
	if err != nil {
		logger.WithError(err).Warn("Skipping settlement token check")
		return
	}
	defer caller.Close()
	for _, token := range cfg.SettlementTokenAddresses() {
		decimals, err := caller.Decimals(ctx, token)
		entry := logger.WithField("token", token.Hex())
		if err != nil {
			entry.WithError(err).Warn("Settlement token is not a readable ERC20")
			continue
		}
		entry.WithField("decimals", decimals).Info("Settlement token checked")
	}
}

func feedEndpoint(addr string) string {
	if strings.HasPrefix(addr, "[::]") || strings.HasPrefix(addr, "0.0.0.0") {
		addr = "127.0.0.1" + addr[strings.LastIndex(addr, ":"):]
	}
	return "ws://" + addr + "/ws"
}

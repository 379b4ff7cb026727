package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Malyypnrhz7/vote-vault-fhe/config"
	"github.com/Malyypnrhz7/vote-vault-fhe/connection"
	"github.com/Malyypnrhz7/vote-vault-fhe/coordinator"
	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/relayer"
	"github.com/Malyypnrhz7/vote-vault-fhe/service"
	"github.com/Malyypnrhz7/vote-vault-fhe/storage"
	"github.com/Malyypnrhz7/vote-vault-fhe/wallet"
	"github.com/Malyypnrhz7/vote-vault-fhe/web3"
	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// flags override the environment
	contract := flag.String("contract", "", "ledger contract address, empty runs the demo ledger")
	flag.Uint64Var(&cfg.ChainID, "chainId", cfg.ChainID, "chain id of the ledger")
	flag.StringVar(&cfg.RelayerURL, "relayer", cfg.RelayerURL, "encryption relayer URL, empty disables encryption")
	flag.BoolVar(&cfg.AllowPlaceholder, "allowPlaceholder", cfg.AllowPlaceholder,
		"submit placeholder inputs when the relayer is unavailable")
	flag.StringVar(&cfg.PrivateKey, "privkey", cfg.PrivateKey, "private key of the voter account")
	flag.StringVar(&cfg.KeystoreDir, "keystore", cfg.KeystoreDir, "keystore directory of the voter account")
	flag.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory for the local database")
	flag.StringVar(&cfg.APIHost, "host", cfg.APIHost, "API host to listen on")
	flag.IntVar(&cfg.APIPort, "port", cfg.APIPort, "API port to listen on")
	flag.StringVar(&cfg.LogLevel, "logLevel", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "proposal snapshot refresh interval")
	flag.DurationVar(&cfg.DemoRevealDelay, "revealDelay", cfg.DemoRevealDelay, "demo mode reveal delay")
	flag.Parse()
	if *contract != "" {
		if !common.IsHexAddress(*contract) {
			fmt.Fprintf(os.Stderr, "invalid contract address %q\n", *contract)
			os.Exit(2)
		}
		cfg.ContractAddress = common.HexToAddress(*contract)
	}

	if err := log.Init(cfg.LogLevel, "stdout", nil); err != nil {
		panic(err)
	}

	database, err := metadb.New(db.TypePebble, filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		log.Fatal(err)
	}
	stg := storage.New(database)
	defer stg.Close()

	probe := wallet.ChainProbe(
		wallet.KeyProbe(cfg.PrivateKey),
		wallet.KeystoreProbe(cfg.KeystoreDir, cfg.KeystorePassword),
	)
	resolver := connection.NewFromConfig(cfg, probe)
	channel := relayer.NewRemoteChannel(cfg.RelayerURL, cfg.CallTimeout, relayer.Options{
		AllowPlaceholder: cfg.AllowPlaceholder,
	})
	coord := coordinator.New(resolver, channel, stg, coordinator.Options{RevealDelay: cfg.DemoRevealDelay})
	defer coord.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state := coord.Start(ctx)
	log.Infow("vote vault started",
		"state", state.String(),
		"ledger", cfg.ContractAddress.Hex(),
		"chainId", cfg.ChainID,
		"voter", coord.Voter().Hex(),
	)

	if state.IsLive() {
		var events service.ProposalEvents
		if contracts, ok := resolver.Gateway().(*web3.Contracts); ok {
			events = contracts
		}
		monitor := service.NewProposalMonitor(coord, events, cfg.PollInterval)
		if err := monitor.Start(ctx); err != nil {
			log.Fatal(err)
		}
		defer monitor.Stop()
	}

	apiService := service.NewAPI(coord, cfg.APIHost, cfg.APIPort)
	if err := apiService.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer apiService.Stop()

	<-ctx.Done()
	log.Infow("shutting down")
}

package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/Malyypnrhz7/vote-vault-fhe/wallet"
	"github.com/Malyypnrhz7/vote-vault-fhe/web3"
	"github.com/ethereum/go-ethereum/common"
)

var rpcs = []string{
	"https://1rpc.io/sepolia",
	"https://sepolia.gateway.tenderly.co",
	"https://rpc.ankr.com/eth_sepolia",
	"https://eth-sepolia.public.blastapi.io",
}

func main() {
	contract := flag.String("contract", "", "VoteVaultFHE contract address")
	chainID := flag.Uint64("chainId", 11155111, "chain id of the ledger")
	endpoints := flag.String("rpcs", strings.Join(rpcs, ","), "comma separated web3 endpoints")
	privKey := flag.String("privkey", "", "private key to use for the Ethereum account")
	title := flag.String("create", "", "create a proposal with this title (needs -privkey)")
	days := flag.Uint64("days", 7, "duration in days of the created proposal")
	watch := flag.Duration("watch", 0, "keep polling proposal events for this long")
	flag.Parse()
	if err := log.Init("debug", "stdout", nil); err != nil {
		panic(err)
	}
	if !common.IsHexAddress(*contract) {
		log.Fatalf("invalid contract address %q", *contract)
	}

	contracts, err := web3.NewContracts(common.HexToAddress(*contract), *chainID,
		strings.Split(*endpoints, ","), web3.Options{Probe: wallet.KeyProbe(*privKey)})
	if err != nil {
		log.Fatal(err)
	}
	defer contracts.Close()
	log.Infow("contracts initialized", "chainId", contracts.ChainID)

	ctx := context.Background()
	if *title != "" {
		id, receipt, err := contracts.CreateProposal(ctx, *title, "", types.DurationFromDays(*days))
		if err != nil {
			log.Fatal(err)
		}
		log.Infow("proposal created", "proposalId", id, "txHash", receipt.TxHash.Hex())
	}

	count, err := contracts.ProposalCount(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for id := uint64(0); id < count; id++ {
		p, err := contracts.ProposalInfo(ctx, id)
		if err != nil {
			log.Warnw("cannot read proposal", "proposalId", id, "error", err)
			continue
		}
		log.Infow("proposal", "proposal", p.String())
	}

	if *watch == 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, *watch)
	defer cancel()
	ch, err := contracts.MonitorProposalsByPolling(wctx, 5*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	log.Info("monitoring proposal events")
	for id := range ch {
		p, err := contracts.ProposalInfo(ctx, id)
		if err != nil {
			log.Warnw("cannot read proposal", "proposalId", id, "error", err)
			continue
		}
		log.Infow("proposal updated", "proposal", p.String())
	}
}

// rate-set is the operator override: it pushes an explicit decimal rate to
// the oracle after range validation and an owner check.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cryptoshop/settlement/config"
	"github.com/cryptoshop/settlement/contract"
	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/metrics"
	"github.com/cryptoshop/settlement/oracle"
	"github.com/cryptoshop/settlement/ratesource"
	"github.com/cryptoshop/settlement/updater"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rate-set <rate>")
	fmt.Fprintln(os.Stderr, "  rate: decimal EUR/USD rate, e.g. 1.0834")
	os.Exit(1)
}

func main() {
	if len(os.Args) != 2 {
		usage()
	}
	if _, err := decimal.NewFromString(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "invalid rate %q\n", os.Args[1])
		usage()
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := cfg.ValidateUpdater(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	zlog := logger.NewZapLogger(cfg.Log.Level)
	ctx := context.Background()

	backend, err := contract.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("rpc dial failed: %v", err)
	}
	defer backend.Close()

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		log.Fatalf("chain id read failed: %v", err)
	}
	signer, err := contract.NewTransactor(cfg.Chain.OwnerKey, chainID)
	if err != nil {
		log.Fatalf("signer setup failed: %v", err)
	}

	bound, err := contract.New(backend, common.HexToAddress(cfg.Chain.OracleAddress), oracle.ABI, signer)
	if err != nil {
		log.Fatalf("oracle binding failed: %v", err)
	}

	u := updater.New(
		oracle.New(bound, zlog),
		ratesource.New(cfg.Feed.Endpoint, 0, zlog),
		cfg.Updater.ThresholdPct,
		zlog,
		metrics.NoopRecorder{},
	)

	if err := u.SetManual(ctx, os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "manual rate set failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("oracle rate set to %s\n", os.Args[1])
}

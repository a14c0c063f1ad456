// rate-update runs one oracle reconciliation pass. It exits 0 both when an
// update was submitted and verified and when the drift was below threshold;
// any classified failure exits 1. Retry cadence belongs to the scheduler
// invoking this binary.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptoshop/settlement/config"
	"github.com/cryptoshop/settlement/contract"
	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/metrics"
	"github.com/cryptoshop/settlement/oracle"
	"github.com/cryptoshop/settlement/ratesource"
	"github.com/cryptoshop/settlement/updater"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := cfg.ValidateUpdater(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	zlog := logger.NewZapLogger(cfg.Log.Level)
	rec := metrics.Recorder(metrics.NoopRecorder{})
	if cfg.Metrics.Enabled {
		rec = metrics.NewPrometheusRecorder()
	}

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
		ratesource.New(cfg.Feed.Endpoint, time.Duration(cfg.Feed.TimeoutSeconds)*time.Second, zlog),
		cfg.Updater.ThresholdPct,
		zlog,
		rec,
	)

	res, err := u.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rate update failed: %v\n", err)
		os.Exit(1)
	}

	if res.Updated {
		fmt.Printf("rate updated: %s -> %s (%.4f%% drift)\n", res.Current, res.New, res.DiffPct)
	} else {
		fmt.Printf("no update needed: drift %.4f%% below threshold %.4f%%\n", res.DiffPct, cfg.Updater.ThresholdPct)
	}
}

// api serves the rate surface consumed by the storefront.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptoshop/settlement/config"
	"github.com/cryptoshop/settlement/contract"
	"github.com/cryptoshop/settlement/httpapi"
	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/metrics"
	"github.com/cryptoshop/settlement/oracle"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	zlog := logger.NewZapLogger(cfg.Log.Level)
	rec := metrics.Recorder(metrics.NoopRecorder{})
	if cfg.Metrics.Enabled {
		rec = metrics.NewPrometheusRecorder()
	}

	backend, err := contract.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("rpc dial failed: %v", err)
	}
	defer backend.Close()

	bound, err := contract.New(backend, common.HexToAddress(cfg.Chain.OracleAddress), oracle.ABI, nil)
	if err != nil {
		log.Fatalf("oracle binding failed: %v", err)
	}

	h := httpapi.NewHandler(oracle.New(bound, zlog), zlog, rec)
	srv := httpapi.NewServer(h, cfg.Metrics.Enabled)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("rate api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

// rate-fetch is a diagnostic: it fetches the market rate from the feed and
// prints the value alongside its fixed-point form. No chain access.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cryptoshop/settlement/config"
	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/ratesource"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := cfg.ValidateFeed(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	src := ratesource.New(
		cfg.Feed.Endpoint,
		time.Duration(cfg.Feed.TimeoutSeconds)*time.Second,
		logger.NewZapLogger(cfg.Log.Level),
	)

	rate, err := src.FetchMarketRate(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("market rate: %f\n", rate)
	fmt.Printf("fixed point: %s\n", ratesource.ToFixedPoint(rate))
}

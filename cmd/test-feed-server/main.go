// Command test-feed-server runs the standalone queued-rate HTTP harness
// used to drive a TestSource deterministically in integration tests, the
// Go rendering of the original's test_exchange/src/main.rs binary.
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/concordium/euro2ccd-oracle/internal/testfeed"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	fs := pflag.NewFlagSet("test-feed-server", pflag.ExitOnError)
	port := fs.Int("port", 8111, "port to listen on")
	resortValue := fs.Float64("resort-value", 0.5, "value to serve once the queue is empty")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("parsing flags")
	}
	if v, ok := os.LookupEnv("TEST_EXCHANGE_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			*port = p
		}
	}
	if v, ok := os.LookupEnv("TEST_EXCHANGE_RESORT_VALUE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*resortValue = f
		}
	}

	srv := testfeed.New(*resortValue)
	addr := ":" + strconv.Itoa(*port)
	log.Info().Str("addr", addr).Float64("resort_value", *resortValue).Msg("starting test feed server")
	if err := http.ListenAndServe(addr, srv); err != nil {
		log.Fatal().Err(err).Msg("test feed server stopped")
	}
}

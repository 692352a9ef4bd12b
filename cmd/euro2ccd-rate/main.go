// Command euro2ccd-rate is a small diagnostic CLI: it connects to one or
// more nodes, prints the current on-chain exchange rate and next sequence
// number, and exits. Useful for an operator checking whether protected
// mode has latched without standing up the full daemon. The Go rendering
// of the original's local_exchange/src/main.rs "print the rate" shape,
// pointed at a real node instead of a fake one.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/concordium/euro2ccd-oracle/internal/node"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	fs := pflag.NewFlagSet("euro2ccd-rate", pflag.ExitOnError)
	nodes := fs.StringSlice("node", nil, "comma-separated node RPC endpoints")
	rpcToken := fs.String("rpc-token", "", "node RPC auth token")
	nodeTLSCA := fs.String("node-tls-ca", "", "optional TLS CA bundle path")
	perEndpoint := fs.Bool("per-endpoint", false, "query every endpoint independently instead of just the first reachable one")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("parsing flags")
	}
	if len(*nodes) == 0 {
		fmt.Fprintln(os.Stderr, "euro2ccd-rate: at least one --node is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *perEndpoint {
		if err := queryEachEndpoint(ctx, *nodes, *rpcToken, *nodeTLSCA); err != nil {
			log.Fatal().Err(err).Msg("query failed")
		}
		return
	}

	client, err := node.Connect(ctx, node.Config{
		Endpoints: *nodes,
		RPCToken:  *rpcToken,
		TLSCAPath: *nodeTLSCA,
		Log:       log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to node")
	}
	defer client.Close()

	printSummary(ctx, client, "")
}

// queryEachEndpoint fans out one connection attempt per endpoint
// concurrently and prints each result as it completes, rather than
// stopping at the first reachable one — useful when an operator suspects
// the nodes disagree on the current rate.
func queryEachEndpoint(ctx context.Context, endpoints []string, rpcToken, tlsCA string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			client, err := node.Connect(ctx, node.Config{
				Endpoints: []string{ep},
				RPCToken:  rpcToken,
				TLSCAPath: tlsCA,
				Log:       log.Logger,
			})
			if err != nil {
				fmt.Printf("%s: unreachable: %v\n", ep, err)
				return nil
			}
			defer client.Close()
			printSummary(ctx, client, ep+": ")
			return nil
		})
	}
	return g.Wait()
}

func printSummary(ctx context.Context, client *node.Client, prefix string) {
	summary, err := client.GetBlockSummary(ctx)
	if err != nil {
		fmt.Printf("%sfailed to fetch summary: %v\n", prefix, err)
		return
	}
	fmt.Printf("%srate=%d/%d next_sequence_number=%d authorized_keys=%d\n",
		prefix, summary.OnChainRate.Num, summary.OnChainRate.Den,
		summary.NextSequenceNumber, len(summary.AuthorizedKeys))
}

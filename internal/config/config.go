// Package config binds the CLI flags of spec §6 (with environment-variable
// mirrors and an optional YAML defaults file) into a validated Config,
// following the teacher's cobra/pflag wiring style
// (cmd/cryptorun/main.go) generalized from a scanner's flag set to the
// oracle's.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/concordium/euro2ccd-oracle/internal/safetygate"
	"github.com/concordium/euro2ccd-oracle/internal/source"
)

// envPrefix mirrors every flag as ENVPREFIX_FLAG_NAME, per §6.
const envPrefix = "EURO2CCD"

// Config is the fully resolved, validated startup configuration.
type Config struct {
	Nodes       []string
	RPCToken    string
	SecretNames []string
	LocalKeys   []string
	AWSRegion   string
	EnvKeys     []string
	EnvKeyPrefix string

	UpdateInterval int
	PullInterval   int

	Thresholds safetygate.Thresholds

	PrometheusPort int
	MaxRatesSaved  int
	LogLevel       string
	DryRun         bool
	DatabaseURL    string
	NodeTLSCA      string

	Sources []source.Source
}

// fileDefaults is the optional --config YAML shape; any field a flag also
// sets takes the flag/env value instead, per the spec's precedence order.
type fileDefaults struct {
	Nodes          []string `yaml:"nodes"`
	UpdateInterval int      `yaml:"update_interval"`
	PullInterval   int      `yaml:"pull_interval"`
	PrometheusPort int      `yaml:"prometheus_port"`
	MaxRatesSaved  int      `yaml:"max_rates_saved"`
}

// Parse builds a Config from CLI args, environment variables, and an
// optional --config YAML file, in increasing precedence (file < env <
// flag).
func Parse(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("euro2ccd", pflag.ContinueOnError)

	nodes := fs.StringSlice("node", nil, "comma-separated node RPC endpoints")
	rpcToken := fs.String("rpc-token", "", "node RPC auth token")
	secretNames := fs.StringSlice("secret-names", nil, "cloud secret identifiers for governance keys")
	localKeys := fs.StringSlice("local-keys", nil, "local keypair JSON file paths")
	awsRegion := fs.String("aws-region", "eu-central-1", "AWS region for the secrets-manager provider")
	envKeys := fs.StringSlice("env-keys", nil, "governance key names to resolve via environment variables (dev/test use)")
	envKeyPrefix := fs.String("env-key-prefix", "EURO2CCD_KEY", "prefix used when resolving --env-keys")

	updateInterval := fs.Int("update-interval", 1800, "seconds between publish ticks")
	pullInterval := fs.Int("pull-interval", 60, "seconds between source polls")

	warnIncrease := fs.Int("warning-increase-threshold", 0, "percent")
	haltIncrease := fs.Int("halt-increase-threshold", 0, "percent")
	warnDecrease := fs.Int("warning-decrease-threshold", 0, "percent")
	haltDecrease := fs.Int("halt-decrease-threshold", 0, "percent")

	prometheusPort := fs.Int("prometheus-port", 8112, "prometheus exposition port")
	maxRatesSaved := fs.Int("max-rates-saved", 60, "per-source history capacity")
	logLevel := fs.String("log-level", "info", "zerolog level")
	dryRun := fs.Bool("dry-run", false, "force protected mode for this invocation")
	databaseURL := fs.String("database-url", "", "optional audit sink database URL")
	nodeTLSCA := fs.String("node-tls-ca", "", "optional TLS CA bundle path for node endpoints")
	configFile := fs.String("config", "", "optional YAML file supplying flag defaults")

	bitfinex := fs.Bool("bitfinex", false, "enable the Bitfinex source")
	coinGecko := fs.Bool("coin-gecko", false, "enable the CoinGecko source")
	coinMarketCap := fs.String("coin-market-cap", "", "enable the CoinMarketCap source with this API key")
	liveCoinWatch := fs.String("live-coin-watch", "", "enable the LiveCoinWatch source with this API key")
	testSources := fs.StringSlice("test-source", nil, "repeatable: enable a TestSource at this URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	applyEnvMirrors(fs)

	if *configFile != "" {
		if err := applyFileDefaults(*configFile, fs); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Nodes:          *nodes,
		RPCToken:       *rpcToken,
		SecretNames:    *secretNames,
		LocalKeys:      *localKeys,
		AWSRegion:      *awsRegion,
		EnvKeys:        *envKeys,
		EnvKeyPrefix:   *envKeyPrefix,
		UpdateInterval: *updateInterval,
		PullInterval:   *pullInterval,
		Thresholds: safetygate.Thresholds{
			WarnIncrease: *warnIncrease,
			HaltIncrease: *haltIncrease,
			WarnDecrease: *warnDecrease,
			HaltDecrease: *haltDecrease,
		},
		PrometheusPort: *prometheusPort,
		MaxRatesSaved:  *maxRatesSaved,
		LogLevel:       *logLevel,
		DryRun:         *dryRun,
		DatabaseURL:    *databaseURL,
		NodeTLSCA:      *nodeTLSCA,
	}

	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}

	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("config: at least one --node is required")
	}

	keySources := 0
	for _, set := range [][]string{cfg.SecretNames, cfg.LocalKeys, cfg.EnvKeys} {
		if len(set) > 0 {
			keySources++
		}
	}
	if keySources > 1 {
		return nil, fmt.Errorf("config: --secret-names, --local-keys, and --env-keys are mutually exclusive")
	}

	if *bitfinex {
		cfg.Sources = append(cfg.Sources, source.Source{Kind: source.Bitfinex, Label: "bitfinex"})
	}
	if *coinGecko {
		cfg.Sources = append(cfg.Sources, source.Source{Kind: source.CoinGecko, Label: "coingecko"})
	}
	if *coinMarketCap != "" {
		cfg.Sources = append(cfg.Sources, source.Source{Kind: source.CoinMarketCap, Label: "coinmarketcap", APIKey: *coinMarketCap})
	}
	if *liveCoinWatch != "" {
		cfg.Sources = append(cfg.Sources, source.Source{Kind: source.LiveCoinWatch, Label: "livecoinwatch", APIKey: *liveCoinWatch})
	}
	for i, url := range *testSources {
		cfg.Sources = append(cfg.Sources, source.Source{Kind: source.TestSource, Label: fmt.Sprintf("test-%d", i), URL: url})
	}

	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("config: at least one source must be enabled")
	}

	return cfg, nil
}

// applyEnvMirrors overlays <PREFIX>_<FLAG> environment variables onto any
// flag the caller didn't explicitly set, following the teacher's
// prefix-based env-lookup convention in internal/secrets/env.go.
func applyEnvMirrors(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		envKey := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(envKey); ok {
			fs.Set(f.Name, v)
		}
	})
}

// applyFileDefaults loads YAML defaults for any flag that is still at its
// zero/unset state, lowest-precedence per the spec's file<env<flag order.
func applyFileDefaults(path string, fs *pflag.FlagSet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fd fileDefaults
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if !fs.Changed("node") && len(fd.Nodes) > 0 {
		fs.Set("node", strings.Join(fd.Nodes, ","))
	}
	if !fs.Changed("update-interval") && fd.UpdateInterval > 0 {
		fs.Set("update-interval", strconv.Itoa(fd.UpdateInterval))
	}
	if !fs.Changed("pull-interval") && fd.PullInterval > 0 {
		fs.Set("pull-interval", strconv.Itoa(fd.PullInterval))
	}
	if !fs.Changed("prometheus-port") && fd.PrometheusPort > 0 {
		fs.Set("prometheus-port", strconv.Itoa(fd.PrometheusPort))
	}
	if !fs.Changed("max-rates-saved") && fd.MaxRatesSaved > 0 {
		fs.Set("max-rates-saved", strconv.Itoa(fd.MaxRatesSaved))
	}
	return nil
}

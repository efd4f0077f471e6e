package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/effluo/internal/common"
	"github.com/ternarybob/effluo/internal/exporter"
	"github.com/ternarybob/effluo/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths
	storeName    = flag.String("store", "", "Store name (overrides config)")
	accessToken  = flag.String("token", "", "Admin API access token (overrides config)")
	apiVersion   = flag.String("api-version", "", "Admin API version (overrides config)")
	queryText    = flag.String("query", "", "GraphQL query text (overrides config)")
	queryFile    = flag.String("query-file", "", "Path to a GraphQL query file (overrides config)")
	resumeHandle = flag.String("resume", "", "Resume polling an existing job by its id instead of submitting")
	outFile      = flag.String("out", "", "Write results to this file instead of stdout")
	noCache      = flag.Bool("no-cache", false, "Disable the result cache for this run")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Effluo version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// .env values feed the EFFLUO_* overrides applied during config load
	_ = godotenv.Load()

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("effluo.toml"); err == nil {
			configFiles = append(configFiles, "effluo.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyFlagOverrides(config)

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.InstallCrashHandler("")
	common.PrintBanner(common.GetVersion())

	if err := run(config); err != nil {
		logger.Error().Err(err).Msg("Export failed")
		os.Exit(1)
	}
}

func applyFlagOverrides(config *common.Config) {
	if *storeName != "" {
		config.Store.Name = *storeName
	}
	if *accessToken != "" {
		config.Store.AccessToken = *accessToken
	}
	if *apiVersion != "" {
		config.Store.APIVersion = *apiVersion
	}
	if *queryText != "" {
		config.Query = *queryText
	}
	if *queryFile != "" {
		config.QueryFile = *queryFile
	}
	if *noCache {
		config.Cache.Enabled = false
	}
}

func run(config *common.Config) error {
	defer common.RecoverWithCrashFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := exporter.NewFromConfig(config, logger)
	if err != nil {
		return err
	}
	defer service.Close()

	query, err := config.QueryText()
	if err != nil {
		return err
	}

	req := &models.ExportRequest{
		StoreName:   config.Store.Name,
		AccessToken: config.Store.AccessToken,
		APIVersion:  config.Store.APIVersion,
		Query:       query,
		Variables:   config.Variables,
	}

	var records []models.Record
	if *resumeHandle != "" {
		records, err = service.Resume(ctx, req, *resumeHandle)
	} else {
		records, err = service.Run(ctx, req)
	}
	if err != nil {
		return err
	}

	return writeRecords(records)
}

// writeRecords emits the result sequence as newline-delimited JSON,
// preserving stream order.
func writeRecords(records []models.Record) error {
	out := os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	logger.Info().Int("records", len(records)).Msg("Export written")
	return nil
}

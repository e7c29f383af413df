// scry/cmd/scryd/main.go

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"rgehrsitz/scry/pkg/compiler"
	"rgehrsitz/scry/pkg/features"
	"rgehrsitz/scry/pkg/logging"
	"rgehrsitz/scry/pkg/runtime"
	"rgehrsitz/scry/pkg/store"
)

// Config represents the application configuration
type Config struct {
	RulesPath         string
	IndexFile         string
	IndexName         string
	OutputFile        string
	LogLevel          string
	LogDestination    string
	RedisAddress      string
	RedisPassword     string
	RedisDB           int
	Workers           int
	PublishResults    bool
	DashboardEnabled  bool
	DashboardPort     int
	DashboardInterval int
}

// StoreFactory is an interface for creating a store
type StoreFactory interface {
	NewStore(addr, password string, db int) (store.Store, error)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, os.Args, &RealStoreFactory{}); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

func run(ctx context.Context, args []string, storeFactory StoreFactory) error {
	config, err := parseConfig(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := logging.ConfigureLogger(config.LogLevel, config.LogDestination); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	ruleset, err := loadRules(config.RulesPath)
	if err != nil {
		return err
	}

	index, st, err := loadIndex(config, storeFactory)
	if err != nil {
		return err
	}

	stats := runtime.NewStats()
	if config.DashboardEnabled {
		dashboard := runtime.NewDashboard(stats, config.DashboardPort, time.Duration(config.DashboardInterval)*time.Second)
		go dashboard.Start()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Info().Msg("Shutting down scryd")
			cancel()
		case <-ctx.Done():
		}
	}()

	pipeline := runtime.NewPipeline(ruleset, index,
		runtime.WithWorkers(config.Workers),
		runtime.WithStats(stats),
	)
	tree, err := pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("matching pass failed: %w", err)
	}

	payload, err := renderResults(tree, ruleset, stats.Snapshot().RunID)
	if err != nil {
		return err
	}

	if config.PublishResults && st != nil {
		if err := st.PublishResults(stats.Snapshot().RunID, payload); err != nil {
			logging.LogError(logging.Logger, err)
		}
	}

	if config.OutputFile != "" {
		return os.WriteFile(config.OutputFile, payload, 0o644)
	}
	fmt.Println(string(payload))
	return nil
}

func parseConfig(args []string) (*Config, error) {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	configFile := flags.String("config", "", "Path to configuration file")
	if err := flags.Parse(args[1:]); err != nil {
		return nil, err
	}

	viper.SetConfigType("json")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.output", "console")
	viper.SetDefault("rules.path", "rules")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("engine.workers", 0)
	viper.SetDefault("engine.publish_results", false)
	viper.SetDefault("dashboard.enabled", false)
	viper.SetDefault("dashboard.port", 8090)
	viper.SetDefault("dashboard.update_interval", 5)

	if *configFile == "" {
		viper.SetConfigName("scry_config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.scry")
		viper.AddConfigPath("/etc/scry")
	} else {
		viper.SetConfigFile(*configFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || *configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No configuration file found, using defaults")
	}

	return &Config{
		RulesPath:         viper.GetString("rules.path"),
		IndexFile:         viper.GetString("index.file"),
		IndexName:         viper.GetString("index.name"),
		OutputFile:        viper.GetString("output.file"),
		LogLevel:          viper.GetString("logging.level"),
		LogDestination:    viper.GetString("logging.output"),
		RedisAddress:      viper.GetString("redis.address"),
		RedisPassword:     viper.GetString("redis.password"),
		RedisDB:           viper.GetInt("redis.database"),
		Workers:           viper.GetInt("engine.workers"),
		PublishResults:    viper.GetBool("engine.publish_results"),
		DashboardEnabled:  viper.GetBool("dashboard.enabled"),
		DashboardPort:     viper.GetInt("dashboard.port"),
		DashboardInterval: viper.GetInt("dashboard.update_interval"),
	}, nil
}

// loadRules reads one rule file or every .yaml/.yml file in a
// directory, compiles everything, and builds the rule set. Compile
// failures are reported per rule; matching proceeds with the rest.
func loadRules(path string) (*compiler.RuleSet, error) {
	files, err := ruleFiles(path)
	if err != nil {
		return nil, err
	}

	var doc compiler.RulesDoc
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule file %s: %w", file, err)
		}
		parsed, err := compiler.Parse(data)
		if err != nil {
			logging.LogError(logging.Logger, err)
			continue
		}
		doc.Rules = append(doc.Rules, parsed.Rules...)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("no rules loaded from %s", path)
	}

	report := compiler.CompileAll(&doc)
	ruleset, setErrs := compiler.NewRuleSet(report.Rules)
	for _, cerr := range append(report.Errors, setErrs...) {
		log.Error().Str("rule", cerr.Rule).Msg(cerr.Error())
	}
	if ruleset.Len() == 0 {
		return nil, fmt.Errorf("no rules compiled from %s", path)
	}
	return ruleset, nil
}

func ruleFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("rules path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func loadIndex(config *Config, storeFactory StoreFactory) (*features.Index, store.Store, error) {
	if config.IndexFile != "" {
		data, err := os.ReadFile(config.IndexFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read index file: %w", err)
		}
		doc, err := features.ParseDocument(data)
		if err != nil {
			return nil, nil, err
		}
		index, err := doc.BuildIndex()
		if err != nil {
			return nil, nil, err
		}
		return index, nil, nil
	}

	if config.IndexName == "" {
		return nil, nil, fmt.Errorf("either index.file or index.name must be configured")
	}
	st, err := storeFactory.NewStore(config.RedisAddress, config.RedisPassword, config.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	index, err := st.LoadIndex(config.IndexName)
	if err != nil {
		return nil, nil, err
	}
	return index, st, nil
}

// matchDoc is the thin JSON rendering of one successful match; real
// rendering belongs to a downstream collaborator.
type matchDoc struct {
	Rule      string                 `json:"rule"`
	Scope     string                 `json:"scope"`
	Address   string                 `json:"address"`
	Locations []string               `json:"locations"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

type resultDoc struct {
	RunID   string     `json:"run_id"`
	Matches []matchDoc `json:"matches"`
}

func renderResults(tree *runtime.ResultTree, ruleset *compiler.RuleSet, runID string) ([]byte, error) {
	doc := resultDoc{RunID: runID, Matches: []matchDoc{}}
	for _, scope := range features.Scopes {
		for _, res := range tree.Successes(scope) {
			md := matchDoc{
				Rule:    res.Rule,
				Scope:   scope.String(),
				Address: res.Address.String(),
			}
			for _, loc := range res.Locations.Sorted() {
				md.Locations = append(md.Locations, loc.String())
			}
			if rule, ok := ruleset.Get(res.Rule); ok {
				md.Meta = rule.Meta
			}
			doc.Matches = append(doc.Matches, md)
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// RealStoreFactory implements StoreFactory
type RealStoreFactory struct{}

func (f *RealStoreFactory) NewStore(addr, password string, db int) (store.Store, error) {
	return store.NewRedisStore(addr, password, db)
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/movierec/internal/config"
)

type rootOptions struct {
	configPath string
	dataset    string
	driver     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "movierec",
		Short: "Content-based movie recommendations",
		Long: `movierec recommends movies similar to a given title by comparing
their titles, genres and overviews with TF-IDF vectors.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&opts.dataset, "dataset", "", "Dataset path (overrides config)")
	flags.StringVar(&opts.driver, "driver", "", "Dataset driver: csv or sqlite (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")

	cmd.AddCommand(
		newServeCmd(opts),
		newRecommendCmd(opts),
		newSearchCmd(opts),
		newImportCmd(opts),
	)
	return cmd
}

// load resolves configuration: defaults, then the YAML file, then env, then flags
func (o *rootOptions) load() (*config.Config, error) {
	var cfg *config.Config
	if o.configPath != "" {
		loaded, err := config.LoadFile(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}

	if o.dataset != "" {
		cfg.Dataset.Path = o.dataset
	}
	if o.driver != "" {
		cfg.Dataset.Driver = o.driver
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger; CLI commands log to stderr
func newLogger(cfg config.LogConfig, out io.Writer) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	return logger.WithField("service", "movierec"), nil
}

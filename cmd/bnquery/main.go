// Command bnquery fits a Bayesian network to a dataset, prints the estimated
// CPDs and the validation outcome, and answers a query by variable elimination.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	docopt "github.com/docopt/docopt-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/agenthands/bayesnet/internal/config"
	"github.com/agenthands/bayesnet/internal/core"
	"github.com/agenthands/bayesnet/internal/driver"
	"github.com/agenthands/bayesnet/internal/loader"
	"github.com/agenthands/bayesnet/internal/logging"
	"github.com/agenthands/bayesnet/internal/report"
)

const defaultConfig = "config/config.toml"

const usage = `bnquery fits a Bayesian network to data and queries it.

Usage:
  bnquery [options] [-t VAR]... [-e ASSIGNMENT]...
  bnquery export [options]
  bnquery publish [options]

Options:
  -c PATH --config PATH                TOML config file [default: config/config.toml].
  -d PATH --data PATH                  Data file, overriding the [data] path.
  -m METHOD --method METHOD            Estimator (mle, k2 or bdeu), overriding the config.
  -o ORDER --order ORDER               Elimination order (min_degree, min_fill or reverse_declaration).
  -t VAR --target VAR                  Query target. Repeat for a joint query.
  -e ASSIGNMENT --evidence ASSIGNMENT  Observed value as VAR=VALUE. Repeat for more.
  -q --quiet                           Do not print the CPDs.

Examples:
  # Reproduce P(Stock_Performance | Market_Trend=Bull) from the sample config.
  bnquery -t Stock_Performance -e Market_Trend=Bull

  # Print the fitted model, tables included, as YAML.
  bnquery export -m bdeu

  # Write the fitted model to the Memgraph instance named by MEMGRAPH_URI.
  bnquery publish
`

type options struct {
	Export   bool     `docopt:"export"`
	Publish  bool     `docopt:"publish"`
	Config   string   `docopt:"--config"`
	Data     string   `docopt:"--data"`
	Method   string   `docopt:"--method"`
	Order    string   `docopt:"--order"`
	Targets  []string `docopt:"--target"`
	Assigned []string `docopt:"--evidence"`
	Quiet    bool     `docopt:"--quiet"`
	evidence map[string]string
}

func parseArgs(args []string) (*options, error) {
	opts, err := docopt.ParseArgs(usage, args, "")
	if err != nil {
		return nil, fmt.Errorf("error parsing command-line arguments: %v", err)
	}
	var options options
	if err := opts.Bind(&options); err != nil {
		return nil, fmt.Errorf("error binding command-line arguments: %v\nfrom: %+v", err, opts)
	}
	options.evidence = make(map[string]string, len(options.Assigned))
	for _, a := range options.Assigned {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("invalid evidence %q, want VAR=VALUE", a)
		}
		if prev, dup := options.evidence[name]; dup && prev != value {
			return nil, fmt.Errorf("conflicting evidence for %s: %q and %q", name, prev, value)
		}
		options.evidence[name] = value
	}
	return &options, nil
}

// loadConfig reads the config file. A missing default file falls back to the
// built-in defaults so that flags alone are enough.
func loadConfig(options *options) (*config.Config, error) {
	cfg, err := config.Load(options.Config)
	if errors.Is(err, fs.ErrNotExist) && options.Config == defaultConfig {
		cfg = config.Default()
		cfg.ApplyEnv()
	} else if err != nil {
		return nil, err
	}
	if options.Data != "" {
		cfg.Data.Path = options.Data
	}
	if options.Method != "" {
		cfg.Estimator.Method = options.Method
	}
	if options.Order != "" {
		cfg.Inference.EliminationOrder = options.Order
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, options *options, w io.Writer) error {
	cfg, err := loadConfig(options)
	if err != nil {
		return err
	}
	if err := logging.Configure(nil, cfg.Log); err != nil {
		return err
	}

	def, err := loader.FromConfig(cfg.Network)
	if err != nil {
		return err
	}
	ds, err := core.LoadData(ctx, cfg.Data)
	if err != nil {
		return err
	}
	network, err := core.FromConfig(cfg, nil)
	if err != nil {
		return err
	}
	m, err := network.Fit(ctx, def, ds)
	if err != nil {
		return err
	}

	switch {
	case options.Export:
		return loader.WriteYAML(w, loader.Export(m))

	case options.Publish:
		if cfg.Memgraph.URI == "" {
			return fmt.Errorf("no Memgraph URI configured")
		}
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
		if err != nil {
			return fmt.Errorf("unable to connect to Memgraph: %w", err)
		}
		defer d.Close(ctx)
		if err := d.BuildIndices(ctx); err != nil {
			return err
		}
		network.Driver = d
		if err := network.Publish(ctx); err != nil {
			return err
		}
		fmt.Fprintf(w, "Published model %s\n", m.ID())
		return nil
	}

	if !options.Quiet {
		for _, cpd := range m.CPDs() {
			fmt.Fprintf(w, "\nCPD for %s:\n", cpd.Node.Name)
			report.WriteCPD(w, cpd)
		}
	}
	fmt.Fprintln(w)
	report.WriteValidation(w, network.Check())

	if len(options.Targets) == 0 {
		return nil
	}
	res, err := network.Query(ctx, options.Targets, options.evidence)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nInference result:\n")
	report.WriteDistribution(w, res.Distribution)
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Unable to read .env: %v", err)
	}
	options, err := parseArgs(os.Args[1:])
	if err != nil {
		logrus.Fatalf("Command failure: %v", err)
	}
	if err := run(context.Background(), options, os.Stdout); err != nil {
		logrus.Fatalf("Command failure: %v", err)
	}
}

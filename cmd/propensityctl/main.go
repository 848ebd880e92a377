// Command propensityctl lists the purchase propensity models and runs
// single predictions from the command line.
//
// Usage:
//
//	propensityctl models
//	propensityctl predict --model "Logistic Regression (No Cluster)" --age 41 --loyalty-program
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/urfave/cli/v2"

	app "github.com/okian/propensity/internal/app"
	"github.com/okian/propensity/internal/config"
	"github.com/okian/propensity/internal/domain/features"
	"github.com/okian/propensity/internal/domain/inference"
	"github.com/okian/propensity/internal/domain/registry"
	"github.com/okian/propensity/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "propensityctl",
		Usage:   "Predict whether a customer will make a purchase",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Writer:  out,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "models-dir",
				Usage:   "Directory scanned for model files (overrides config)",
				EnvVars: []string{"PROPENSITY_MODELS_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "error",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"PROPENSITYCTL_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "text",
				Usage:   "Output format (text, json)",
			},
		},

		Before: func(c *cli.Context) error {
			if err := logger.Init(logger.WithFormat("console")); err != nil {
				return err
			}
			return logger.SetLevelString(c.String("log-level"))
		},
		After: func(*cli.Context) error {
			return logger.Sync()
		},

		Commands: []*cli.Command{
			modelsCommand(),
			predictCommand(),
		},
	}
}

// =============================================================================
// MODELS COMMAND
// =============================================================================

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:   "models",
		Usage:  "List the models available for prediction",
		Action: runModels,
	}
}

func runModels(c *cli.Context) error {
	svc, err := startService(c)
	if err != nil {
		return err
	}
	defer svc.Stop()

	models, err := svc.Models(c.Context)
	if errors.Is(err, registry.ErrRegistryEmpty) {
		return describe(err, svc, "")
	}
	if err != nil {
		return err
	}

	if c.String("format") == "json" {
		return writeJSON(c.App.Writer, models)
	}
	for _, m := range models {
		cluster := "no cluster"
		if m.UsesCluster {
			cluster = "uses cluster"
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", m.Label, m.Identifier, cluster)
	}
	return nil
}

// =============================================================================
// PREDICT COMMAND
// =============================================================================

func predictCommand() *cli.Command {
	d := features.DefaultInputs()
	return &cli.Command{
		Name:  "predict",
		Usage: "Predict purchase propensity for one customer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "model",
				Aliases:  []string{"m"},
				Usage:    "Model label or file name",
				Required: true,
			},
			&cli.IntFlag{Name: "age", Value: d.Age, Usage: "Age (18-100)"},
			&cli.Float64Flag{Name: "annual-income", Value: d.AnnualIncome, Usage: "Annual income"},
			&cli.IntFlag{Name: "number-of-purchases", Value: d.NumberOfPurchases, Usage: "Number of purchases (0-100)"},
			&cli.Float64Flag{Name: "time-spent-on-website", Value: d.TimeSpentOnWebsite, Usage: "Time spent on website in minutes (0-300)"},
			&cli.Float64Flag{Name: "customer-tenure-years", Value: d.CustomerTenureYears, Usage: "Customer tenure in years (0-20)"},
			&cli.IntFlag{Name: "last-purchase-days-ago", Value: d.LastPurchaseDaysAgo, Usage: "Days since last purchase (0-365)"},
			&cli.IntFlag{Name: "discounts-availed", Value: d.DiscountsAvailed, Usage: "Discounts availed (0-50)"},
			&cli.IntFlag{Name: "session-count", Value: d.SessionCount, Usage: "Session count (1-50)"},
			&cli.IntFlag{Name: "customer-satisfaction", Value: d.CustomerSatisfaction, Usage: "Customer satisfaction (1-5)"},
			&cli.BoolFlag{Name: "loyalty-program", Usage: "Customer is a loyalty program member"},
			&cli.IntFlag{Name: "cluster", Value: d.Cluster, Usage: "Customer cluster (0-3), used by cluster models only"},
		},
		Action: runPredict,
	}
}

func runPredict(c *cli.Context) error {
	svc, err := startService(c)
	if err != nil {
		return err
	}
	defer svc.Stop()

	in := features.Inputs{
		Age:                  c.Int("age"),
		AnnualIncome:         c.Float64("annual-income"),
		NumberOfPurchases:    c.Int("number-of-purchases"),
		TimeSpentOnWebsite:   c.Float64("time-spent-on-website"),
		CustomerTenureYears:  c.Float64("customer-tenure-years"),
		LastPurchaseDaysAgo:  c.Int("last-purchase-days-ago"),
		DiscountsAvailed:     c.Int("discounts-availed"),
		SessionCount:         c.Int("session-count"),
		CustomerSatisfaction: c.Int("customer-satisfaction"),
		Cluster:              c.Int("cluster"),
	}
	if c.Bool("loyalty-program") {
		in.LoyaltyProgram = 1
	}
	for _, name := range []string{"annual-income", "time-spent-on-website", "customer-tenure-years"} {
		if x := c.Float64(name); math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("--%s must be a finite number", name)
		}
	}

	opt, err := svc.LoadModel(c.Context, c.String("model"))
	if err != nil {
		return describe(err, svc, opt.Identifier)
	}
	pred, err := svc.Predict(c.Context, app.PredictRequest{Model: opt.Label, Inputs: in})
	if err != nil {
		return describe(err, svc, opt.Identifier)
	}

	if c.String("format") == "json" {
		return writeJSON(c.App.Writer, pred)
	}
	printPrediction(c.App.Writer, pred)
	return nil
}

func printPrediction(w io.Writer, p app.Prediction) {
	fmt.Fprintf(w, "Model: %s\n", p.Model)
	if p.Likely {
		fmt.Fprintln(w, "Likely to Purchase")
	} else {
		fmt.Fprintln(w, "Unlikely to Purchase")
	}
	if p.Probability != nil {
		fmt.Fprintf(w, "Probability: %.2f\n", *p.Probability)
		fmt.Fprintf(w, "Confidence Score: %.2f%%\n", *p.Probability*100)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func startService(c *cli.Context) (*app.Service, error) {
	cfg, err := config.Load(c.Context)
	if err != nil {
		return nil, err
	}
	if dir := c.String("models-dir"); dir != "" {
		cfg.ModelsDir = dir
	}

	svc := app.New(
		app.WithConfig(cfg),
		app.WithLogger(logger.Named("propensityctl")),
	)
	if err := svc.Start(c.Context); err != nil {
		return nil, err
	}
	return svc, nil
}

// describe turns service errors into the messages the web form shows.
// identifier names the model file when one was resolved.
func describe(err error, svc *app.Service, identifier string) error {
	switch {
	case errors.Is(err, registry.ErrRegistryEmpty):
		return fmt.Errorf("No model files found in '%s' directory!", svc.ModelsDir()) //nolint:stylecheck // user-facing message
	case registry.IsCorrupt(err):
		return fmt.Errorf("Error loading model: %w\nFailed to load model: %s", err, identifier) //nolint:stylecheck // user-facing message
	case errors.Is(err, registry.ErrArtifactNotFound):
		return fmt.Errorf("Failed to load model: %s: %w", identifier, err) //nolint:stylecheck // user-facing message
	case inference.IsInvocation(err):
		return fmt.Errorf("Prediction failed: %w\nEnsure the feature names in the app match exactly what the model was trained on.", err) //nolint:stylecheck // user-facing message
	default:
		return err
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

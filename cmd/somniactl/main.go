// Command somniactl prepares, inspects and exercises model artifacts
// without starting the service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kartoza/somnia/internal/logging"
	"github.com/kartoza/somnia/internal/schema"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"

	flagFormat       = "format"
	flagDebug        = "debug"
	flagArtifactsDir = "artifacts-dir"
	flagModel        = "model"
	flagScaler       = "scaler"
	flagSeqLen       = "seq-len"
	flagFeatures     = "features"
)

var (
	version = "dev"

	logger = zap.NewNop()
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. urfave flags keep parse state, so every
// call creates fresh flags.
func newApp(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "somniactl",
		Version: version,
		Usage:   "Manage insomnia risk model artifacts",
		Writer:  w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagFormat,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "Prints verbose logs",
			},
		},
		Commands: []*cli.Command{
			initCommand(),
			inspectCommand(),
			convertCommand(),
			predictCommand(),
			installCommand(),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := "warn"
			if cmd.Bool(flagDebug) {
				level = "debug"
			}
			l, err := logging.New(level)
			if err != nil {
				return ctx, err
			}
			logger = l
			return ctx, nil
		},
	}
}

func artifactFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagArtifactsDir,
			Usage:   "Directory containing model artifacts",
			Value:   "./artifacts",
			Sources: cli.EnvVars("ARTIFACTS_DIR"),
		},
		&cli.StringFlag{
			Name:    flagModel,
			Usage:   "Model weights file (default <artifacts-dir>/insomnia_cnn_lstm_model.json)",
			Sources: cli.EnvVars("MODEL_PATH"),
		},
		&cli.StringFlag{
			Name:    flagScaler,
			Usage:   "Scaler file (default <artifacts-dir>/insomnia_scaler.yaml)",
			Sources: cli.EnvVars("SCALER_PATH"),
		},
	}
}

func schemaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:    flagSeqLen,
			Usage:   "Number of days per request",
			Value:   schema.DefaultSeqLen,
			Sources: cli.EnvVars("SEQ_LEN"),
		},
		&cli.StringFlag{
			Name:    flagFeatures,
			Usage:   "Comma separated feature names in model column order",
			Value:   strings.Join(schema.DefaultFeatureNames, ","),
			Sources: cli.EnvVars("FEATURE_NAMES"),
		},
	}
}

// schemaFromFlags builds the feature schema from --features and --seq-len.
func schemaFromFlags(cmd *cli.Command) (*schema.Schema, error) {
	var names []string
	for _, n := range strings.Split(cmd.String(flagFeatures), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return schema.New(names, int(cmd.Int64(flagSeqLen)))
}

func encode(cmd *cli.Command, v any) error {
	w := cmd.Root().Writer
	switch f := cmd.String(flagFormat); f {
	case formatYAML, "yml":
		return yaml.NewEncoder(w).Encode(v)
	case formatJSON:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(v)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kartoza/somnia/internal/artifacts"
	"github.com/kartoza/somnia/internal/models"
	"github.com/kartoza/somnia/internal/predict"
)

func predictCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "request",
			Usage:    "JSON file with {person_id, days}",
			Required: true,
		},
	}
	flags = append(flags, artifactFlags()...)
	flags = append(flags, schemaFlags()...)

	return &cli.Command{
		Name:   "predict",
		Usage:  "Run one prediction locally",
		Action: cmdPredict,
		Flags:  flags,
	}
}

func cmdPredict(ctx context.Context, cmd *cli.Command) error {
	data, err := os.ReadFile(cmd.String("request"))
	if err != nil {
		return err
	}
	var req models.PredictRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	s, err := schemaFromFlags(cmd)
	if err != nil {
		return err
	}
	b, err := predict.LoadBundle(ctx, s, artifacts.Paths{
		Dir:    cmd.String(flagArtifactsDir),
		Model:  cmd.String(flagModel),
		Scaler: cmd.String(flagScaler),
	})
	if err != nil {
		return err
	}

	resp, err := predict.NewService("somniactl", b, predict.WithLogger(logger)).Predict(ctx, req.PersonID, req.Days)
	if err != nil {
		return err
	}
	return encode(cmd, resp)
}

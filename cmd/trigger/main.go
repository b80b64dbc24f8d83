// Command trigger calls the matcher's scheduled endpoints. It is meant to be
// run from cron.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/agenthands/micromatch/internal/config"
	"github.com/agenthands/micromatch/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Setup(config.LogConfig{Level: os.Getenv("LOG_LEVEL")})

	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("Trigger failed")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Base URL of the matcher service",
			Value:   "http://localhost:8080",
			EnvVars: []string{"MATCH_HOST"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Shared secret sent as X-Cron-Token",
			EnvVars: []string{"CRON_TOKEN"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Overall request timeout",
			Value: 10 * time.Minute,
		},
	}

	return &cli.App{
		Name:  "trigger",
		Usage: "Trigger scheduled micromatch jobs",
		Flags: flags,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run one matching cycle",
				Action: func(c *cli.Context) error {
					return post(c, "/match/run")
				},
			},
			{
				Name:  "prompts",
				Usage: "Ask consenting participants for this week's interests",
				Action: func(c *cli.Context) error {
					return post(c, "/prompts/interests")
				},
			},
		},
	}
}

func post(c *cli.Context, path string) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	url := strings.TrimRight(c.String("host"), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if token := c.String("token"); token != "" {
		req.Header.Set("X-Cron-Token", token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Info().Str("path", path).Int("status", resp.StatusCode).RawJSON("response", body).Msg("Triggered")
	return nil
}

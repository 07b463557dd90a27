package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"transitions-api-go/services/transitions"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		log.Fatalf("transitionctl: %v", err)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "transitionctl",
		Usage: "Generate and fetch playlist transitions from a transitions server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of the transitions server",
				Value:   "http://localhost:4000",
				Sources: cli.EnvVars("TRANSITIONS_SERVER"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "X-API-Key sent with every request",
				Sources: cli.EnvVars("TRANSITIONS_API_KEY"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-request timeout",
				Value: 6 * time.Minute,
			},
		},
		Commands: []*cli.Command{
			generateCommand(out),
			statusCommand(out),
			downloadCommand(out),
		},
	}
}

func clientFrom(cmd *cli.Command) *Client {
	return NewClient(ClientOptions{
		BaseURL: cmd.String("server"),
		APIKey:  cmd.String("api-key"),
		Timeout: cmd.Duration("timeout"),
		Retries: cmd.Int("retries"),
		Backoff: cmd.Duration("backoff"),
	})
}

func generateCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Request a transition between two tracks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from-id", Usage: "Id of the outgoing track", Required: true},
			&cli.StringFlag{Name: "from-name", Usage: "Name of the outgoing track", Required: true},
			&cli.StringFlag{Name: "from-artist", Usage: "Artist of the outgoing track"},
			&cli.StringFlag{Name: "to-id", Usage: "Id of the incoming track", Required: true},
			&cli.StringFlag{Name: "to-name", Usage: "Name of the incoming track", Required: true},
			&cli.StringFlag{Name: "to-artist", Usage: "Artist of the incoming track"},
			&cli.IntFlag{Name: "seconds", Usage: "Transition length (3-8), server default when unset"},
			&cli.StringFlag{Name: "style", Usage: "ambient, lofi, house or cinematic"},
			&cli.FloatFlag{Name: "tempo", Usage: "Tempo override in [0,1]"},
			&cli.FloatFlag{Name: "energy", Usage: "Energy override in [0,1]"},
			&cli.FloatFlag{Name: "speed", Usage: "Speed override in [0,1]"},
			&cli.IntFlag{Name: "retries", Usage: "Retries for retryable failures", Value: 3},
			&cli.DurationFlag{Name: "backoff", Usage: "Initial retry backoff", Value: 2 * time.Second},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			result, err := clientFrom(cmd).Generate(ctx, requestFrom(cmd))
			if err != nil {
				return err
			}
			return printJSON(out, result)
		},
	}
}

// requestFrom builds a request, leaving unset optional flags to the server defaults
func requestFrom(cmd *cli.Command) transitions.Request {
	req := transitions.Request{
		TrackA: transitions.Track{ID: cmd.String("from-id"), Name: cmd.String("from-name"), Artist: cmd.String("from-artist")},
		TrackB: transitions.Track{ID: cmd.String("to-id"), Name: cmd.String("to-name"), Artist: cmd.String("to-artist")},
	}
	if cmd.IsSet("seconds") {
		seconds := cmd.Int("seconds")
		req.Seconds = &seconds
	}
	if cmd.IsSet("style") {
		style := transitions.Style(cmd.String("style"))
		req.Style = &style
	}

	var overrides transitions.Overrides
	float := func(name string) *float64 {
		if !cmd.IsSet(name) {
			return nil
		}
		v := cmd.Float(name)
		return &v
	}
	overrides.Tempo = float("tempo")
	overrides.Energy = float("energy")
	overrides.Speed = float("speed")
	if overrides.Tempo != nil || overrides.Energy != nil || overrides.Speed != nil {
		req.Overrides = &overrides
	}
	return req
}

func statusCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the generation status of a transition",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.StringArg("id")
			if id == "" {
				return fmt.Errorf("transition id is required")
			}
			st, err := clientFrom(cmd).Status(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(out, st)
		},
	}
}

func downloadCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Save the audio of a transition",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file, defaults to <id>.wav",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.StringArg("id")
			if id == "" {
				return fmt.Errorf("transition id is required")
			}
			path := cmd.String("output")
			if path == "" {
				path = id + ".wav"
			}

			f, err := os.Create(path)
			if err != nil {
				return err
			}
			n, err := clientFrom(cmd).Download(ctx, id, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(path)
				return err
			}
			fmt.Fprintf(out, "Saved %d bytes to %s\n", n, path)
			return nil
		},
	}
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

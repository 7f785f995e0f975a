// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/docqa/config"
	"github.com/poiesic/docqa/reembed"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine; the environment may already carry the API key.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docqa",
		Usage: "Question answering over a folder of documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   config.DefaultPath,
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Extract, chunk and embed every supported file below a directory",
				ArgsUsage: "[dir]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rebuild",
						Usage: "Remove the existing index before ingesting",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed documents",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags:     []cli.Flag{kFlag()},
			},
			{
				Name:      "retrieve",
				Usage:     "Show the chunks and images retrieved for a question",
				ArgsUsage: "<question>",
				Action:    retrieveCommand,
				Flags:     []cli.Flag{kFlag()},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP query API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (defaults to server.addr from the configuration)",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Ingest files added to the input directory while serving",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Rebuild the index into a new one with a different embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "target-backend",
						Usage: "Backend of the new index (memory, badger, sqlite)",
						Value: "memory",
					},
					&cli.StringFlag{
						Name:     "target-path",
						Usage:    "Location of the new index",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL (defaults to the configured host)",
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name for the new index",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N batches",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed batches",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:  "images",
				Usage: "Inspect and maintain extracted images",
				Subcommands: []*cli.Command{
					{
						Name:      "list",
						Usage:     "List stored images, optionally for one report",
						ArgsUsage: "[report-id]",
						Action:    imagesListCommand,
					},
					{
						Name:   "cleanup",
						Usage:  "Remove stored images the index no longer references",
						Action: imagesCleanupCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "dry-run",
								Usage: "Only count the images that would be removed",
							},
						},
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print index statistics",
				Action: statsCommand,
			},
		},
	}
}

func kFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "k",
		Usage: "Number of chunks to retrieve (defaults to retrieval.k from the configuration)",
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

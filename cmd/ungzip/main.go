/*
   Copyright The Ungzip Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/ungzip/ungzip/compression"
	"github.com/ungzip/ungzip/config"
	"github.com/ungzip/ungzip/version"
	"github.com/urfave/cli/v2"
)

const gzipSuffix = ".gz"

func main() {
	app := &cli.App{
		Name:      "ungzip",
		Usage:     "decompress a gzip file next to itself",
		ArgsUsage: "<filename.gz>",
		Version:   fmt.Sprintf("%s %s", version.Version, version.Revision),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "file to write the uncompressed data to. Defaults to the input path without its .gz suffix",
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "verify each member's CRC-32 and size trailer fields",
			},
			&cli.StringFlag{
				Name:  "config",
				Value: config.DefaultConfigPath,
				Usage: "path to the TOML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "logging level (trace, debug, info, warn, error)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ungzip: %v\n", err)
		os.Exit(1)
	}
}

func run(cliContext *cli.Context) error {
	if cliContext.NArg() != 1 {
		return errors.New("expecting exactly one gzip file argument")
	}

	cfg, err := config.NewConfigFromToml(cliContext.String("config"))
	if err != nil {
		return err
	}
	if cliContext.IsSet("log-level") {
		cfg.LogLevel = cliContext.String("log-level")
	}
	if cliContext.Bool("verify") {
		cfg.VerifyChecksums = true
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	ctx := context.Background()

	input := cliContext.Args().First()
	if len(input) <= len(gzipSuffix) || !strings.HasSuffix(input, gzipSuffix) {
		return fmt.Errorf("expecting filename with %s extension, got %q", gzipSuffix, input)
	}
	outPath := cliContext.String("output")
	if outPath == "" {
		outPath = strings.TrimSuffix(input, gzipSuffix)
	}

	// The decoder works over the whole compressed file in memory.
	buf, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s into memory: %w", input, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to open %s to write to: %w", outPath, err)
	}

	var opts []compression.DecompressOption
	if cfg.VerifyChecksums {
		opts = append(opts, compression.WithChecksumVerification())
	}

	written, err := compression.DecompressGzip(ctx, buf, out, opts...)
	if err != nil {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("failed to decompress %s: %w", input, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("failed to finish writing %s: %w", outPath, err)
	}

	log.G(ctx).WithFields(log.Fields{
		"input":  input,
		"output": outPath,
		"bytes":  written,
	}).Debug("decompression complete")
	fmt.Printf("Successfully decompressed %d bytes into %s\n", written, outPath)
	return nil
}

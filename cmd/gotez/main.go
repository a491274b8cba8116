//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoTez.
//
// GoTez is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoTez is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoTez. If not, see https://www.gnu.org/licenses/.

// Command gotez runs a registered DAG through a session and reports the
// outcome.
//
//	gotez [flags] <dag-name> [config-file]
//
// Exit codes: 0 the DAG succeeded, 1 usage or configuration error, 2 the
// DAG finished but did not succeed, 3 any other failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aaronlmathis/gotez"
	"github.com/aaronlmathis/gotez/config"
	"github.com/aaronlmathis/gotez/core"
	"github.com/aaronlmathis/gotez/examples/testdags"
	"github.com/aaronlmathis/gotez/examples/wordcount"
	"github.com/aaronlmathis/gotez/observability"
)

// Exit codes.
const (
	exitOK      = 0
	exitUsage   = 1
	exitFailed  = 2
	exitRuntime = 3
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntime)
	}
}

// properties collects repeated -D key=value flags.
type properties map[string]string

func (p properties) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p properties) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	p[k] = v
	return nil
}

func newRegistry() (*gotez.Registry, error) {
	reg := gotez.NewRegistry()
	if err := wordcount.Register(reg); err != nil {
		return nil, err
	}
	if err := testdags.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// run holds the command logic so tests can call it without exiting.
func run(ctx context.Context, out, errW io.Writer, args []string) error {
	flags := flag.NewFlagSet("gotez", flag.ContinueOnError)
	flags.SetOutput(errW)
	flags.Usage = func() {
		fmt.Fprint(errW, `
GoTez - submit a DAG to a cluster session and wait for it to finish.

Usage:
  gotez [options] <dag-name> [config-file]

Options:
`)
		flags.PrintDefaults()
	}

	backendFlag := flags.String("backend", "", "Override the backend type from the config file: 'memory' or 'http'.")
	logLevel := flags.String("log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	logFormat := flags.String("log-format", "text", "Log output format: 'text' or 'json'.")
	list := flags.Bool("list", false, "List the registered DAGs and exit.")
	props := properties{}
	flags.Var(props, "D", "Set a run property as key=value. Repeatable; overrides the config file.")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}

	switch strings.ToLower(*logLevel) {
	case "debug", "info", "warn", "error":
	default:
		return &ExitError{Code: exitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn' or 'error'"}
	}
	format := strings.ToLower(*logFormat)
	if format != "text" && format != "json" {
		return &ExitError{Code: exitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logger := newLogger(strings.ToLower(*logLevel), format, errW)

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	if *list {
		for _, name := range reg.Names() {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	if flags.NArg() < 1 || flags.NArg() > 2 {
		flags.Usage()
		return &ExitError{Code: exitUsage, Message: "expected <dag-name> [config-file]"}
	}
	dagName := flags.Arg(0)

	cfg, err := config.Load(flags.Arg(1))
	if err != nil {
		return classify(err)
	}
	if *backendFlag != "" {
		cfg.Backend.Type = *backendFlag
		if err := cfg.Validate(); err != nil {
			return classify(err)
		}
	}
	for k, v := range props {
		cfg.Properties[k] = v
	}

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	b, err := cfg.OpenBackend(logger)
	if err != nil {
		return classify(err)
	}
	fs, err := cfg.OpenStorage(ctx)
	if err != nil {
		return classify(err)
	}
	recorder, err := cfg.OpenRecorder(ctx, logger)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn("failed to close history recorder", "error", err)
		}
	}()

	runner, err := gotez.NewRunner().
		WithBackend(b).
		WithFileSystem(fs).
		WithCredentials(cfg.CredentialProvider()).
		WithRecorder(recorder).
		WithSessionConfig(cfg.Session).
		WithRegistry(reg).
		WithOutput(out).
		WithLogger(logger).
		Build()
	if err != nil {
		return classify(err)
	}

	res, err := runner.Run(ctx, dagName, cfg.Properties)
	if err != nil {
		return classify(err)
	}
	if res.Succeeded {
		fmt.Fprintln(out, "Succeeded.")
		return nil
	}
	fmt.Fprintln(out, "Failed.")
	for _, diag := range res.Diagnostics {
		fmt.Fprintln(out, diag)
	}
	return &ExitError{Code: exitFailed, Message: fmt.Sprintf("dag %s finished in state %s", res.DAGName, res.State)}
}

// classify maps an error to its exit code.
func classify(err error) error {
	var cfgErr *core.ConfigurationError
	if errors.As(err, &cfgErr) {
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}
	return &ExitError{Code: exitRuntime, Message: err.Error()}
}

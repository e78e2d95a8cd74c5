// Command remcp copies a file between the local machine and an remcp
// server. Exactly one of the two endpoints is remote, written host:path:
//
//	remcp /local/file host:/remote/file    # upload
//	remcp host:/remote/file /local/file    # download
//
// Interrupted transfers leave a .part marker next to the local file and
// resume automatically on the next invocation with the same arguments.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/remcp/client"
	"github.com/opd-ai/remcp/protocol"
)

type clientConfig struct {
	port     int
	retries  int
	backoff  time.Duration
	logLevel string
	src      string
	dst      string
}

func parseConfig(fs *flag.FlagSet, args []string) (clientConfig, error) {
	cfg := clientConfig{
		port:     protocol.DefaultPort,
		retries:  client.DefaultMaxAttempts,
		backoff:  client.DefaultBackoff,
		logLevel: "warn",
	}

	if v := os.Getenv("REMCP_LOG_LEVEL"); v != "" {
		cfg.logLevel = v
	}

	fs.IntVar(&cfg.port, "port", cfg.port, "server TCP port")
	fs.IntVar(&cfg.retries, "retries", cfg.retries, "maximum transfer attempts")
	fs.DurationVar(&cfg.backoff, "backoff", cfg.backoff, "pause between attempts")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	rest := fs.Args()
	if len(rest) != 2 {
		return cfg, fmt.Errorf("usage: remcp [flags] <source> <destination>")
	}
	cfg.src, cfg.dst = rest[0], rest[1]

	srcRemote := client.IsRemote(cfg.src)
	dstRemote := client.IsRemote(cfg.dst)
	if srcRemote == dstRemote {
		return cfg, fmt.Errorf("exactly one of source and destination must be remote (host:path)")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logrus.SetLevel(level)

	c := client.New(
		client.WithPort(cfg.port),
		client.WithPolicy(client.Policy{
			MaxAttempts: cfg.retries,
			Backoff:     cfg.backoff,
			Retryable:   client.RetryableError,
		}),
	)

	if client.IsRemote(cfg.src) {
		host, remotePath := client.SplitEndpoint(cfg.src)
		if err := c.Get(host, remotePath, cfg.dst); err != nil {
			fmt.Fprintf(os.Stderr, "GET operation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("GET operation succeeded.")
		return
	}

	host, remotePath := client.SplitEndpoint(cfg.dst)
	if err := c.Put(cfg.src, host, remotePath); err != nil {
		fmt.Fprintf(os.Stderr, "PUT operation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("PUT operation succeeded.")
}

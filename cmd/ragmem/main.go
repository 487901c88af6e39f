package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragmem/internal/config"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{logOut: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if c.app != nil {
		if cerr := c.app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "ragmem: %v\n", err)
		return 1
	}
	return 0
}

// cli carries state shared by all subcommands. The app is assembled lazily
// so that --help and flag errors never touch the stores.
type cli struct {
	cfgPath string
	logOut  io.Writer
	app     *app
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragmem",
		Short:         "Retrieval memory over named document collections",
		Long:          `Ingest text and PDF documents into named vector collections and retrieve the passages most similar to a query.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "Path to YAML config file (default ./config.yaml, then ~/.config/ragmem/config.yaml)")
	root.AddCommand(
		c.ingestCmd(),
		c.queryCmd(),
		c.collectionsCmd(),
		c.removeCmd(),
		c.tuiCmd(),
	)
	return root
}

// open loads the config, applies mutate and assembles the app once.
func (c *cli) open(mutate ...func(*config.AppConfig)) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	var (
		cfg *config.AppConfig
		err error
	)
	if c.cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(c.cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, m := range mutate {
		m(cfg)
	}
	a, err := newApp(cfg, c.logOut)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

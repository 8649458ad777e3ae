package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli"

	"github.com/rollup-prover/prover-server/common"
	"github.com/rollup-prover/prover-server/config"
	"github.com/rollup-prover/prover-server/log"
	"github.com/rollup-prover/prover-server/node"
)

const (
	flagCfg = "cfg"
)

func cmdRun(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagCfg))
	if err != nil {
		if err := cli.ShowAppHelp(c); err != nil {
			panic(err)
		}
		return common.Wrap(fmt.Errorf("error parsing flags and config: %w", err))
	}
	log.Init(cfg.Log.Level, cfg.Log.Out)

	innerNode, err := node.NewNode(cfg)
	if err != nil {
		return common.Wrap(fmt.Errorf("error starting node: %w", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ossig := make(chan os.Signal, 1)
		signal.Notify(ossig, os.Interrupt)
		<-ossig
		log.Info("Received Interrupt Signal")
		cancel()
	}()

	return innerNode.Start(ctx)
}

func main() {
	app := cli.NewApp()
	app.Name = "prover-server"
	app.Version = "v1"

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     flagCfg,
			Usage:    "Configuration `FILE`",
			Required: false,
		},
	}

	app.Commands = []cli.Command{
		{
			Name:    "run",
			Aliases: []string{},
			Usage:   "Run the witness preparation server",
			Action:  cmdRun,
			Flags:   flags,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Printf("\nError: %v\n", common.Wrap(err))
		os.Exit(1)
	}
}

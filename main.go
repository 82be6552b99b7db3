package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	cmdPeer := &cli.Command{
		Name:  "peer",
		Usage: "commands for running a kvrpc peer",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "c", Usage: "peer config file path", Required: true},
		},
		Action: func(c *cli.Context) error {
			return StartPeerFromFile(c.Path("c"))
		},
	}
	cmdClient := &cli.Command{
		Name:  "client",
		Usage: "commands for starting an interactive client",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "c", Usage: "client config file path", Required: true},
		},
		Action: func(c *cli.Context) error {
			return StartClientFromFile(c.Path("c"))
		},
	}
	app := &cli.App{
		Commands: []*cli.Command{
			cmdPeer,
			cmdClient,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

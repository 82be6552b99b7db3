// Package clicmd holds presentation helpers for the root CLI commands:
// a coloured startup banner, shared by the "peer" and "client"
// subcommands in main.go.
package clicmd

import (
	"fmt"

	figure "github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

// PrintBanner prints a figlet-style banner naming the running role
// (e.g. "peer" or "client") and its node id.
func PrintBanner(role string, nodeID string) {
	figure.NewFigure("kvrpc", "", true).Print()
	c := color.New(color.FgCyan, color.Bold)
	c.Printf("  %s starting as node %q\n\n", role, nodeID)
	fmt.Println()
}

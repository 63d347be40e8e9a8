package main

import (
	"os"

	"github.com/spf13/cobra"

	"synapsenet/cmd/cli"
)

func main() {
	root := &cobra.Command{
		Use:   "synapsenet",
		Short: "SynapseNet node: P2P substrate for decentralized semantic knowledge grains",
	}
	cli.RegisterNode(root)
	cli.RegisterPeer(root)
	cli.RegisterQuery(root)
	cli.RegisterPoE(root)
	cli.RegisterGrain(root)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

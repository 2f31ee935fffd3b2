package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SamirCosta/RedeSocial/internal/config"
	"github.com/SamirCosta/RedeSocial/internal/node"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "redesocial-server",
	Short: "Replicated social network node",
	Long: `redesocial-server runs one node of the replicated social network:
an application server (repositories, replication, election, clock sync)
or, with is.balancer=true, the front-door load balancer.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a node from a properties file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		n, err := node.New(cfg)
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}

		// Best-effort teardown on SIGINT/SIGTERM.
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Printf("[Main] received %v, shutting down", sig)
		n.Stop()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "server1.properties", "path to the node properties file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error: %v", err)
	}
}

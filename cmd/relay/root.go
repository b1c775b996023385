package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "TelHawk delivery event relay",
	Long: `relay receives delivery events from Logic App workflows and forwards
them to Application Insights as LogicAppEvent custom events.

Run "relay serve" as an Azure Functions custom handler or as a standalone
HTTP service.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/telhawk/relay/config.yaml)")
}

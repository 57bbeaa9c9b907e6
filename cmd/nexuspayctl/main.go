// Package main содержит утилиту оператора для проверки банковских реквизитов и расчёта комиссий.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nexuspayctl",
		Short:         "NexusPay operator tools: field validation and fee quotes",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(maskCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(currenciesCmd())
	rootCmd.AddCommand(countriesCmd())

	return rootCmd
}

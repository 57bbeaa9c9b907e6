package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

// errInvalid возвращается, когда проверяемое значение не прошло правило.
var errInvalid = errors.New("invalid")

type check struct {
	valid  func(string) bool
	format func(string) string
}

var checks = map[string]check{
	"iban":    {valid: validation.IsValidIBAN, format: validation.FormatIBAN},
	"swift":   {valid: validation.IsValidSWIFT, format: validation.FormatSWIFT},
	"amount":  {valid: validation.IsValidAmount},
	"account": {valid: validation.IsValidAccountNumber},
	"email":   {valid: validation.IsValidEmail},
	"staffid": {valid: validation.IsValidStaffID},
}

func validateCmd() *cobra.Command {
	kinds := make([]string, 0, len(checks))
	for k := range checks {
		kinds = append(kinds, k)
	}

	return &cobra.Command{
		Use:       "validate [kind] [value]",
		Short:     "Validate a value with the client rules (iban, swift, amount, account, email, staffid)",
		Args:      cobra.ExactArgs(2),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := strings.ToLower(args[0])
			c, ok := checks[kind]
			if !ok {
				return fmt.Errorf("unknown kind %q", args[0])
			}

			value := args[1]
			if !c.valid(value) {
				return fmt.Errorf("%s %q: %w", kind, value, errInvalid)
			}
			if c.format != nil {
				value = c.format(value)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid %s: %s\n", kind, value)
			return nil
		},
	}
}

func maskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mask [account]",
		Short: "Mask an account number the way saved beneficiaries are shown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), validation.MaskAccountNumber(args[0]))
			return nil
		},
	}
}

func quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote [amount]",
		Short: "Estimate transfer and exchange fees for an amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			currency, _ := cmd.Flags().GetString("currency")
			asJSON, _ := cmd.Flags().GetBool("json")

			currency = strings.ToUpper(currency)
			if !validation.IsValidCurrency(currency) {
				return fmt.Errorf("currency %q: %w", currency, errInvalid)
			}
			cents, err := validation.ParseAmountCents(args[0])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[0], err)
			}

			q := validation.EstimateFees(cents, currency)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}

			fmt.Fprintf(out, "Amount:       %s%s\n", q.Symbol, validation.FormatCents(q.AmountCents))
			fmt.Fprintf(out, "Transfer fee: %s%s\n", q.Symbol, validation.FormatCents(q.TransferFee))
			fmt.Fprintf(out, "Exchange fee: %s%s\n", q.Symbol, validation.FormatCents(q.ExchangeFee))
			fmt.Fprintf(out, "Total:        %s%s %s\n", q.Symbol, validation.FormatCents(q.TotalCents), q.Currency)
			return nil
		},
	}

	cmd.Flags().StringP("currency", "c", "USD", "Payment currency")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func currenciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "currencies",
		Short: "List supported payment currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range validation.SupportedCurrencies {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c, validation.CurrencySymbol(c))
			}
			return nil
		},
	}
}

func countriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List beneficiary countries supported for SWIFT transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range validation.SwiftCountries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Code, c.Name)
			}
			return nil
		},
	}
}

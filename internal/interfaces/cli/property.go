package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fairclaim/protest-engine/pkg/client"
	"github.com/fairclaim/protest-engine/pkg/money"
)

// NewPropertyCmd creates the property command group.
func NewPropertyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "property",
		Short: "Look up county appraisal records",
		Long:  "Fetch the appraisal record for a 13-digit account number and discover comparable candidates in its neighborhood.",
	}

	cmd.AddCommand(newPropertyGetCmd())
	cmd.AddCommand(newPropertyComparablesCmd())

	return cmd
}

func newPropertyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <account>",
		Short: "Fetch the appraisal record for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			prop, err := cliCtx.Client.Properties().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.OutputFormat == "text" {
				printPropertySummary(cmd, prop)
				return nil
			}
			return PrintResult(cmd, prop)
		},
	}
}

func newPropertyComparablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comparables <account>",
		Short: "List adjusted comparable candidates for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			groups, err := cliCtx.Client.Properties().Comparables(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.OutputFormat == "json" {
				return PrintResult(cmd, groups)
			}

			printComparableGroup(cmd, "Closest by age", groups.ClosestByAge)
			printComparableGroup(cmd, "Closest by square footage", groups.ClosestBySqFt)
			printComparableGroup(cmd, "Lowest by adjusted value", groups.LowestByValue)
			return nil
		},
	}
}

func printPropertySummary(cmd *cobra.Command, prop *client.Property) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account:          %s\n", prop.Account)
	fmt.Fprintf(out, "Address:          %s\n", prop.SiteAddress)
	fmt.Fprintf(out, "Neighborhood:     %s\n", prop.NeighborhoodCode)
	fmt.Fprintf(out, "Year Improved:    %d\n", prop.YearImproved)
	fmt.Fprintf(out, "Building SqFt:    %d\n", prop.BuildingSqFt)
	fmt.Fprintf(out, "Land Value:       %s\n", money.FormatUSD(prop.LandValue))
	fmt.Fprintf(out, "Building Value:   %s\n", money.FormatUSD(prop.BuildingValue))
	fmt.Fprintf(out, "Market Value:     %s\n", money.FormatUSD(prop.TotalMarketValue))
	fmt.Fprintf(out, "Appraised Value:  %s\n", money.FormatUSD(prop.TotalAppraisedValue))
}

func printComparableGroup(cmd *cobra.Command, title string, adjustments []client.ComparableAdjustment) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%d)\n", title, len(adjustments))

	headers := []string{"ACCOUNT", "ADDRESS", "YEAR", "SQFT", "ADJ VALUE", "ADJ PSF"}
	rows := make([][]string, 0, len(adjustments))
	for _, adj := range adjustments {
		rows = append(rows, []string{
			adj.Candidate.Account,
			adj.Candidate.Address,
			strconv.Itoa(adj.Candidate.YearImproved),
			strconv.Itoa(adj.Candidate.BuildingSqFt),
			money.FormatUSD(adj.TotalAdjustedValue),
			adj.AdjustedPSF.StringFixed(2),
		})
	}
	fmt.Fprint(out, FormatTable(headers, rows))
	fmt.Fprintln(out)
}

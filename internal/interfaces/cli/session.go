package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairclaim/protest-engine/pkg/client"
	"github.com/fairclaim/protest-engine/pkg/money"
)

// NewSessionCmd creates the session command group.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Drive a protest workflow session",
		Long: "Start a protest session and walk it through the staged pipeline:\n" +
			"review details, comparable analysis, extra features, deductions,\n" +
			"market adjustment, and report generation.",
	}

	cmd.AddCommand(
		newSessionStartCmd(),
		newSessionShowCmd(),
		newSessionListCmd(),
		newSessionAdvanceCmd(),
		newSessionBackCmd(),
		newSessionAnalyzeCmd(),
		newSessionDeductCmd(),
		newSessionMarketCmd(),
		newSessionProposedValueCmd(),
	)

	return cmd
}

func newSessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <account>",
		Short: "Start a protest session for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			s, err := cliCtx.Client.Sessions().Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("session %s started at stage %s", s.ID, s.Stage))
			return nil
		},
	}
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			s, err := cliCtx.Client.Sessions().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.OutputFormat == "json" {
				return PrintResult(cmd, s)
			}
			printSessionSummary(cmd, s)
			return nil
		},
	}
}

func newSessionListCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			sessions, err := cliCtx.Client.Sessions().List(cmd.Context(), account)
			if err != nil {
				return err
			}

			if cliCtx.OutputFormat == "json" {
				return PrintResult(cmd, sessions)
			}

			headers := []string{"ID", "STAGE", "FINALIZED", "UPDATED"}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{
					s.ID,
					s.Stage,
					fmt.Sprintf("%t", s.Finalized),
					s.UpdatedAt.Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), FormatTable(headers, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "13-digit account number [REQUIRED]")
	cmd.MarkFlagRequired("account")

	return cmd
}

func newSessionAdvanceCmd() *cobra.Command {
	var toStage string

	cmd := &cobra.Command{
		Use:   "advance <session-id>",
		Short: "Advance a session to the next stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			s, err := cliCtx.Client.Sessions().Advance(cmd.Context(), args[0], toStage)
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("session %s is now at stage %s", s.ID, s.Stage))
			return nil
		},
	}

	cmd.Flags().StringVar(&toStage, "to", "", "expected target stage (asserted server-side)")

	return cmd
}

func newSessionBackCmd() *cobra.Command {
	var toStage string

	cmd := &cobra.Command{
		Use:   "back <session-id>",
		Short: "Move a session back to the previous stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			s, err := cliCtx.Client.Sessions().Back(cmd.Context(), args[0], toStage)
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("session %s is now at stage %s", s.ID, s.Stage))
			return nil
		},
	}

	cmd.Flags().StringVar(&toStage, "to", "", "expected target stage (asserted server-side)")

	return cmd
}

func newSessionAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <session-id>",
		Short: "Run comparable analysis on the session's subject property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			s, err := cliCtx.Client.Sessions().RunAnalysis(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.OutputFormat == "json" {
				return PrintResult(cmd, s)
			}

			if s.Analysis != nil {
				printAnalysis(cmd, s.Analysis)
			}
			if s.Assessment != nil {
				printAssessment(cmd, s.Assessment)
			}
			return nil
		},
	}
}

func newSessionDeductCmd() *cobra.Command {
	var (
		category    string
		description string
		amount      string
	)

	cmd := &cobra.Command{
		Use:   "deduct <session-id>",
		Short: "Add a condition deduction to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			s, err := cliCtx.Client.Sessions().AddDeduction(cmd.Context(), args[0], client.DeductionRequest{
				Category:    category,
				Description: description,
				Amount:      amount,
			})
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("deduction added; session now carries %d deduction(s)", len(s.Deductions)))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "deduction category (foundation, roof, plumbing, ...) [REQUIRED]")
	cmd.Flags().StringVar(&description, "description", "", "condition description [REQUIRED]")
	cmd.Flags().StringVar(&amount, "amount", "", "deduction amount in dollars [REQUIRED]")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("description")
	cmd.MarkFlagRequired("amount")

	return cmd
}

func newSessionMarketCmd() *cobra.Command {
	var rate float64

	cmd := &cobra.Command{
		Use:   "market <session-id>",
		Short: "Set the claimed market decline rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			s, err := cliCtx.Client.Sessions().SetMarketAdjustment(cmd.Context(), args[0], rate)
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("market decline rate set to %.2f%% on session %s", rate, s.ID))
			return nil
		},
	}

	cmd.Flags().Float64Var(&rate, "rate", 0, "market decline rate in percent [REQUIRED]")
	cmd.MarkFlagRequired("rate")

	return cmd
}

func newSessionProposedValueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proposed-value <session-id>",
		Short: "Compute the session's current proposed total value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			value, err := cliCtx.Client.Sessions().ProposedValue(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Proposed Total Value: %s\n", money.FormatUSD(value))
			return nil
		},
	}
}

func printSessionSummary(cmd *cobra.Command, s *client.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:    %s\n", s.ID)
	fmt.Fprintf(out, "Account:    %s\n", s.Account)
	fmt.Fprintf(out, "Stage:      %s\n", s.Stage)
	fmt.Fprintf(out, "Finalized:  %t\n", s.Finalized)
	fmt.Fprintf(out, "Deductions: %d\n", len(s.Deductions))
	if s.MarketAdjustmentPercent != nil {
		fmt.Fprintf(out, "Market Decline: %.2f%%\n", *s.MarketAdjustmentPercent)
	}
	if s.Assessment != nil {
		printAssessment(cmd, s.Assessment)
	}
}

func printAnalysis(cmd *cobra.Command, analysis *client.AnalysisData) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Top Comparables (%d)\n", len(analysis.TopComparables))

	headers := []string{"RANK", "ACCOUNT", "ADDRESS", "ADJ VALUE", "ADJ PSF"}
	rows := make([][]string, 0, len(analysis.TopComparables))
	for _, comp := range analysis.TopComparables {
		rows = append(rows, []string{
			fmt.Sprintf("%d", comp.Rank),
			comp.Account,
			comp.Address,
			money.FormatUSD(comp.AdjustedValue),
			comp.AdjustedPSF.StringFixed(2),
		})
	}
	fmt.Fprint(out, FormatTable(headers, rows))

	for _, excl := range analysis.Excluded {
		fmt.Fprintf(out, "Excluded %s: %s\n", excl.Account, excl.Note)
	}
}

func printAssessment(cmd *cobra.Command, assessment *client.MedianAssessment) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Median Comparable Value: %s (%d comparables)\n",
		money.FormatUSD(assessment.MedianValue), assessment.ComparableCount)
	fmt.Fprintf(out, "Potential Savings:       %s\n", money.FormatUSD(assessment.PotentialSavings))
	if !assessment.Reliable {
		fmt.Fprintln(out, "Note: fewer comparables than recommended; assessment may be unreliable")
	}
}

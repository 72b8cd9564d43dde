package main

import (
	"context"
	"fmt"

	"redeemdesk/internal/redeem"

	"github.com/spf13/cobra"
)

var collateralsCmd = &cobra.Command{
	Use:   "collaterals",
	Short: "List the pool's collaterals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		collaterals, err := a.ctrl.LoadCollaterals(ctx)
		if err != nil {
			return fmt.Errorf("load collaterals: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), collaterals)
	},
}

var approveAmount string

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Allow the pool to burn an amount of Dollar",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.OnAmountChange(approveAmount); err != nil {
			return err
		}
		out, err := a.ctrl.OnApprove(ctx)
		return report(cmd, out, err)
	},
}

var redeemFlags struct {
	collateral uint64
	amount     string
	govMin     string
	colMin     string
	collect    bool
}

var redeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Redeem Dollar for collateral, optionally collecting once confirmed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if _, err := a.ctrl.LoadCollaterals(ctx); err != nil {
			return fmt.Errorf("load collaterals: %w", err)
		}
		if err := applyRedeemForm(a.ctrl); err != nil {
			return err
		}
		if redeemFlags.collect {
			a.startChain(ctx, nil)
		}

		out, err := a.ctrl.OnSubmitRedeem(ctx)
		if err := report(cmd, out, err); err != nil || !redeemFlags.collect {
			return err
		}

		waitCtx, cancelWait := context.WithTimeout(ctx, a.cfg.Redeem.FinalityTimeout)
		defer cancelWait()
		a.log.WithField("depth", redeem.ConfirmationDepth).Info("waiting for redemption to confirm")
		if err := a.ctrl.WaitCollectable(waitCtx); err != nil {
			return fmt.Errorf("wait for confirmations: %w", err)
		}
		out, err = a.ctrl.OnCollectRedemption(ctx)
		return report(cmd, out, err)
	},
}

func applyRedeemForm(ctrl *redeem.Controller) error {
	if err := ctrl.OnCollateralChange(redeemFlags.collateral); err != nil {
		return err
	}
	if err := ctrl.OnAmountChange(redeemFlags.amount); err != nil {
		return err
	}
	if err := ctrl.OnGovernanceMinChange(redeemFlags.govMin); err != nil {
		return err
	}
	return ctrl.OnCollateralMinChange(redeemFlags.colMin)
}

// report prints whatever outcome exists and passes err through.
func report(cmd *cobra.Command, out redeem.Outcome, err error) error {
	if out.Status != "" {
		if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
			return perr
		}
	}
	return err
}

func init() {
	approveCmd.Flags().StringVar(&approveAmount, "amount", "", "Dollar amount to approve")
	_ = approveCmd.MarkFlagRequired("amount")

	redeemCmd.Flags().Uint64Var(&redeemFlags.collateral, "collateral", 0, "collateral index")
	redeemCmd.Flags().StringVar(&redeemFlags.amount, "amount", "", "Dollar amount to redeem")
	redeemCmd.Flags().StringVar(&redeemFlags.govMin, "gov-min", "", "minimum governance tokens out (v2 only)")
	redeemCmd.Flags().StringVar(&redeemFlags.colMin, "col-min", "", "minimum collateral out (v2 only)")
	redeemCmd.Flags().BoolVar(&redeemFlags.collect, "collect", false, "wait for confirmations and collect the payout")
	_ = redeemCmd.MarkFlagRequired("amount")
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	appcredits "github.com/bryanwahyu/iaccessible/internal/application/credits"
	"github.com/bryanwahyu/iaccessible/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/iaccessible/internal/middleware"
)

var grantFlags struct {
	note   string
	create bool
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and top up credit balances",
}

var grantCmd = &cobra.Command{
	Use:   "grant <userId> <amount>",
	Short: "Add credits to a user's balance",
	Args:  cobra.ExactArgs(2),
	RunE:  runGrant,
}

var balanceCmd = &cobra.Command{
	Use:   "balance <userId>",
	Short: "Show a user's balance and recent transactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(grantCmd, balanceCmd)

	grantCmd.Flags().StringVar(&grantFlags.note, "note", "", "description stored on the ledger entry")
	grantCmd.Flags().BoolVar(&grantFlags.create, "create", true, "create the user profile if it does not exist")
}

func creditsService(cmd *cobra.Command) (*appcredits.Service, func(), error) {
	conn, dialect, err := openStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	svc := appcredits.NewService(sqlstore.NewLedger(conn, dialect), logger)
	return svc, func() { _ = conn.Close() }, nil
}

func runGrant(cmd *cobra.Command, args []string) error {
	uid := args[0]
	if err := middleware.ValidateUserID(uid); err != nil {
		return err
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[1], err)
	}

	svc, closeFn, err := creditsService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	tx, err := svc.Grant(cmd.Context(), uid, amount, grantFlags.note, grantFlags.create)
	if err != nil {
		return err
	}
	fmt.Printf("Granted %d credits to %s. Balance: %d\n", amount, uid, tx.BalanceAfter)
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	uid := args[0]
	svc, closeFn, err := creditsService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	u, err := svc.Balance(cmd.Context(), uid)
	if err != nil {
		return err
	}
	fmt.Printf("User:    %s\nBalance: %d\n", u.ID, u.CreditBalance)

	txs, err := svc.History(cmd.Context(), uid, 10)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Println("No transactions found.")
		return nil
	}

	fmt.Printf("\n%-19s  %8s  %8s  %s\n", "DATE", "AMOUNT", "BALANCE", "DESCRIPTION")
	for _, t := range txs {
		fmt.Printf("%-19s  %8d  %8d  %s\n", t.TransactionDate.Format("2006-01-02 15:04:05"), t.Amount, t.BalanceAfter, t.Description)
	}
	return nil
}

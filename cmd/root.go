package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"solmate-cli/session"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	figure "github.com/common-nighthawk/go-figure"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "solmate-cli",
	Short: "Solmate CLI plays the Solmate points game on Solana.",
	Long:  `An interactive command-line interface to manage your Solmate player account, points and wallet.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			os.Setenv(configFileEnv, configPath)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), startLoad, runInteractive)
	},
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	var limit int
	leaderboardCmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "List players by points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), startProbe, func(ctx context.Context, a *app) error {
				return showLeaderboard(ctx, a, limit)
			})
		},
	}
	leaderboardCmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum number of players")

	var historyLimit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent program activity for this player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), startProbe, func(ctx context.Context, a *app) error {
				return showHistory(ctx, a, historyLimit)
			})
		},
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", defaultListLimit, "maximum number of transactions")

	identityCmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the locally stored player identity",
	}
	identityCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the stored identity; a new one is created on next start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), startProbe, func(ctx context.Context, a *app) error {
				return resetIdentity(a)
			})
		},
	})

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show connection, identity and score",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), startLoad, func(ctx context.Context, a *app) error {
					showPlayer(a)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "init-player [name]",
			Short: "Create the player account",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), startProbe, func(ctx context.Context, a *app) error {
					name := a.cfg.DefaultName
					if len(args) == 1 {
						name = args[0]
					}
					return initializePlayer(ctx, a, name)
				})
			},
		},
		&cobra.Command{
			Use:   "init-program",
			Short: "Submit the program-level Initialize instruction",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), startProbe, initializeProgram)
			},
		},
		&cobra.Command{
			Use:   "add-points N",
			Short: "Add N points to the player",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := parseAmount(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd.Context(), startLoad, func(ctx context.Context, a *app) error {
					return addPoints(ctx, a, amount)
				})
			},
		},
		&cobra.Command{
			Use:   "spend-points N",
			Short: "Spend N of the player's points",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := parseAmount(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd.Context(), startLoad, func(ctx context.Context, a *app) error {
					return spendPoints(ctx, a, amount)
				})
			},
		},
		&cobra.Command{
			Use:   "balance",
			Short: "Show the fee payer's SOL balance",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), startProbe, viewBalance)
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the player API and metrics over HTTP",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return withApp(ctx, startLoad, func(ctx context.Context, a *app) error {
					return newAPIServer(a).serve(ctx, a.cfg.ListenAddr)
				})
			},
		},
		leaderboardCmd,
		historyCmd,
		identityCmd,
	)
}

// withApp loads config, wires the app, starts it in the given mode and runs fn.
// An unreachable cluster at startup is reported but does not stop fn.
func withApp(ctx context.Context, mode startupMode, fn func(context.Context, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed to close app", zap.Error(err))
		}
	}()

	return runApp(ctx, a, mode, fn)
}

func runApp(ctx context.Context, a *app, mode startupMode, fn func(context.Context, *app) error) error {
	if err := a.start(ctx, mode); err != nil && !errors.Is(err, session.ErrAccountNotFound) {
		fmt.Println(warningStyle.Render(fmt.Sprintf("Startup: %v", err)))
	}
	return fn(ctx, a)
}

func runInteractive(ctx context.Context, a *app) error {
	myFigure := figure.NewFigure("SOLMATE", "larry3d", true)
	fmt.Println(titleStyle.Render(myFigure.String()))

	fmt.Printf("\n---\n")
	fmt.Println(promptStyle.Render(fmt.Sprintf("Player: %s", a.session.PlayerKey())))
	fmt.Println(promptStyle.Render(fmt.Sprintf("Wallet: %s", a.session.WalletKey())))
	fmt.Println(promptStyle.Render(fmt.Sprintf("RPC:    %s", a.cfg.Endpoint())))
	if !a.outcome.Persisted() {
		fmt.Println(warningStyle.Render("Identity could not be stored; this session uses a temporary player."))
	}
	fmt.Printf("---\n\n")

	for {
		menu := &survey.Select{
			Message: promptStyle.Render("Choose an action:"),
			Options: []string{
				"View Player",
				"Add Points",
				"Spend Points",
				"Initialize Player",
				"Reconnect",
				"Leaderboard",
				"History",
				"Wallet Management",
				"Reset Identity",
				"Exit",
			},
			Help: "Use the arrow keys to navigate, and press Enter to select.",
		}

		var choice string
		if err := survey.AskOne(menu, &choice); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}

		var err error
		switch choice {
		case "View Player":
			showPlayer(a)
		case "Add Points":
			err = promptAmount("Enter points to add:", func(n uint64) error { return addPoints(ctx, a, n) })
		case "Spend Points":
			err = promptAmount("Enter points to spend:", func(n uint64) error { return spendPoints(ctx, a, n) })
		case "Initialize Player":
			name := a.cfg.DefaultName
			survey.AskOne(&survey.Input{Message: "Enter player name:", Default: name}, &name)
			err = initializePlayer(ctx, a, name)
		case "Reconnect":
			reconnect(ctx, a)
		case "Leaderboard":
			err = showLeaderboard(ctx, a, defaultListLimit)
		case "History":
			err = showHistory(ctx, a, defaultListLimit)
		case "Wallet Management":
			err = handleWalletManagement(ctx, a)
		case "Reset Identity":
			err = resetIdentity(a)
		case "Exit":
			fmt.Println("Exiting Solmate CLI.")
			return nil
		}
		if err != nil {
			fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ %v", err)))
		}
		fmt.Println()
	}
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid amount %q: must be a positive integer", s)
	}
	return n, nil
}

func promptAmount(message string, fn func(uint64) error) error {
	amountStr := ""
	survey.AskOne(&survey.Input{Message: message}, &amountStr, survey.WithValidator(survey.Required))
	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	return fn(amount)
}

func showPlayer(a *app) {
	fmt.Println(titleStyle.Render("\n🎮 Player"))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Address:    %s", a.session.PlayerKey())))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Connection: %s", a.session.ConnectionState())))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Account:    %s", a.session.AccountState())))
	player := a.session.Player()
	if player == nil {
		fmt.Println(promptStyle.Render("   No player account loaded."))
		return
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Name:       %s", player.Name)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Points:     %d", a.session.Score())))
	fmt.Println(infoStyle.Render(fmt.Sprintf("   Authority:  %s", player.Authority)))
}

func printReceipt(receipt *session.Receipt) {
	switch receipt.Confirmation {
	case session.Confirmed:
		fmt.Println(titleStyle.Render("\n✅ Transaction Confirmed!"))
	case session.ConfirmTimedOut:
		fmt.Println(warningStyle.Render("\n⏳ Transaction sent, confirmation still pending."))
	default:
		fmt.Println(warningStyle.Render(fmt.Sprintf("\n❌ Transaction failed: %v", receipt.Err)))
	}
	fmt.Printf("   Transaction Signature: %s\n", receipt.Signature)
}

func addPoints(ctx context.Context, a *app, amount uint64) error {
	fmt.Println(promptStyle.Render(fmt.Sprintf("\nAdding %d points... Please wait.", amount)))
	receipt, err := a.session.AddPoints(ctx, amount)
	if err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}
	printReceipt(receipt)
	fmt.Printf("   Score: %d\n", a.session.Score())
	return nil
}

func spendPoints(ctx context.Context, a *app, amount uint64) error {
	fmt.Println(promptStyle.Render(fmt.Sprintf("\nSpending %d points... Please wait.", amount)))
	receipt, err := a.session.SpendPoints(ctx, amount)
	if err != nil {
		return fmt.Errorf("failed to spend points: %w", err)
	}
	printReceipt(receipt)
	fmt.Printf("   Score: %d\n", a.session.Score())
	return nil
}

func initializePlayer(ctx context.Context, a *app, name string) error {
	fmt.Println(promptStyle.Render(fmt.Sprintf("\nCreating player %q... Please wait.", name)))
	player, err := a.session.InitializePlayer(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to initialize player: %w", err)
	}
	fmt.Println(titleStyle.Render("\n✅ Player Ready!"))
	fmt.Printf("   %s with %d points\n", player.Name, player.Points)
	return nil
}

func initializeProgram(ctx context.Context, a *app) error {
	fmt.Println(promptStyle.Render("\nInitializing program... Please wait."))
	receipt, err := a.session.InitializeProgram(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize program: %w", err)
	}
	printReceipt(receipt)
	return nil
}

func reconnect(ctx context.Context, a *app) {
	fmt.Println(promptStyle.Render("\nReconnecting..."))
	if !a.session.Reconnect(ctx) {
		fmt.Println(warningStyle.Render("Cluster is still unreachable."))
		return
	}
	fmt.Println(titleStyle.Render("✅ Connected"))
}

func showLeaderboard(ctx context.Context, a *app, limit int) error {
	if limit <= 0 || limit > maxListLimit {
		return fmt.Errorf("limit must be between 1 and %d", maxListLimit)
	}
	fmt.Println(promptStyle.Render("\nFetching players... Please wait."))
	entries, err := a.client.FetchAllPlayers(ctx, limit, a.log)
	if err != nil {
		return fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	fmt.Println(titleStyle.Render("\n🏆 Leaderboard"))
	if len(entries) == 0 {
		fmt.Println(promptStyle.Render("   No players yet."))
	}
	for i, e := range entries {
		marker := " "
		if e.Address.Equals(a.session.PlayerKey()) {
			marker = "*"
		}
		fmt.Println(infoStyle.Render(fmt.Sprintf("%s %3d. %-24s %10d  %s", marker, i+1, e.Name, e.Points, e.Address)))
	}
	return nil
}

func showHistory(ctx context.Context, a *app, limit int) error {
	if limit <= 0 || limit > maxListLimit {
		return fmt.Errorf("limit must be between 1 and %d", maxListLimit)
	}
	fmt.Println(promptStyle.Render("\nFetching history... Please wait."))
	events, err := a.client.GetHistory(ctx, a.session.PlayerKey(), limit, a.log)
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}
	fmt.Println(titleStyle.Render("\n📜 History"))
	if len(events) == 0 {
		fmt.Println(promptStyle.Render("   No transactions found."))
	}
	for _, ev := range events {
		detail := ""
		switch {
		case ev.Name != "":
			detail = ev.Name
		case ev.Amount > 0:
			detail = strconv.FormatUint(ev.Amount, 10)
		}
		status := "ok"
		if ev.Failed {
			status = "failed"
		}
		fmt.Println(infoStyle.Render(fmt.Sprintf("   %s  %-18s %-12s %-6s %s",
			ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type, detail, status, ev.Signature)))
	}
	return nil
}

func resetIdentity(a *app) error {
	fmt.Println(warningStyle.Render("\n⚠️ WARNING: RESETTING YOUR PLAYER IDENTITY ⚠️"))
	fmt.Println(promptStyle.Render("The current player account and its points will no longer be reachable from this device."))
	confirm := false
	survey.AskOne(&survey.Confirm{Message: "Are you absolutely sure?", Default: false}, &confirm)
	if !confirm {
		fmt.Println(promptStyle.Render("\nReset cancelled."))
		return nil
	}
	if err := a.identity.Reset(); err != nil {
		return fmt.Errorf("failed to reset identity: %w", err)
	}
	fmt.Println(titleStyle.Render("\n✅ Identity cleared. A new player is created on next start."))
	return nil
}

func handleWalletManagement(ctx context.Context, a *app) error {
	fmt.Println()
	menu := &survey.Select{
		Message: promptStyle.Render("Wallet Management:"),
		Options: []string{"View Address", "View Balance", "Export Wallet (UNSAFE)", "Back to Main Menu"},
	}
	var choice string
	survey.AskOne(menu, &choice)

	switch choice {
	case "View Address":
		viewAddress(a.feePayer)
	case "View Balance":
		return viewBalance(ctx, a)
	case "Export Wallet (UNSAFE)":
		exportWallet(a.feePayer)
	}
	return nil
}

func viewAddress(signer solana.PrivateKey) {
	fmt.Println(titleStyle.Render("\n🔑 Your Current Wallet Address:"))
	fmt.Println(signer.PublicKey().String())
}

func viewBalance(ctx context.Context, a *app) error {
	fmt.Println(promptStyle.Render("\nChecking balance... Please wait."))
	balanceLamports, err := a.client.GetBalance(ctx, a.feePayer.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	balanceSOL := float64(balanceLamports) / float64(solana.LAMPORTS_PER_SOL)
	fmt.Println(titleStyle.Render("\n💰 Your Wallet Balance:"))
	fmt.Printf("   %.9f SOL\n", balanceSOL)
	return nil
}

func exportWallet(signer solana.PrivateKey) {
	fmt.Println(warningStyle.Render("\n⚠️ WARNING: EXPORTING YOUR PRIVATE KEY ⚠️"))
	fmt.Println(promptStyle.Render("Sharing your private key can result in the permanent loss of your funds."))
	confirm := false
	prompt := &survey.Confirm{Message: "Are you absolutely sure?", Default: false}
	survey.AskOne(prompt, &confirm)
	if !confirm {
		fmt.Println(promptStyle.Render("\nExport cancelled."))
		return
	}
	fmt.Println(titleStyle.Render("\n🔐 Your Private Key (Base58):"))
	fmt.Println(signer.String())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(warningStyle.Render(err.Error()))
		os.Exit(1)
	}
}

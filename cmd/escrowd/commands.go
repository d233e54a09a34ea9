package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jdziat/agent-escrow/pkg/admin"
	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/security"
	"github.com/jdziat/agent-escrow/pkg/settlement"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath()
			if err := writeDefaultConfig(flags.home, path, force); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.home, flags.configPath())
			if err != nil {
				return err
			}
			cfg.Oracle.APIKey = redact(cfg.Oracle.APIKey)
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "<redacted>"
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "new <file>",
			Short: "Generate a secp256k1 key and print its address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := newKeyFile(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), security.Address(key).Hex())
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <file>",
			Short: "Print the address of a key file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := loadKey(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), security.Address(key).Hex())
				return nil
			},
		},
	)
	return cmd
}

// withApp opens the daemon's object graph for a one-shot command.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(context.Context, *app) error) error {
	cfg, log, err := flags.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func adminCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Owner-gated oracle settings",
	}
	var keyFile string
	cmd.PersistentFlags().StringVar(&keyFile, "key", "", "owner key file")

	caller := func() (common.Address, error) {
		if keyFile == "" {
			return common.Address{}, fmt.Errorf("--key is required")
		}
		key, err := loadKey(keyFile)
		if err != nil {
			return common.Address{}, err
		}
		return security.Address(key), nil
	}

	// setter builds a command applying one argument as the owner.
	setter := func(use, short string, apply func(context.Context, *admin.Admin, common.Address, string) (*core.Settings, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				owner, err := caller()
				if err != nil {
					return err
				}
				return withApp(cmd, flags, func(ctx context.Context, a *app) error {
					st, err := apply(ctx, a.admin, owner, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), st)
				})
			},
		}
	}

	var defaults admin.Defaults
	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Record the owner and initial oracle settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := caller()
			if err != nil {
				return err
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				d := defaults
				if d.Router == "" && a.simulator != nil {
					d.Router = a.simulator.Router().Hex()
				}
				st, err := a.admin.Bootstrap(ctx, owner, d)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	bootstrap.Flags().StringVar(&defaults.Router, "router", "", "trusted router address (default: simulator router)")
	bootstrap.Flags().Uint64Var(&defaults.SubscriptionID, "subscription", 1, "oracle subscription id")
	bootstrap.Flags().Uint32Var(&defaults.CallbackGasLimit, "gas-limit", 300000, "callback gas limit")
	bootstrap.Flags().StringVar(&defaults.NetworkID, "network", "fun-local-1", "oracle network id")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				st, err := a.admin.Settings(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}

	cmd.AddCommand(
		bootstrap,
		show,
		setter("set-router <address>", "Replace the trusted router",
			func(ctx context.Context, a *admin.Admin, owner common.Address, v string) (*core.Settings, error) {
				if err := security.ValidateAddress(v); err != nil {
					return nil, err
				}
				return a.SetRouter(ctx, owner, common.HexToAddress(v))
			}),
		setter("set-subscription <id>", "Replace the oracle subscription id",
			func(ctx context.Context, a *admin.Admin, owner common.Address, v string) (*core.Settings, error) {
				n, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("subscription id: %w", err)
				}
				return a.SetSubscriptionID(ctx, owner, n)
			}),
		setter("set-gas-limit <gas>", "Replace the callback gas limit",
			func(ctx context.Context, a *admin.Admin, owner common.Address, v string) (*core.Settings, error) {
				n, err := strconv.ParseUint(v, 10, 32)
				if err != nil {
					return nil, fmt.Errorf("gas limit: %w", err)
				}
				return a.SetCallbackGasLimit(ctx, owner, uint32(n))
			}),
		setter("set-network <id>", "Replace the oracle network id",
			func(ctx context.Context, a *admin.Admin, owner common.Address, v string) (*core.Settings, error) {
				return a.SetNetworkID(ctx, owner, v)
			}),
		setter("transfer-ownership <address>", "Hand the owner role to another address",
			func(ctx context.Context, a *admin.Admin, owner common.Address, v string) (*core.Settings, error) {
				if err := security.ValidateAddress(v); err != nil {
					return nil, err
				}
				return a.TransferOwnership(ctx, owner, common.HexToAddress(v))
			}),
	)
	return cmd
}

func providerCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage the local provider directory",
	}

	var (
		p        core.Provider
		price    string
		inactive bool
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Register or replace a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(price)
			if err != nil {
				return err
			}
			entry := p
			entry.Price = amount
			entry.Active = !inactive
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.directory.Put(ctx, &entry); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entry)
			})
		},
	}
	put.Flags().Uint64Var(&p.ID, "id", 0, "provider id")
	put.Flags().StringVar(&p.Name, "name", "", "display name")
	put.Flags().StringVar(&p.PayoutAddress, "payout", "", "payout address")
	put.Flags().StringVar(&p.Endpoint, "endpoint", "", "agent endpoint passed to the compute source")
	put.Flags().StringVar(&price, "price", "0", "price per job")
	put.Flags().BoolVar(&inactive, "inactive", false, "register the provider as inactive")
	_ = put.MarkFlagRequired("id")
	_ = put.MarkFlagRequired("payout")

	list := &cobra.Command{
		Use:   "list",
		Short: "List providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				providers, err := a.directory.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), providers)
			})
		},
	}

	cmd.AddCommand(put, list)
	return cmd
}

func bankCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Fund and inspect bank accounts",
	}

	var ref string
	deposit := &cobra.Command{
		Use:   "deposit <address> <amount>",
		Short: "Credit an account from outside the bank",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := security.NormalizeAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return err
			}
			if ref == "" {
				ref = "deposit-" + uuid.NewString()
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.bank.Deposit(ctx, ref, common.HexToAddress(addr), amount); err != nil {
					return err
				}
				return printBalance(ctx, cmd, a, common.HexToAddress(addr))
			})
		},
	}
	deposit.Flags().StringVar(&ref, "ref", "", "idempotency key (default is random)")

	balance := &cobra.Command{
		Use:   "balance [address]",
		Short: "Show an account balance (default is the escrow account)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := settlement.EscrowAccount
			if len(args) == 1 {
				normalized, err := security.NormalizeAddress(args[0])
				if err != nil {
					return err
				}
				addr = common.HexToAddress(normalized)
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				return printBalance(ctx, cmd, a, addr)
			})
		},
	}

	cmd.AddCommand(deposit, balance)
	return cmd
}

func printBalance(ctx context.Context, cmd *cobra.Command, a *app, addr common.Address) error {
	bal, err := a.bank.Balance(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", addr.Hex(), bal)
	return nil
}

func settleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "Settle every due transfer once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				n, err := settlement.NewWorker(a.settler).RunOnce(ctx)
				if err != nil {
					return err
				}
				summary, err := a.storage.EscrowSummary(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "settled %d transfers\n", n)
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

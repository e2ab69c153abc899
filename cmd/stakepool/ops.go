package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"stakeScope/internal/config"
	"stakeScope/internal/derive"
	"stakeScope/internal/model"
	"stakeScope/internal/staking"
)

type transferView struct {
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type receiptView struct {
	Pool       model.PoolRecord      `json:"pool"`
	Position   *model.PositionRecord `json:"position,omitempty"`
	Amount     uint64                `json:"amount"`
	RewardPaid uint64                `json:"reward_paid"`
	Transfers  []transferView        `json:"transfers"`
}

func newReceiptView(rcpt staking.Receipt) receiptView {
	view := receiptView{
		Pool:       rcpt.Pool.Record(),
		Amount:     rcpt.Amount,
		RewardPaid: rcpt.RewardPaid,
		Transfers:  make([]transferView, 0, len(rcpt.Transfers)),
	}
	if rcpt.Position != nil {
		rec := rcpt.Position.Record()
		view.Position = &rec
	}
	for _, t := range rcpt.Transfers {
		view.Transfers = append(view.Transfers, transferView{
			Asset:  t.Asset.Hex(),
			From:   t.From.Hex(),
			To:     t.To.Hex(),
			Amount: t.Amount,
		})
	}
	return view
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staking pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req staking.CreatePoolRequest
			var err error
			if req.Creator, err = addressFlag(cmd.Flags(), "creator"); err != nil {
				return err
			}
			if req.StakeAsset, err = addressFlag(cmd.Flags(), "stake-asset"); err != nil {
				return err
			}
			if req.RewardAsset, err = addressFlag(cmd.Flags(), "reward-asset"); err != nil {
				return err
			}
			req.StakeCap, _ = cmd.Flags().GetUint64("stake-cap")

			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				rcpt, err := rt.svc.CreatePool(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, newReceiptView(rcpt))
			})
		},
	}
	cmd.Flags().String("creator", "", "creator address")
	cmd.Flags().String("stake-asset", "", "stake token address")
	cmd.Flags().String("reward-asset", "", "reward token address")
	cmd.Flags().Uint64("stake-cap", 0, "maximum total stake; 0 blocks all deposits")
	_ = cmd.MarkFlagRequired("stake-cap")
	return cmd
}

func newCreditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credit",
		Short: "Credit tokens to a custody account",
		Long: "Credit tokens to a custody account. Without --account the pool's reward vault " +
			"is credited, which is how reward top-ups enter a pool.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, _ := cmd.Flags().GetUint64("amount")
			account, _ := cmd.Flags().GetString("account")
			asset, _ := cmd.Flags().GetString("asset")
			poolFlag, _ := cmd.Flags().GetString("pool")

			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				var ref, token common.Address
				switch {
				case account != "":
					var err error
					if ref, err = config.ParseAddress(account); err != nil {
						return err
					}
					if token, err = config.ParseAddress(asset); err != nil {
						return err
					}
				case poolFlag != "":
					pool, err := lookupPool(ctx, rt, poolFlag)
					if err != nil {
						return err
					}
					ref, token = pool.RewardVault, pool.RewardAsset
				default:
					return errors.New("either --account with --asset or --pool is required")
				}

				if err := rt.svc.Credit(ctx, ref, token, amount); err != nil {
					return err
				}
				acct, err := rt.svc.Account(ctx, ref)
				if err != nil {
					return err
				}
				return printJSON(cmd, acct)
			})
		},
	}
	cmd.Flags().String("pool", "", "pool id whose reward vault is credited")
	cmd.Flags().String("account", "", "custody account address")
	cmd.Flags().String("asset", "", "asset of the custody account")
	cmd.Flags().Uint64("amount", 0, "amount to credit")
	return cmd
}

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Stake tokens into a pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStake(cmd, func(ctx context.Context, svc *staking.Service, req staking.StakeRequest) (staking.Receipt, error) {
				return svc.DepositStake(ctx, req)
			})
		},
	}
	stakeFlags(cmd.Flags())
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw staked tokens from a pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStake(cmd, func(ctx context.Context, svc *staking.Service, req staking.StakeRequest) (staking.Receipt, error) {
				return svc.WithdrawStake(ctx, req)
			})
		},
	}
	stakeFlags(cmd.Flags())
	return cmd
}

func stakeFlags(flags *pflag.FlagSet) {
	flags.String("pool", "", "pool id")
	flags.String("participant", "", "participant address")
	flags.String("stake-account", "", "stake token account, defaults to the participant's wallet")
	flags.String("reward-account", "", "reward token account, defaults to the participant's wallet")
	flags.Uint64("amount", 0, "stake amount")
}

type stakeFunc func(context.Context, *staking.Service, staking.StakeRequest) (staking.Receipt, error)

func runStake(cmd *cobra.Command, op stakeFunc) error {
	flags := cmd.Flags()
	participant, err := addressFlag(flags, "participant")
	if err != nil {
		return err
	}
	amount, _ := flags.GetUint64("amount")
	poolFlag, _ := flags.GetString("pool")

	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		pool, err := lookupPool(ctx, rt, poolFlag)
		if err != nil {
			return err
		}
		req := staking.StakeRequest{
			Pool:        pool.ID,
			Participant: participant,
			Amount:      amount,
		}
		if req.StakeAccount, err = walletFlag(flags, "stake-account", participant, pool.StakeAsset); err != nil {
			return err
		}
		if req.RewardAccount, err = walletFlag(flags, "reward-account", participant, pool.RewardAsset); err != nil {
			return err
		}

		rcpt, err := op(ctx, rt.svc, req)
		if err != nil {
			return err
		}
		return printJSON(cmd, newReceiptView(rcpt))
	})
}

func newClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim pending reward",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			participant, err := addressFlag(flags, "participant")
			if err != nil {
				return err
			}
			poolFlag, _ := flags.GetString("pool")

			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				pool, err := lookupPool(ctx, rt, poolFlag)
				if err != nil {
					return err
				}
				req := staking.ClaimRequest{Pool: pool.ID, Participant: participant}
				if req.RewardAccount, err = walletFlag(flags, "reward-account", participant, pool.RewardAsset); err != nil {
					return err
				}
				rcpt, err := rt.svc.ClaimReward(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, newReceiptView(rcpt))
			})
		},
	}
	cmd.Flags().String("pool", "", "pool id")
	cmd.Flags().String("participant", "", "participant address")
	cmd.Flags().String("reward-account", "", "reward token account, defaults to the participant's wallet")
	return cmd
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fold new reward into a pool's accumulator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			poolFlag, _ := cmd.Flags().GetString("pool")
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				id, err := config.ParseHash(poolFlag)
				if err != nil {
					return err
				}
				rcpt, err := rt.svc.SyncRewards(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, newReceiptView(rcpt))
			})
		},
	}
	cmd.Flags().String("pool", "", "pool id")
	return cmd
}

type positionView struct {
	Position      model.PositionRecord `json:"position"`
	PendingReward uint64               `json:"pending_reward"`
}

type showView struct {
	Pool        model.PoolRecord `json:"pool"`
	StakeVault  model.Account    `json:"stake_vault"`
	RewardVault model.Account    `json:"reward_vault"`
	Positions   []positionView   `json:"positions,omitempty"`
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a pool and optionally some participants' positions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			poolFlag, _ := cmd.Flags().GetString("pool")
			participants, err := addressesFlag(cmd.Flags(), "participants")
			if err != nil {
				return err
			}

			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				pool, err := lookupPool(ctx, rt, poolFlag)
				if err != nil {
					return err
				}
				view := showView{Pool: pool.Record()}
				if view.StakeVault, err = rt.svc.Account(ctx, pool.StakeVault); err != nil {
					return err
				}
				if view.RewardVault, err = rt.svc.Account(ctx, pool.RewardVault); err != nil {
					return err
				}

				for _, participant := range participants {
					pos, err := rt.svc.Position(ctx, pool.ID, participant)
					if err != nil {
						return err
					}
					pending, err := rt.svc.PendingReward(ctx, pool.ID, participant)
					if err != nil {
						return err
					}
					view.Positions = append(view.Positions, positionView{Position: pos.Record(), PendingReward: pending})
				}
				return printJSON(cmd, view)
			})
		},
	}
	cmd.Flags().String("pool", "", "pool id")
	cmd.Flags().StringSlice("participants", nil, "participant addresses, comma separated")
	return cmd
}

func lookupPool(ctx context.Context, rt *runtime, value string) (model.Pool, error) {
	id, err := config.ParseHash(value)
	if err != nil {
		return model.Pool{}, err
	}
	return rt.svc.Pool(ctx, id)
}

func addressFlag(flags *pflag.FlagSet, name string) (common.Address, error) {
	value, _ := flags.GetString(name)
	if value == "" {
		return common.Address{}, errors.New("--" + name + " is required")
	}
	return config.ParseAddress(value)
}

// addressesFlag parses the string slice flag name. An unset flag yields no
// addresses.
func addressesFlag(flags *pflag.FlagSet, name string) ([]common.Address, error) {
	values, err := flags.GetStringSlice(name)
	if err != nil {
		return nil, err
	}
	addrs, err := config.ParseAddresses(values)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return addrs, nil
}

// walletFlag returns the address in flag name, or the owner's derived wallet
// for asset when the flag is empty.
func walletFlag(flags *pflag.FlagSet, name string, owner, asset common.Address) (common.Address, error) {
	value, _ := flags.GetString(name)
	if value == "" {
		return derive.Wallet(owner, asset), nil
	}
	return config.ParseAddress(value)
}

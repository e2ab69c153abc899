// Package derive computes deterministic storage and custody addresses from
// seed tuples, so a pool or position is found again from the identities that
// created it.
package derive

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	seedPool          = "stake_pool"
	seedPosition      = "user_stake"
	seedStakeVault    = "stake_vault"
	seedRewardVault   = "reward_vault"
	seedPoolAuthority = "pool_authority"
	seedWallet        = "wallet"
)

// PoolID identifies the pool created by creator for stakeAsset.
func PoolID(creator, stakeAsset common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte(seedPool), creator.Bytes(), stakeAsset.Bytes())
}

// PositionID identifies participant's position in pool.
func PositionID(pool common.Hash, participant common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte(seedPosition), pool.Bytes(), participant.Bytes())
}

// StakeVault is the custody account holding a pool's staked funds.
func StakeVault(pool common.Hash) common.Address {
	return hashToAddress(crypto.Keccak256Hash([]byte(seedStakeVault), pool.Bytes()))
}

// RewardVault is the custody account rewards are deposited into.
func RewardVault(pool common.Hash) common.Address {
	return hashToAddress(crypto.Keccak256Hash([]byte(seedRewardVault), pool.Bytes()))
}

// PoolAuthority is the identity allowed to move funds out of the pool vaults.
func PoolAuthority(pool common.Hash) common.Address {
	return hashToAddress(crypto.Keccak256Hash([]byte(seedPoolAuthority), pool.Bytes()))
}

// Wallet is owner's default custody account for asset.
func Wallet(owner, asset common.Address) common.Address {
	return hashToAddress(crypto.Keccak256Hash([]byte(seedWallet), owner.Bytes(), asset.Bytes()))
}

func hashToAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes()[12:])
}

package model

import "github.com/ethereum/go-ethereum/common"

// Account is a custody location holding a single asset.
type Account struct {
	Ref     common.Address `json:"ref"`
	Asset   common.Address `json:"asset"`
	Balance uint64         `json:"balance"`
}

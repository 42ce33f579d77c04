package models

import (
	"time"
)

// Amounts are stored as base-10 strings (numeric columns are avoided the same
// way wei amounts are stored elsewhere): 18-decimal token amounts exceed
// int64, and the authoritative math runs on big.Int in memory.

// StakePosition is the persisted snapshot of one account's stake. The
// in-memory copy owned by the staking service is authoritative; rows are
// written after every committed mutation and loaded once at startup.
type StakePosition struct {
	Account              string    `json:"account" gorm:"primaryKey;size:42"`
	Amount               string    `json:"amount" gorm:"size:78;not null"`
	StartTime            int64     `json:"start_time" gorm:"not null"`
	LastRewardCheckpoint int64     `json:"last_reward_checkpoint" gorm:"not null"`
	IsStaking            bool      `json:"is_staking" gorm:"not null;index"`
	RestakeCount         uint32    `json:"restake_count" gorm:"not null"`
	TotalRestaked        string    `json:"total_restaked" gorm:"size:78;not null"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// LiquidityPool is the persisted state of one constant-product pool, keyed by
// the canonical "BASE/QUOTE" pair.
type LiquidityPool struct {
	Pair         string    `json:"pair" gorm:"primaryKey;size:32"`
	BaseToken    string    `json:"base_token" gorm:"size:16;not null"`
	QuoteToken   string    `json:"quote_token" gorm:"size:16;not null"`
	ReserveBase  string    `json:"reserve_base" gorm:"size:78;not null"`
	ReserveQuote string    `json:"reserve_quote" gorm:"size:78;not null"`
	FeeBps       uint64    `json:"fee_bps" gorm:"not null"`
	SpreadBps    uint64    `json:"spread_bps" gorm:"not null"`
	VaultAddress string    `json:"vault_address" gorm:"size:42;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SwapReceipt records one executed swap.
type SwapReceipt struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	Pair           string    `json:"pair" gorm:"size:32;not null;index"`
	TokenIn        string    `json:"token_in" gorm:"size:16;not null"`
	Trader         string    `json:"trader" gorm:"size:42;not null;index"`
	AmountIn       string    `json:"amount_in" gorm:"size:78;not null"`
	AmountOut      string    `json:"amount_out" gorm:"size:78;not null"`
	Fee            string    `json:"fee" gorm:"size:78;not null"`
	PriceImpactBps uint64    `json:"price_impact_bps" gorm:"not null"`
	Timestamp      int64     `json:"timestamp" gorm:"not null;index"`
	CreatedAt      time.Time `json:"created_at"`
}

// Reward payout trigger contexts.
const (
	PayoutOnClaim    = "claim"
	PayoutOnDeposit  = "deposit"
	PayoutOnWithdraw = "withdraw"
)

// RewardPayout records one reward settlement through the Ledger. Restakes do
// not appear here: they compound in place without a transfer.
type RewardPayout struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Account   string    `json:"account" gorm:"size:42;not null;index"`
	Amount    string    `json:"amount" gorm:"size:78;not null"`
	Operation string    `json:"operation" gorm:"size:16;not null"`
	Timestamp int64     `json:"timestamp" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// PolicyChange is the audit trail of administrator parameter mutations.
type PolicyChange struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Parameter string    `json:"parameter" gorm:"size:32;not null;index"`
	OldValue  string    `json:"old_value" gorm:"size:32;not null"`
	NewValue  string    `json:"new_value" gorm:"size:32;not null"`
	ChangedBy string    `json:"changed_by" gorm:"size:64;not null"`
	CreatedAt time.Time `json:"created_at"`
}

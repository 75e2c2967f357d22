package chain

import (
	"math/big"
	"time"
)

// OpKind enumerates the state-changing ledger operations this core submits.
type OpKind string

const (
	OpMint     OpKind = "mint"
	OpBurn     OpKind = "burn"
	OpTransfer OpKind = "transfer"
	OpApprove  OpKind = "approve"
	OpBind     OpKind = "bind"
)

// Op describes a state-changing ledger call. Field usage depends on Kind:
//
//	mint:     AssetID, To, Amount
//	burn:     AssetID, From, Amount
//	transfer: AssetID, From, To, Amount, optional Spender (transferFrom)
//	approve:  AssetID, From (owner), Spender, Amount
//	bind:     OwnerID, To (address)
type Op struct {
	Kind    OpKind
	AssetID string
	From    string
	To      string
	Spender string
	Amount  *big.Int
	OwnerID string
}

// Pending is the handle returned by Submit before the operation is finalized.
type Pending struct {
	ID          string
	Kind        OpKind
	SubmittedAt time.Time
}

// Receipt records a finalized ledger operation.
type Receipt struct {
	OpID        string
	TxHash      string
	Kind        OpKind
	ConfirmedAt time.Time
}

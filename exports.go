package tally

import (
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/types"
)

// Re-export common types for convenience so users don't have to import the
// types and account packages.

// Amount is re-exported from types package.
type Amount = types.Amount

// Address is re-exported from account package.
type Address = account.Address

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Amount constructors and units
var (
	NewAmount   = types.NewAmount
	ParseAmount = types.ParseAmount
	ParseUnits  = types.ParseUnits
	Sum         = types.Sum
	Wei         = types.Wei
	Gwei        = types.Gwei
	Ether       = types.Ether
)

// Re-export Address parser
var ParseAddress = account.Parse

// Re-export Entity constructor
var NewEntity = types.NewEntity

package enum

import "fmt"

// AccountType distinguishes the three web_detail variants the authenticator
// can resolve: a password-grant demo account, a password-grant live
// ("prod") account, or the fixed anonymous one-click demo.
type AccountType int

const (
	AccountTypeDemo AccountType = iota
	AccountTypeProd
	AccountTypeOneClick
)

func (a AccountType) String() string {
	switch a {
	case AccountTypeDemo:
		return "demo"
	case AccountTypeProd:
		return "prod"
	case AccountTypeOneClick:
		return "oneclick"
	default:
		panic(fmt.Sprintf("unknown AccountType (%d)", a))
	}
}

// TradeSide is the dir field of a trade_request.
type TradeSide int

const (
	TradeSideBuy TradeSide = iota
	TradeSideSell
)

func (s TradeSide) String() string {
	switch s {
	case TradeSideBuy:
		return "buy"
	case TradeSideSell:
		return "sell"
	default:
		panic(fmt.Sprintf("unknown TradeSide (%d)", s))
	}
}

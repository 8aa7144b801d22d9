package protocol

import "github.com/shopspring/decimal"

// Command is implemented by every parsed input command.
// The set of implementations is closed: SubmitCommand, CancelCommand,
// CancelReplaceCommand and EndCommand.
type Command interface {
	isCommand()
}

// SubmitCommand is the carrier for submitting a new order.
// Quantity is the total requested quantity; for iceberg orders DisplaySize
// is the peak (the visible/replenish target) and must be positive.
// Price is unset for market orders.
type SubmitCommand struct {
	OrderID     string
	Side        Side
	OrderType   OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	DisplaySize decimal.Decimal
}

// CancelCommand requests removal of a resting order.
// Unknown ids are a defined no-op, not an error.
type CancelCommand struct {
	OrderID string
}

// CancelReplaceCommand requests a price/quantity change of a resting order.
// Unknown ids and resting icebergs are defined no-ops.
type CancelReplaceCommand struct {
	OrderID     string
	NewQuantity decimal.Decimal
	NewPrice    decimal.Decimal
}

// EndCommand terminates the session and triggers a final book print.
type EndCommand struct{}

func (*SubmitCommand) isCommand()        {}
func (*CancelCommand) isCommand()        {}
func (*CancelReplaceCommand) isCommand() {}
func (*EndCommand) isCommand()           {}

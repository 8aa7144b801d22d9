package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmptyLine is returned when a blank line is parsed.
var ErrEmptyLine = errors.New("protocol: empty command line")

// ParseLine parses one space-delimited command line into a Command.
//
// Grammar (one command per line):
//
//	SUB MO <B|S> <id> <qty>
//	SUB LO <B|S> <id> <qty> <price>
//	SUB IOC <B|S> <id> <qty> <price>
//	SUB FOK <B|S> <id> <qty> <price>
//	SUB ICE <B|S> <id> <qty> <price> <displayQty>
//	CXL <id>
//	CRP <id> <qty> <price>
//	END
func ParseLine(line string) (Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil, ErrEmptyLine
	}

	switch tokens[0] {
	case "SUB":
		return parseSubmit(tokens)
	case "CXL":
		if len(tokens) != 2 {
			return nil, fmt.Errorf("protocol: CXL expects 1 argument, got %d", len(tokens)-1)
		}
		return &CancelCommand{OrderID: tokens[1]}, nil
	case "CRP":
		if len(tokens) != 4 {
			return nil, fmt.Errorf("protocol: CRP expects 3 arguments, got %d", len(tokens)-1)
		}
		qty, err := parseAmount(tokens[2], "quantity")
		if err != nil {
			return nil, err
		}
		price, err := parseAmount(tokens[3], "price")
		if err != nil {
			return nil, err
		}
		return &CancelReplaceCommand{OrderID: tokens[1], NewQuantity: qty, NewPrice: price}, nil
	case "END":
		return &EndCommand{}, nil
	}

	return nil, fmt.Errorf("protocol: unknown keyword %q", tokens[0])
}

func parseSubmit(tokens []string) (Command, error) {
	if len(tokens) < 5 {
		return nil, fmt.Errorf("protocol: SUB expects at least 4 arguments, got %d", len(tokens)-1)
	}

	orderType, ok := submitOrderTypes[tokens[1]]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown order type %q", tokens[1])
	}

	side, err := parseSide(tokens[2])
	if err != nil {
		return nil, err
	}

	cmd := &SubmitCommand{
		OrderID:   tokens[3],
		Side:      side,
		OrderType: orderType,
	}

	if cmd.Quantity, err = parseAmount(tokens[4], "quantity"); err != nil {
		return nil, err
	}

	want := submitArgCounts[orderType]
	if len(tokens) != want {
		return nil, fmt.Errorf("protocol: SUB %s expects %d arguments, got %d", tokens[1], want-1, len(tokens)-1)
	}

	if orderType != OrderTypeMarket {
		if cmd.Price, err = parseAmount(tokens[5], "price"); err != nil {
			return nil, err
		}
	}

	if orderType == OrderTypeIceberg {
		if cmd.DisplaySize, err = parseAmount(tokens[6], "display quantity"); err != nil {
			return nil, err
		}
	}

	return cmd, nil
}

var submitOrderTypes = map[string]OrderType{
	"MO":  OrderTypeMarket,
	"LO":  OrderTypeLimit,
	"IOC": OrderTypeIOC,
	"FOK": OrderTypeFOK,
	"ICE": OrderTypeIceberg,
}

// Token counts including the leading SUB keyword.
var submitArgCounts = map[OrderType]int{
	OrderTypeMarket:  5,
	OrderTypeLimit:   6,
	OrderTypeIOC:     6,
	OrderTypeFOK:     6,
	OrderTypeIceberg: 7,
}

func parseSide(token string) (Side, error) {
	switch token {
	case "B":
		return SideBuy, nil
	case "S":
		return SideSell, nil
	}
	return 0, fmt.Errorf("protocol: invalid side %q", token)
}

func parseAmount(token string, field string) (decimal.Decimal, error) {
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil || n <= 0 {
		return decimal.Zero, fmt.Errorf("protocol: invalid %s %q", field, token)
	}
	return decimal.NewFromInt(n), nil
}

// Package api implements the demo OAuth-protected resource APIs. The
// stocks, trades and customers services share one handler; everything
// that differs between them is data in the catalog below.
package api

import (
	"fmt"

	"mcpgateway/internal/domain"
)

// Definition describes one resource API: its route, the scope a token
// must carry, and the payload it serves.
type Definition struct {
	Name          string
	ResourceName  string
	Path          string
	RequiredScope string
	Payload       func(p domain.Principal) any
}

// Stock is a single stock price entry.
type Stock struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Trade is a single settled trade.
type Trade struct {
	TradeID   int    `json:"trade_id"`
	Time      string `json:"time"`
	StockID   int    `json:"stock_id"`
	Quantity  int    `json:"quantity"`
	AmountUSD int    `json:"amountUSD"`
	Region    string `json:"region"`
}

// Customer is a single customer record.
type Customer struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
}

var catalog = map[string]Definition{
	"stocks": {
		Name:          "stocks",
		ResourceName:  "Stocks API",
		Path:          "/",
		RequiredScope: "stocks/read",
		Payload: func(_ domain.Principal) any {
			return []Stock{
				{ID: "MSFT", Name: "Microsoft Corporation", Price: 450.22},
				{ID: "AAPL", Name: "Apple Inc", Price: 250.62},
				{ID: "INTC", Name: "Intel Corp", Price: 21.07},
			}
		},
	},
	"trades": {
		Name:          "trades",
		ResourceName:  "Trades API",
		Path:          "/trades",
		RequiredScope: "trades/read",
		Payload: func(p domain.Principal) any {
			trades := []Trade{
				{TradeID: 78122, Time: "2025-03-07T09:45:39", StockID: 9981, Quantity: 450, AmountUSD: 90000, Region: "USA"},
				{TradeID: 78124, Time: "2025-03-07T09:47:56", StockID: 7865, Quantity: 2000, AmountUSD: 160000, Region: "USA"},
				{TradeID: 78131, Time: "2025-03-07T10:02:11", StockID: 9981, Quantity: 300, AmountUSD: 60000, Region: "EU"},
			}
			// A region claim on the token narrows the visible trades.
			if p.Region == "" {
				return trades
			}
			visible := make([]Trade, 0, len(trades))
			for _, t := range trades {
				if t.Region == p.Region {
					visible = append(visible, t)
				}
			}
			return visible
		},
	},
	"customers": {
		Name:          "customers",
		ResourceName:  "Customer API",
		Path:          "/users",
		RequiredScope: "retail",
		Payload: func(_ domain.Principal) any {
			return []Customer{
				{GivenName: "John", FamilyName: "Doe", Email: "john.doe@customer.example"},
				{GivenName: "Jane", FamilyName: "Doe", Email: "jane.doe@customer.example"},
			}
		},
	},
}

// Lookup returns the definition for the named API.
func Lookup(name string) (Definition, error) {
	d, ok := catalog[name]
	if !ok {
		return Definition{}, fmt.Errorf("unknown API name %q", name)
	}
	return d, nil
}

package ledger

// Entity is one regulated organization tracked by the ledger.
type Entity struct {
	Name             string `json:"name"`
	AllowedEmissions int64  `json:"allowed_emissions"`
	ActualEmissions  int64  `json:"actual_emissions"`
	Credits          int64  `json:"credits"`
}

// Transfer is the outcome of a successful credit transfer.
// Seller and Buyer hold the balances as committed.
type Transfer struct {
	Seller Entity `json:"seller"`
	Buyer  Entity `json:"buyer"`
	Amount int64  `json:"amount"`
}

package settlement

// Request is one confirmed transfer submission.
type Request struct {
	FromAccount string  `json:"from_account"`
	ToAccount   string  `json:"to_account"`
	Amount      float64 `json:"amount"`
	Token       string  `json:"token"`
	Description string  `json:"description"`
}

// Result is the settlement backend's verdict. Success=false with a Message is
// a business rejection (e.g. insufficient funds), not a transport failure.
type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

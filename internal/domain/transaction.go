package domain

import (
	"time"
)

// Transaction is a single dated transfer between two accounts.
// Multiple transactions between the same ordered pair are distinct events.
type Transaction struct {
	ID         string    `json:"transactionId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Amount     float64   `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}

// TransactionRequest is the API payload for a single ledger row.
// Timestamps arrive as strings and are parsed by the ingest package.
type TransactionRequest struct {
	TransactionID string  `json:"transaction_id"`
	SenderID      string  `json:"sender_id"`
	ReceiverID    string  `json:"receiver_id"`
	Amount        float64 `json:"amount"`
	Timestamp     string  `json:"timestamp"`
}

// LedgerRequest is the API request payload for an analysis run.
type LedgerRequest struct {
	Transactions []TransactionRequest `json:"transactions"`
}

// Package ingest turns CSV files and API payloads into transactions.
// Rows that cannot be parsed are counted by reason, never fatal.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// ErrMissingColumns is returned when a CSV header lacks a required column.
var ErrMissingColumns = errors.New("missing required columns")

// Parse rejection reasons. Validation of parsed rows happens at graph build.
const (
	ReasonMalformedRow     = "malformed_row"
	ReasonInvalidAmount    = "invalid_amount"
	ReasonInvalidTimestamp = "invalid_timestamp"
)

// Required CSV columns.
var Columns = []string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"}

// maxRowErrors bounds the row errors kept for reporting.
const maxRowErrors = 100

// RowError describes one row that could not be parsed.
type RowError struct {
	Line   int
	Reason string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Reason, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Result holds parsed transactions and rejection counts.
type Result struct {
	Transactions []domain.Transaction
	Rejected     map[string]int
	Errors       []*RowError
}

func newResult() *Result {
	return &Result{Rejected: make(map[string]int)}
}

func (r *Result) reject(line int, reason string, err error) {
	r.Rejected[reason]++
	if len(r.Errors) < maxRowErrors {
		r.Errors = append(r.Errors, &RowError{Line: line, Reason: reason, Err: err})
	}
}

// RejectedCount returns the total number of rejected rows.
func (r *Result) RejectedCount() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}

// ReadCSV parses a ledger CSV. Column order is free, header names are
// matched case-insensitively and cells are trimmed.
func ReadCSV(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty input", ErrMissingColumns)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range Columns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	res := newResult()
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.reject(line, ReasonMalformedRow, err)
				continue
			}
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(record) < len(header) {
			res.reject(line, ReasonMalformedRow, fmt.Errorf("expected %d fields, got %d", len(header), len(record)))
			continue
		}

		cell := func(name string) string { return strings.TrimSpace(record[index[name]]) }
		req := domain.TransactionRequest{
			TransactionID: cell("transaction_id"),
			SenderID:      cell("sender_id"),
			ReceiverID:    cell("receiver_id"),
			Timestamp:     cell("timestamp"),
		}

		amount, err := ParseAmount(cell("amount"))
		if err != nil {
			res.reject(line, ReasonInvalidAmount, err)
			continue
		}
		req.Amount = amount

		tx, reason, err := toTransaction(req)
		if err != nil {
			res.reject(line, reason, err)
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

// FromRequests converts API payload rows. Line numbers are 1-based indexes.
func FromRequests(reqs []domain.TransactionRequest) *Result {
	res := newResult()
	for i, req := range reqs {
		req.TransactionID = strings.TrimSpace(req.TransactionID)
		req.SenderID = strings.TrimSpace(req.SenderID)
		req.ReceiverID = strings.TrimSpace(req.ReceiverID)

		tx, reason, err := toTransaction(req)
		if err != nil {
			res.reject(i+1, reason, err)
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res
}

func toTransaction(req domain.TransactionRequest) (domain.Transaction, string, error) {
	ts, err := ParseTimestamp(req.Timestamp)
	if err != nil {
		return domain.Transaction{}, ReasonInvalidTimestamp, err
	}
	return domain.Transaction{
		ID:         req.TransactionID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
		Timestamp:  ts,
	}, "", nil
}

// ParseAmount parses a decimal amount. Thousands separators are accepted.
func ParseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
}

// ParseTimestamp tries the supported layouts in order. Timestamps without
// a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

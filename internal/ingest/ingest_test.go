package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

func TestReadCSV(t *testing.T) {
	t.Run("ValidRowsAnyColumnOrder", func(t *testing.T) {
		input := "timestamp,amount,receiver_id,sender_id,transaction_id\n" +
			"2026-03-01 10:00:00, 1500.50 ,B,A,T1\n" +
			"2026-03-01T11:00:00Z,\"2,000\",C,B,T2\n"

		res, err := ReadCSV(strings.NewReader(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Transactions) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(res.Transactions))
		}
		tx := res.Transactions[0]
		if tx.ID != "T1" || tx.SenderID != "A" || tx.ReceiverID != "B" || tx.Amount != 1500.5 {
			t.Errorf("unexpected first row %+v", tx)
		}
		if want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC); !tx.Timestamp.Equal(want) {
			t.Errorf("expected %v, got %v", want, tx.Timestamp)
		}
		if res.Transactions[1].Amount != 2000 {
			t.Errorf("expected thousands separator to parse, got %v", res.Transactions[1].Amount)
		}
	})

	t.Run("BadRowsCounted", func(t *testing.T) {
		input := "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
			"T1,A,B,100,2026-03-01 10:00:00\n" +
			"T2,A,B,abc,2026-03-01 10:00:00\n" +
			"T3,A,B,100,yesterday\n" +
			"T4,A,B\n"

		res, err := ReadCSV(strings.NewReader(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Transactions) != 1 {
			t.Errorf("expected 1 transaction, got %d", len(res.Transactions))
		}
		if res.Rejected[ReasonInvalidAmount] != 1 || res.Rejected[ReasonInvalidTimestamp] != 1 || res.Rejected[ReasonMalformedRow] != 1 {
			t.Errorf("unexpected rejections %v", res.Rejected)
		}
		if res.RejectedCount() != 3 {
			t.Errorf("expected 3 rejected, got %d", res.RejectedCount())
		}
		if len(res.Errors) != 3 || res.Errors[0].Line != 3 {
			t.Errorf("unexpected row errors %v", res.Errors)
		}
	})

	t.Run("MissingColumns", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("transaction_id,sender_id,amount\n"))
		if !errors.Is(err, ErrMissingColumns) {
			t.Errorf("expected ErrMissingColumns, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""))
		if !errors.Is(err, ErrMissingColumns) {
			t.Errorf("expected ErrMissingColumns, got %v", err)
		}
	})

	t.Run("HeaderCaseAndBOM", func(t *testing.T) {
		input := "\ufeffTransaction_ID,Sender_ID,Receiver_ID,Amount,Timestamp\nT1,A,B,5,2026-03-01\n"
		res, err := ReadCSV(strings.NewReader(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Transactions) != 1 {
			t.Errorf("expected 1 transaction, got %d", len(res.Transactions))
		}
	})
}

func TestFromRequests(t *testing.T) {
	res := FromRequests([]domain.TransactionRequest{
		{TransactionID: " T1 ", SenderID: "A", ReceiverID: "B", Amount: 10, Timestamp: "2026-03-01T10:00:00+02:00"},
		{TransactionID: "T2", SenderID: "A", ReceiverID: "B", Amount: 10, Timestamp: ""},
	})
	if len(res.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(res.Transactions))
	}
	tx := res.Transactions[0]
	if tx.ID != "T1" {
		t.Errorf("expected trimmed id, got %q", tx.ID)
	}
	if tx.Timestamp.Hour() != 8 || tx.Timestamp.Location() != time.UTC {
		t.Errorf("expected UTC normalisation, got %v", tx.Timestamp)
	}
	if res.Rejected[ReasonInvalidTimestamp] != 1 {
		t.Errorf("expected 1 invalid timestamp, got %v", res.Rejected)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"100", 100, false},
		{"1,234.56", 1234.56, false},
		{"-5", -5, false},
		{"", 0, true},
		{"12abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

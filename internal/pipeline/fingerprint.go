package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// Fingerprint returns a SHA-256 digest of the ledger that does not depend
// on row order. Identical ledgers always produce identical reports, so the
// fingerprint keys the report cache.
func Fingerprint(txs []domain.Transaction) string {
	rows := make([]string, len(txs))
	for i, tx := range txs {
		rows[i] = tx.ID + "\x1f" + tx.SenderID + "\x1f" + tx.ReceiverID + "\x1f" +
			strconv.FormatFloat(tx.Amount, 'f', -1, 64) + "\x1f" +
			tx.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	sort.Strings(rows)

	h := sha256.New()
	for _, r := range rows {
		h.Write([]byte(r))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint digests the transactions together with the ingest rejection
// counts, since both appear in the report.
func (l Ledger) Fingerprint() string {
	if len(l.Rejected) == 0 {
		return Fingerprint(l.Transactions)
	}
	reasons := make([]string, 0, len(l.Rejected))
	for reason := range l.Rejected {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	h := sha256.New()
	h.Write([]byte(Fingerprint(l.Transactions)))
	for _, r := range reasons {
		h.Write([]byte("\n" + r + "=" + strconv.Itoa(l.Rejected[r])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

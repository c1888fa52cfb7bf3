package billstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"mediapart-bills/pkg/textutil"
)

// MatchWindow is how long after the date of a bill its bank operation may be booked.
const MatchWindow = 15 * 24 * time.Hour

// Operation is a bank operation, debits have a negative amount.
type Operation struct {
	Label  string    `json:"label"`
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}

type Match struct {
	Operation Operation
	Bills     []StoredBill
}

func amountsEqual(a, b float64) bool {
	return math.Abs(math.Abs(a)-math.Abs(b)) < 0.005
}

func inWindow(bill, operation time.Time) bool {
	return !operation.Before(bill) && operation.Sub(bill) <= MatchWindow
}

// MatchOperations links every operation to the stored bills it pays: the
// label contains one of the identifiers of the bill, the amounts are equal and
// the operation was booked within MatchWindow after the bill date. Operations
// without any bill are left out.
func (s Store) MatchOperations(ctx context.Context, operations []Operation) ([]Match, error) {
	rows, err := s.qry.ListAllBills(ctx)
	if err != nil {
		return nil, fmt.Errorf("match operations: %w", err)
	}
	identifierRows, err := s.qry.ListBillIdentifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("match operations: %w", err)
	}
	identifiers := map[string][]string{}
	for _, row := range identifierRows {
		identifiers[row.DedupKey] = append(identifiers[row.DedupKey], row.Identifier)
	}

	var out []Match
	for _, op := range operations {
		match := Match{Operation: op}
		for _, row := range rows {
			bill := fromRow(row)
			if !amountsEqual(op.Amount, bill.Amount) {
				continue
			}
			if !inWindow(bill.Date, op.Date) {
				continue
			}
			if !textutil.MatchName(op.Label, identifiers[bill.DedupKey]) {
				continue
			}
			match.Bills = append(match.Bills, bill)
		}
		if len(match.Bills) > 0 {
			out = append(out, match)
		}
	}
	return out, nil
}

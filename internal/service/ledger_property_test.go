package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/efreitasn/exechistory/internal/store"
	"pgregory.net/rapid"
)

// Feature: exechistory, Property: ledger ids are gap free
// For any interleaving of report kinds and rejected saves, every successful
// save gets exactly the previous successful id plus one.
func TestProperty_LedgerIDsGapFree(t *testing.T) {
	kinds := []domain.ReportKind{
		domain.KindExecutionReport, domain.KindCancelReject, domain.KindNewOrder,
		domain.KindCancelRequest, domain.KindOther,
	}
	rapid.Check(t, func(t *rapid.T) {
		svc := newTestLedger()
		var last uint64

		n := rapid.IntRange(1, 50).Draw(t, "numSaves")
		for i := 0; i < n; i++ {
			r := newTestReport(rapid.SampledFrom(kinds).Draw(t, fmt.Sprintf("kind-%d", i)), fmt.Sprintf("o-%d", i), baseTime)
			switch rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("defect-%d", i)) {
			case 1:
				r.DestinationID = ""
			case 2:
				r.SendingTime = time.Time{}
			}

			id, err := svc.Save(context.Background(), r)
			valid := r.DestinationID != "" && !r.SendingTime.IsZero()
			if valid != (err == nil) {
				t.Fatalf("save %d: valid=%v err=%v", i, valid, err)
			}
			if err != nil {
				continue
			}
			if id != last+1 {
				t.Fatalf("save %d: got id %d after %d", i, id, last)
			}
			last = id
		}
	})
}

// Feature: exechistory, Property: count agrees with fetch
// For any ledger contents and any sending time bound, Count equals the
// length of an unpaginated Fetch, and every fetched report is strictly after
// the bound.
func TestProperty_CountAgreesWithFetch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc := newTestLedger()
		n := rapid.IntRange(0, 30).Draw(t, "numReports")
		for i := 0; i < n; i++ {
			m := rapid.IntRange(0, 10).Draw(t, fmt.Sprintf("minute-%d", i))
			r := newTestReport(domain.KindExecutionReport, fmt.Sprintf("o-%d", i), baseTime.Add(time.Duration(m)*time.Minute))
			if _, err := svc.Save(context.Background(), r); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		bound := baseTime.Add(time.Duration(rapid.IntRange(0, 10).Draw(t, "bound")) * time.Minute)
		q := svc.Query(queryAfter(bound))
		count, _ := q.Count(context.Background())
		got, _ := q.Fetch(context.Background())
		if int64(len(got)) != count {
			t.Fatalf("count %d, fetch %d", count, len(got))
		}
		for i, r := range got {
			if !r.SendingTime.After(bound) {
				t.Fatalf("report %d at %v not after %v", r.ReportID, r.SendingTime, bound)
			}
			if i > 0 && got[i-1].ReportID >= r.ReportID {
				t.Fatal("fetch not in commit order")
			}
		}
	})
}

func queryAfter(bound time.Time) store.ReportQuery {
	return store.ReportQuery{SendingTimeAfter: &bound}
}

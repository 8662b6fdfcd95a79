package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/kellyenterprises/gaugehub/internal/errors"
	"github.com/kellyenterprises/gaugehub/internal/gauge/domain"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage"
)

func testGauge(id, tag string) domain.Gauge {
	return domain.Gauge{
		ID:        id,
		Tag:       tag,
		Class:     domain.EquipmentClassThreadPlug,
		Status:    domain.StatusAvailable,
		Ownership: domain.OwnershipCompany,
		Spec: domain.Spec{
			ThreadSize:  "1/2-13",
			ThreadClass: "2B",
			Role:        domain.RoleGo,
		},
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestCompareAndSetStatusStale(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Gauges().Put(ctx, testGauge("g1", "TP-001")); err != nil {
		t.Fatalf("put gauge: %v", err)
	}
	err := store.Gauges().CompareAndSetStatus(ctx, "g1", domain.StatusCheckedOut, domain.StatusAvailable, storage.Extra{})
	if !apperrors.IsCode(err, apperrors.CodeStaleState) {
		t.Fatalf("expected stale state error, got %v", err)
	}
}

func TestInsertSecondOpenCheckoutFails(t *testing.T) {
	store := New()
	ctx := context.Background()

	first := domain.CheckoutRecord{ID: "c1", GaugeID: "g1", HolderID: "emp-1", CheckedOutAt: time.Now()}
	if err := store.Checkouts().Insert(ctx, first); err != nil {
		t.Fatalf("insert first checkout: %v", err)
	}
	second := domain.CheckoutRecord{ID: "c2", GaugeID: "g1", HolderID: "emp-2", CheckedOutAt: time.Now()}
	err := store.Checkouts().Insert(ctx, second)
	if !apperrors.IsCode(err, apperrors.CodeCheckoutAlreadyOpen) {
		t.Fatalf("expected already-open error, got %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Gauges().Put(ctx, testGauge("g1", "TP-001")); err != nil {
		t.Fatalf("put gauge: %v", err)
	}

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(stores storage.Stores) error {
		if err := stores.Gauges().CompareAndSetStatus(ctx, "g1", domain.StatusAvailable, domain.StatusCheckedOut, storage.Extra{}); err != nil {
			return err
		}
		if err := stores.Checkouts().Insert(ctx, domain.CheckoutRecord{ID: "c1", GaugeID: "g1", HolderID: "emp-1", CheckedOutAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transaction error, got %v", err)
	}

	g, err := store.Gauges().Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get gauge: %v", err)
	}
	if g.Status != domain.StatusAvailable {
		t.Fatalf("expected rollback to available, got %s", g.Status)
	}
	if _, err := store.Checkouts().GetOpenByGauge(ctx, "g1"); !apperrors.IsCode(err, apperrors.CodeCheckoutNotOpen) {
		t.Fatalf("expected no open checkout after rollback, got %v", err)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, tag := range []string{"TP-001", "TP-002", "TP-003"} {
		g := testGauge("id-"+tag, tag)
		if err := store.Gauges().Put(ctx, g); err != nil {
			t.Fatalf("put %s: %v", tag, err)
		}
	}

	page, err := store.Gauges().List(ctx, storage.GaugeQuery{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Gauges) != 2 || page.NextPageToken != "TP-002" {
		t.Fatalf("expected 2 gauges and token TP-002, got %d and %q", len(page.Gauges), page.NextPageToken)
	}

	rest, err := store.Gauges().List(ctx, storage.GaugeQuery{PageSize: 2, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest.Gauges) != 1 || rest.Gauges[0].Tag != "TP-003" {
		t.Fatalf("expected final page with TP-003, got %+v", rest.Gauges)
	}
	if rest.NextPageToken != "" {
		t.Fatalf("expected empty token on final page, got %q", rest.NextPageToken)
	}
}

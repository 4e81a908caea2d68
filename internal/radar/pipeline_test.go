package radar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"skuradar/internal/catalog"
	"skuradar/internal/meli"
	"skuradar/internal/pricing"
	"skuradar/internal/report"
)

type fakeResolver struct {
	listings map[string]*meli.Listing // keyed by description
	badToken string                   // token value that triggers 401
	err      error
	calls    int
}

func (f *fakeResolver) Resolve(ctx context.Context, accessToken, sku, description string) (*meli.Listing, error) {
	f.calls++
	if f.badToken != "" && accessToken == f.badToken {
		return nil, meli.ErrUnauthorized
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.listings[description], nil
}

type fakeTokens struct {
	tokens    []string
	issued    int
	fetchErr  error
	refreshes int
}

func (f *fakeTokens) next() (meli.AccessToken, error) {
	if f.fetchErr != nil {
		return meli.AccessToken{}, f.fetchErr
	}
	tok := f.tokens[f.issued]
	if f.issued < len(f.tokens)-1 {
		f.issued++
	}
	return meli.AccessToken{Value: tok, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) GetValidToken(ctx context.Context) (meli.AccessToken, error) {
	return f.next()
}

func (f *fakeTokens) ForceRefresh(ctx context.Context) (meli.AccessToken, error) {
	f.refreshes++
	return f.next()
}

type recordingExporter struct {
	exported *report.Report
	err      error
}

func (e *recordingExporter) Export(r *report.Report) (string, error) {
	e.exported = r
	return "results/out.xlsx", e.err
}

func newTestPipeline(resolver Resolver, tokens TokenSource, exporter Exporter) *Pipeline {
	return New(pricing.DefaultConfig, resolver, tokens, exporter, 0)
}

func TestRunEnrichesAndRanks(t *testing.T) {
	resolver := &fakeResolver{listings: map[string]*meli.Listing{
		"mouse gamer": {Title: "Mouse Gamer RGB", Price: 25000, Permalink: "https://example.com/mouse", Condition: meli.ConditionNew, SoldQuantity: 50},
		"cable hdmi":  {Title: "Cable HDMI 2m", Price: 5000, Permalink: "https://example.com/hdmi", Condition: meli.ConditionNew},
	}}
	tokens := &fakeTokens{tokens: []string{"tok-1"}}
	exporter := &recordingExporter{}

	rows := []catalog.SupplierRow{
		{SKU: "C1", Description: "cable hdmi", PriceARS: 4000},
		{SKU: "M1", Description: "mouse gamer", PriceARS: 10000},
		{SKU: "Z1", Description: "producto inexistente", PriceARS: 1000},
	}

	rep, err := newTestPipeline(resolver, tokens, exporter).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The unmatched row is filtered out and the rest ranked by margin.
	if len(rep.Rows) != 2 {
		t.Fatalf("expected 2 winner rows, got %d", len(rep.Rows))
	}
	if rep.Rows[0].SKU != "M1" || rep.Rows[1].SKU != "C1" {
		t.Errorf("ranking = [%s, %s], want [M1, C1]", rep.Rows[0].SKU, rep.Rows[1].SKU)
	}

	top := rep.Rows[0]
	if top.DifferentialARS != 15000 {
		t.Errorf("differential = %v, want 15000", top.DifferentialARS)
	}
	if top.MarginPercent != 43.8 {
		t.Errorf("margin = %v, want 43.8", top.MarginPercent)
	}
	if top.EstimatedProfitARS != 10950 {
		t.Errorf("profit = %v, want 10950", top.EstimatedProfitARS)
	}
	if top.Condition != "Nuevo" {
		t.Errorf("condition = %q, want Nuevo", top.Condition)
	}

	if exporter.exported != rep {
		t.Error("expected the finalized report to be exported")
	}
}

func TestRunStableOrderOnMarginTies(t *testing.T) {
	// Identical listings against identical costs produce identical margins;
	// catalog order must survive the sort.
	listing := &meli.Listing{Title: "Gemelo", Price: 25000}
	resolver := &fakeResolver{listings: map[string]*meli.Listing{
		"gemelo a": listing,
		"gemelo b": listing,
		"gemelo c": listing,
	}}
	tokens := &fakeTokens{tokens: []string{"tok-1"}}

	rows := []catalog.SupplierRow{
		{SKU: "A", Description: "gemelo a", PriceARS: 10000},
		{SKU: "B", Description: "gemelo b", PriceARS: 10000},
		{SKU: "C", Description: "gemelo c", PriceARS: 10000},
	}

	rep, err := newTestPipeline(resolver, tokens, nil).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := []string{rep.Rows[0].SKU, rep.Rows[1].SKU, rep.Rows[2].SKU}
	want := []string{"A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRunAbortsWhenTokenUnavailable(t *testing.T) {
	resolver := &fakeResolver{}
	tokens := &fakeTokens{fetchErr: errors.New("invalid_client")}

	rows := []catalog.SupplierRow{{SKU: "M1", Description: "mouse gamer", PriceARS: 10000}}

	rep, err := newTestPipeline(resolver, tokens, nil).Run(context.Background(), rows)
	if err == nil {
		t.Fatal("expected error when no token can be obtained")
	}
	if len(rep.Rows) != 0 {
		t.Errorf("expected empty report, got %d rows", len(rep.Rows))
	}
	if resolver.calls != 0 {
		t.Errorf("expected no lookups before auth, got %d", resolver.calls)
	}
}

func TestRunRefreshesOnceOnRejectedToken(t *testing.T) {
	resolver := &fakeResolver{
		badToken: "tok-stale",
		listings: map[string]*meli.Listing{
			"mouse gamer": {Title: "Mouse Gamer RGB", Price: 25000},
		},
	}
	tokens := &fakeTokens{tokens: []string{"tok-stale", "tok-fresh"}}

	rows := []catalog.SupplierRow{{SKU: "M1", Description: "mouse gamer", PriceARS: 10000}}

	rep, err := newTestPipeline(resolver, tokens, nil).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if tokens.refreshes != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", tokens.refreshes)
	}
	if len(rep.Rows) != 1 || rep.Rows[0].MatchedTitle != "Mouse Gamer RGB" {
		t.Errorf("expected the row to be retried with the fresh token, got %+v", rep.Rows)
	}
}

func TestRunFailsWhenRefreshedTokenRejected(t *testing.T) {
	resolver := &fakeResolver{badToken: "tok-stale"}
	tokens := &fakeTokens{tokens: []string{"tok-stale"}}

	rows := []catalog.SupplierRow{
		{SKU: "M1", Description: "mouse gamer", PriceARS: 10000},
		{SKU: "M2", Description: "otro producto", PriceARS: 5000},
	}

	rep, err := newTestPipeline(resolver, tokens, nil).Run(context.Background(), rows)
	if err == nil {
		t.Fatal("expected error when the refreshed token is also rejected")
	}
	if !errors.Is(err, meli.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized in the chain, got %v", err)
	}
	if tokens.refreshes != 1 {
		t.Errorf("expected exactly 1 refresh attempt, got %d", tokens.refreshes)
	}
	if len(rep.Rows) != 0 {
		t.Errorf("expected empty report, got %d rows", len(rep.Rows))
	}
}

func TestRunLookupErrorDegradesToUnmatched(t *testing.T) {
	resolver := &fakeResolver{err: fmt.Errorf("connection reset")}
	tokens := &fakeTokens{tokens: []string{"tok-1"}}

	rows := []catalog.SupplierRow{{SKU: "M1", Description: "mouse gamer", PriceARS: 10000}}

	rep, err := newTestPipeline(resolver, tokens, nil).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Unmatched rows carry no market price, so the filter drops them.
	if len(rep.Rows) != 0 {
		t.Errorf("expected failed lookup to be filtered out, got %d rows", len(rep.Rows))
	}
}

func TestRunPacingHonorsContextCancellation(t *testing.T) {
	resolver := &fakeResolver{}
	tokens := &fakeTokens{tokens: []string{"tok-1"}}

	pipeline := New(pricing.DefaultConfig, resolver, tokens, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	rows := []catalog.SupplierRow{
		{SKU: "M1", Description: "mouse gamer", PriceARS: 10000},
		{SKU: "M2", Description: "otro producto", PriceARS: 5000},
	}

	start := time.Now()
	_, err := pipeline.Run(ctx, rows)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, pacing sleep was not interrupted", elapsed)
	}
}

func TestRunExportFailureDoesNotFailRun(t *testing.T) {
	resolver := &fakeResolver{listings: map[string]*meli.Listing{
		"mouse gamer": {Title: "Mouse Gamer RGB", Price: 25000},
	}}
	tokens := &fakeTokens{tokens: []string{"tok-1"}}
	exporter := &recordingExporter{err: errors.New("disk full")}

	rows := []catalog.SupplierRow{{SKU: "M1", Description: "mouse gamer", PriceARS: 10000}}

	rep, err := newTestPipeline(resolver, tokens, exporter).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rep.Rows) != 1 {
		t.Errorf("expected the in-memory report to survive export failure, got %d rows", len(rep.Rows))
	}
}

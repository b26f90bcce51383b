package batch

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/vertextoedge/url-retriever/internal/adapter/source"
	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/domain/event"
	"github.com/vertextoedge/url-retriever/internal/port"
	"github.com/vertextoedge/url-retriever/internal/service/accounting"
	"github.com/vertextoedge/url-retriever/internal/service/retriever"
)

// mockRetriever returns canned results and charges the ledger
type mockRetriever struct {
	results map[string]retriever.Result
	charge  uint64
	ledger  *accounting.Ledger
	calls   []string
}

func (m *mockRetriever) Retrieve(ctx context.Context, rawURL, referrer string) retriever.Result {
	m.calls = append(m.calls, rawURL)
	if m.ledger != nil {
		m.ledger.Increase(m.charge)
	}
	if res, ok := m.results[rawURL]; ok {
		return res
	}
	return retriever.Result{Status: domain.StatusOK}
}

type mockDescender struct {
	status domain.Status
	calls  []string
}

func (m *mockDescender) Descend(ctx context.Context, localFile, finalURL string) domain.Status {
	m.calls = append(m.calls, localFile+" "+finalURL)
	return m.status
}

// mockFiles tracks existing files in memory
type mockFiles struct {
	port.OutputFiles
	existing  map[string]bool
	removeErr error
	removed   []string
}

func (m *mockFiles) Exists(path string) bool { return m.existing[path] }

func (m *mockFiles) Remove(path string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, path)
	delete(m.existing, path)
	return nil
}

func ok(file string, html bool) retriever.Result {
	return retriever.Result{
		Status:    domain.StatusOK,
		LocalFile: file,
		FinalURL:  "http://final/" + file,
		Flags:     domain.Flags{Retrieved: true, HTML: html},
	}
}

func TestRetrieveAll_AllSucceed(t *testing.T) {
	r := &mockRetriever{}
	d := New(nil, r, nil, &mockFiles{}, accounting.New(0), nil, zap.NewNop())

	status, count := d.RetrieveAll(context.Background(), source.NewSlice([]string{"a", "b", "c"}))

	if status != domain.StatusOK || count != 3 {
		t.Errorf("RetrieveAll() = %v, %d; want ok, 3", status, count)
	}
	if len(r.calls) != 3 {
		t.Errorf("calls = %v", r.calls)
	}
}

func TestRetrieveAll_FirstFatalStatusWins(t *testing.T) {
	r := &mockRetriever{results: map[string]retriever.Result{
		"b": {Status: domain.StatusHTTPError},
		"c": {Status: domain.StatusNoConnection},
	}}
	d := New(nil, r, nil, &mockFiles{}, accounting.New(0), nil, zap.NewNop())

	status, count := d.RetrieveAll(context.Background(), source.NewSlice([]string{"a", "b", "c", "d"}))

	if status != domain.StatusHTTPError {
		t.Errorf("status = %v, want http_error", status)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
}

func TestRetrieveAll_QuotaStop(t *testing.T) {
	ledger := accounting.New(100)
	r := &mockRetriever{charge: 60, ledger: ledger}
	dispatcher := event.NewInMemoryDispatcher()
	var quotaEvents int
	dispatcher.Subscribe(handlerFunc(func(e event.DomainEvent) {
		if _, ok := e.(event.QuotaExceeded); ok {
			quotaEvents++
		}
	}))
	d := New(nil, r, nil, &mockFiles{}, ledger, dispatcher, zap.NewNop())

	status, count := d.RetrieveAll(context.Background(), source.NewSlice([]string{"a", "b", "c", "d"}))

	if status != domain.StatusQuotaExceeded {
		t.Errorf("status = %v, want quota_exceeded", status)
	}
	// a and b are retrieved; c is taken from the list and refused.
	if len(r.calls) != 2 {
		t.Errorf("calls = %v, want 2", r.calls)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if quotaEvents != 1 {
		t.Errorf("quota events = %d, want 1", quotaEvents)
	}
}

func TestRetrieveAll_QuotaOverridesEarlierFailure(t *testing.T) {
	ledger := accounting.New(10)
	r := &mockRetriever{
		charge:  20,
		ledger:  ledger,
		results: map[string]retriever.Result{"a": {Status: domain.StatusURLError}},
	}
	d := New(nil, r, nil, &mockFiles{}, ledger, nil, zap.NewNop())

	status, _ := d.RetrieveAll(context.Background(), source.NewSlice([]string{"a", "b"}))

	if status != domain.StatusQuotaExceeded {
		t.Errorf("status = %v, want quota_exceeded", status)
	}
}

func TestRetrieveAll_Canceled(t *testing.T) {
	r := &mockRetriever{}
	d := New(nil, r, nil, &mockFiles{}, accounting.New(0), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status, count := d.RetrieveAll(ctx, source.NewSlice([]string{"a", "b"}))

	if status != domain.StatusNoConnection || count != 1 {
		t.Errorf("RetrieveAll() = %v, %d; want no_connection, 1", status, count)
	}
	if len(r.calls) != 0 {
		t.Errorf("calls = %v, want none", r.calls)
	}
}

func TestRetrieveAll_Recursion(t *testing.T) {
	r := &mockRetriever{results: map[string]retriever.Result{
		"page": ok("page.html", true),
		"bin":  ok("file.bin", false),
		"bad":  {Status: domain.StatusHTTPError},
	}}
	desc := &mockDescender{status: domain.StatusOK}
	d := New(&Config{Recursive: true}, r, desc, &mockFiles{}, accounting.New(0), nil, zap.NewNop())

	status, _ := d.RetrieveAll(context.Background(), source.NewSlice([]string{"page", "bin", "bad"}))

	if status != domain.StatusHTTPError {
		t.Errorf("status = %v, want http_error", status)
	}
	if len(desc.calls) != 1 || desc.calls[0] != "page.html http://final/page.html" {
		t.Errorf("descend calls = %v", desc.calls)
	}
}

func TestRetrieveAll_RecursionStatus(t *testing.T) {
	r := &mockRetriever{results: map[string]retriever.Result{"page": ok("page.html", true)}}
	desc := &mockDescender{status: domain.StatusQuotaExceeded}
	d := New(&Config{Recursive: true}, r, desc, &mockFiles{}, accounting.New(0), nil, zap.NewNop())

	status, _ := d.RetrieveAll(context.Background(), source.NewSlice([]string{"page"}))

	if status != domain.StatusQuotaExceeded {
		t.Errorf("status = %v, want quota_exceeded", status)
	}
}

func TestRetrieveAll_DeleteAfter(t *testing.T) {
	r := &mockRetriever{results: map[string]retriever.Result{
		"a": ok("a.txt", false),
		"b": ok("b.txt", false),
	}}
	files := &mockFiles{existing: map[string]bool{"a.txt": true}}
	stats := event.NewStatsHandler()
	dispatcher := event.NewInMemoryDispatcher()
	dispatcher.Subscribe(stats)
	d := New(&Config{DeleteAfter: true}, r, nil, files, accounting.New(0), dispatcher, zap.NewNop())

	status, _ := d.RetrieveAll(context.Background(), source.NewSlice([]string{"a", "b"}))

	if status != domain.StatusOK {
		t.Errorf("status = %v, want ok", status)
	}
	if len(files.removed) != 1 || files.removed[0] != "a.txt" {
		t.Errorf("removed = %v, want [a.txt]", files.removed)
	}
	if stats.Stats()["removed"] != 1 {
		t.Errorf("removed events = %d, want 1", stats.Stats()["removed"])
	}
	// b.txt does not exist locally so it is left alone and still counts.
	if d.Retained() != 1 {
		t.Errorf("Retained() = %d, want 1", d.Retained())
	}
}

func TestRetrieveAll_DeleteAfterFailureContinues(t *testing.T) {
	r := &mockRetriever{results: map[string]retriever.Result{
		"a": ok("a.txt", false),
		"b": ok("b.txt", false),
	}}
	files := &mockFiles{
		existing:  map[string]bool{"a.txt": true, "b.txt": true},
		removeErr: errors.New("permission denied"),
	}
	d := New(&Config{DeleteAfter: true}, r, nil, files, accounting.New(0), nil, zap.NewNop())

	status, count := d.RetrieveAll(context.Background(), source.NewSlice([]string{"a", "b"}))

	if status != domain.StatusOK || count != 2 {
		t.Errorf("RetrieveAll() = %v, %d; want ok, 2", status, count)
	}
	if d.Retained() != 0 {
		t.Errorf("Retained() = %d, want 0", d.Retained())
	}
}

func TestRetrieveAll_SourceError(t *testing.T) {
	d := New(nil, &mockRetriever{}, nil, &mockFiles{}, accounting.New(0), nil, zap.NewNop())

	status, count := d.RetrieveAll(context.Background(), failingSource{})

	if status != domain.StatusOK || count != 0 {
		t.Errorf("RetrieveAll() = %v, %d; want ok, 0", status, count)
	}
}

type failingSource struct{}

func (failingSource) Next() (string, bool) { return "", false }
func (failingSource) Err() error           { return errors.New("read error") }

type handlerFunc func(event.DomainEvent)

func (f handlerFunc) Handle(e event.DomainEvent) error {
	f(e)
	return nil
}

func (f handlerFunc) HandledEvents() []string { return []string{"*"} }

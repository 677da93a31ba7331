package scanning

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// PageSnapshot carries what a page context exposes to the classifier: the
// tab's URL and title plus its current HTML. Only the bounded visible-text
// sample derived from the HTML is ever inspected, and only transiently.
type PageSnapshot struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// SnapshotInjector is the in-process classifier invocation boundary. It
// stands in for executing a content script in a real tab: injecting runs the
// classifier against the registered snapshot in its own goroutine and
// delivers the resulting verdict to the sink, exactly once per injection.
type SnapshotInjector struct {
	classifier *Classifier
	sink       VerdictSink

	mu        sync.Mutex
	snapshots map[int]PageSnapshot
}

// NewSnapshotInjector creates an injector for the given classifier. A
// verdict sink must be attached with DeliverTo before the first injection;
// the coordinator that drives this injector is also the sink, so the two are
// wired in separate steps.
func NewSnapshotInjector(classifier *Classifier) *SnapshotInjector {
	return &SnapshotInjector{
		classifier: classifier,
		snapshots:  make(map[int]PageSnapshot),
	}
}

// DeliverTo attaches the sink verdicts flow back through.
func (s *SnapshotInjector) DeliverTo(sink VerdictSink) {
	s.sink = sink
}

// Register stores the current snapshot for a tab, replacing any previous one.
func (s *SnapshotInjector) Register(tabID int, snapshot PageSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[tabID] = snapshot
}

// Release drops a tab's snapshot once its scan has settled.
func (s *SnapshotInjector) Release(tabID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, tabID)
}

// Inject runs the classifier against the tab's registered snapshot. A tab
// with no snapshot behaves like a page the classifier cannot be loaded into.
func (s *SnapshotInjector) Inject(ctx context.Context, tabID int) error {
	if s.sink == nil {
		return fmt.Errorf("no verdict sink attached")
	}

	s.mu.Lock()
	snapshot, ok := s.snapshots[tabID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no page snapshot for tab %d", tabID)
	}

	go func() {
		sample := VisibleTextSample(snapshot.HTML)
		verdict := s.classifier.Classify(snapshot.URL, pathOf(snapshot.URL), sample, snapshot.Title)
		s.sink.Deliver(tabID, verdict)
	}()
	return nil
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"sync"
	"testing"

	"github.com/nao1215/boxhunt/internal/dedup"
	"github.com/nao1215/boxhunt/internal/fetch"
	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/quality"
	"github.com/nao1215/boxhunt/internal/storage"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name     string
	doFunc   func(ctx context.Context, job *Job) error
	finalize bool

	mu        sync.Mutex
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, job *Job) error {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
	if m.doFunc != nil {
		return m.doFunc(ctx, job)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// Finalizes implements Finalizer.
func (m *mockStep) Finalizes() bool {
	return m.finalize
}

func (m *mockStep) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testCandidate(url string) model.ImageCandidate {
	return model.ImageCandidate{SourceID: "pexels", URL: url, Title: "box"}
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	p := New()
	if p.StepCount() != 0 {
		t.Errorf("expected 0 steps, got %d", p.StepCount())
	}
	if p.logger == nil {
		t.Error("expected default logger")
	}

	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	names := p.StepNames()
	expected := []string{"first", "second", "third"}
	for i, name := range names {
		if name != expected[i] {
			t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
		}
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		p := New(WithLogger(quietLogger()))
		p.AddSteps(&mockStep{name: "step-1"}, &mockStep{name: "step-2"})

		job := NewJob("default", testCandidate("https://img.test/a.png"))
		if err := p.Execute(t.Context(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(job.Steps) != 2 || job.Steps[0] != "step-1" || job.Steps[1] != "step-2" {
			t.Errorf("wrong execution order: %v", job.Steps)
		}
	})

	t.Run("skips to finalizers once settled", func(t *testing.T) {
		t.Parallel()

		skipped := &mockStep{name: "skipped"}
		final := &mockStep{name: "final", finalize: true}

		p := New(WithLogger(quietLogger()))
		p.AddSteps(
			&mockStep{name: "settle", doFunc: func(_ context.Context, job *Job) error {
				job.Settle(model.StatusFailed, "gone")
				return nil
			}},
			skipped,
			final,
		)

		job := NewJob("default", testCandidate("https://img.test/a.png"))
		if err := p.Execute(t.Context(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if skipped.calls() != 0 {
			t.Error("step after settlement should not run")
		}
		if final.calls() != 1 {
			t.Error("finalizer should run after settlement")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("disk full")
		next := &mockStep{name: "should-not-run", finalize: true}

		p := New(WithLogger(quietLogger()))
		p.AddSteps(
			&mockStep{name: "failing-step", doFunc: func(context.Context, *Job) error {
				return expectedErr
			}},
			next,
		)

		err := p.Execute(t.Context(), NewJob("default", testCandidate("https://img.test/a.png")))
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if next.calls() != 0 {
			t.Error("second step should not have been called")
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		t.Parallel()

		step := &mockStep{name: "never"}
		p := New(WithLogger(quietLogger()))
		p.AddStep(step)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		err := p.Execute(ctx, NewJob("default", testCandidate("https://img.test/a.png")))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.calls() != 0 {
			t.Error("step should not run after cancellation")
		}
	})
}

// testImage encodes a w x h PNG whose blue channel is shade.
func testImage(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeDownloader serves canned content per URL.
type fakeDownloader struct {
	content map[string][]byte
	errs    map[string]error
}

func (d *fakeDownloader) Fetch(ctx context.Context, _ string, url string) (*fetch.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := d.errs[url]; ok {
		return nil, err
	}
	body, ok := d.content[url]
	if !ok {
		return nil, fetch.ErrNetworkFailure
	}
	return &fetch.Result{URL: url, Body: body, ContentType: "image/png", ContentLength: int64(len(body)), Attempts: 1}, nil
}

// fakeHasher returns the fingerprint registered for the exact content.
type fakeHasher struct {
	prints map[string]model.Fingerprint
}

func (h *fakeHasher) HashBytes(data []byte) (model.Fingerprint, error) {
	fp, ok := h.prints[string(data)]
	if !ok {
		return 0, errors.New("cannot decode")
	}
	return fp, nil
}

type fixture struct {
	store      *storage.Manager
	downloader *fakeDownloader
	hasher     *fakeHasher
	committer  *Committer
	pipeline   *Pipeline
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	store, err := storage.NewManager(t.TempDir(), storage.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() }) //nolint:errcheck

	f := &fixture{
		store:      store,
		downloader: &fakeDownloader{content: map[string][]byte{}, errs: map[string]error{}},
		hasher:     &fakeHasher{prints: map[string]model.Fingerprint{}},
		committer:  NewCommitter(store, dedup.NewIndex(threshold)),
	}
	filter := quality.NewFilter(64, 64, []string{"png", "jpg"}, 1<<20)
	f.pipeline = NewCandidatePipeline(filter, f.downloader, f.hasher, f.committer, store, WithLogger(quietLogger()))
	return f
}

// serve registers content and its fingerprint under url.
func (f *fixture) serve(url string, data []byte, fp model.Fingerprint) {
	f.downloader.content[url] = data
	f.hasher.prints[string(data)] = fp
}

func (f *fixture) run(t *testing.T, c model.ImageCandidate) *Job {
	t.Helper()
	job := NewJob("default", c)
	if err := f.pipeline.Execute(t.Context(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return job
}

// TestCandidatePipeline tests the standard step sequence end to end.
func TestCandidatePipeline(t *testing.T) {
	t.Parallel()

	t.Run("accepts a good image", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, 5)
		f.serve("https://img.test/a.png", testImage(t, 100, 80, 10), 0xff00)

		job := f.run(t, testCandidate("https://img.test/a.png"))
		if job.Status != model.StatusDownloaded || !job.Recorded() {
			t.Fatalf("expected downloaded record, got %q (%s)", job.Status, job.Detail)
		}
		if job.Record.Width != 100 || job.Record.Height != 80 || job.Record.PerceptualHash != "000000000000ff00" {
			t.Errorf("unexpected record %+v", job.Record)
		}
		if f.committer.IndexSize() != 1 {
			t.Errorf("expected index size 1, got %d", f.committer.IndexSize())
		}
	})

	t.Run("rejects declared dimensions without fetching", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, 5)
		c := testCandidate("https://img.test/tiny.png")
		c.Width, c.Height = 10, 10

		job := f.run(t, c)
		if job.Status != model.StatusRejected || job.Reason != model.RejectBelowMinDimensions {
			t.Fatalf("expected below-min rejection, got %q/%q", job.Status, job.Reason)
		}
		if job.Content != nil {
			t.Error("rejected candidate should not be fetched")
		}
		recs, err := f.store.DomainRecords("default")
		if err != nil {
			t.Fatalf("failed to read records: %v", err)
		}
		if len(recs) != 1 || recs[0].Status != model.StatusRejected {
			t.Errorf("expected one rejected row, got %+v", recs)
		}
	})

	t.Run("rejects small content", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, 5)
		f.serve("https://img.test/small.png", testImage(t, 32, 32, 10), 1)

		job := f.run(t, testCandidate("https://img.test/small.png"))
		if job.Status != model.StatusRejected || job.Reason != model.RejectBelowMinDimensions {
			t.Fatalf("expected below-min rejection, got %q/%q", job.Status, job.Reason)
		}
		if job.Record.Width != 32 {
			t.Errorf("expected inspected width on the row, got %d", job.Record.Width)
		}
	})

	t.Run("corrupt content", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, 5)
		f.downloader.content["https://img.test/bad.png"] = testImage(t, 100, 100, 1)

		job := f.run(t, testCandidate("https://img.test/bad.png"))
		if job.Status != model.StatusRejected || job.Reason != model.RejectCorruptImage {
			t.Fatalf("expected corrupt rejection, got %q/%q", job.Status, job.Reason)
		}
	})

	t.Run("oversize is a rejection", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, 5)
		f.downloader.errs["https://img.test/huge.png"] = fetch.ErrOversize

		job := f.run(t, testCandidate("https://img.test/huge.png"))
		if job.Status != model.StatusRejected || job.Reason != model.RejectOversizeFile {
			t.Fatalf("expected oversize rejection, got %q/%q", job.Status, job.Reason)
		}
	})

	t.Run("network failure is failed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, 5)
		job := f.run(t, testCandidate("https://img.test/missing.png"))
		if job.Status != model.StatusFailed || !job.Recorded() {
			t.Fatalf("expected recorded failure, got %q", job.Status)
		}
	})

	t.Run("near duplicate", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, 5)
		f.serve("https://img.test/a.png", testImage(t, 100, 100, 10), 0b1111)
		f.serve("https://img.test/b.png", testImage(t, 100, 100, 20), 0b0011)
		f.serve("https://img.test/c.png", testImage(t, 100, 100, 30), 0xffff_0000)

		first := f.run(t, testCandidate("https://img.test/a.png"))
		dup := f.run(t, testCandidate("https://img.test/b.png"))
		other := f.run(t, testCandidate("https://img.test/c.png"))

		if dup.Status != model.StatusDuplicate || dup.Match == nil {
			t.Fatalf("expected duplicate, got %q", dup.Status)
		}
		if dup.Match.ID != first.Record.ID || dup.Match.Distance != 2 {
			t.Errorf("unexpected match %+v", dup.Match)
		}
		if dup.Record.PerceptualHash != "0000000000000003" {
			t.Errorf("duplicate row should carry its fingerprint, got %q", dup.Record.PerceptualHash)
		}
		if other.Status != model.StatusDownloaded {
			t.Errorf("distant image should be accepted, got %q", other.Status)
		}
		if f.committer.IndexSize() != 2 {
			t.Errorf("expected index size 2, got %d", f.committer.IndexSize())
		}
	})

	t.Run("cancellation writes nothing", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, 5)
		f.serve("https://img.test/a.png", testImage(t, 100, 100, 10), 1)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := f.pipeline.Execute(ctx, NewJob("default", testCandidate("https://img.test/a.png")))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		recs, err := f.store.DomainRecords("default")
		if err != nil {
			t.Fatalf("failed to read records: %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("expected no rows, got %d", len(recs))
		}
	})
}

// TestRecordStep tests the outcome writer.
func TestRecordStep(t *testing.T) {
	t.Parallel()

	t.Run("open job is an error", func(t *testing.T) {
		t.Parallel()

		step := NewRecordStep(nil)
		if err := step.Do(t.Context(), NewJob("default", testCandidate("https://img.test/a.png"))); err == nil {
			t.Error("expected error for a job without outcome")
		}
	})

	t.Run("recorded job is left alone", func(t *testing.T) {
		t.Parallel()

		job := NewJob("default", testCandidate("https://img.test/a.png"))
		job.Record = &model.ImageRecord{ID: "x"}
		job.Settle(model.StatusDownloaded, "")
		if err := NewRecordStep(nil).Do(t.Context(), job); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

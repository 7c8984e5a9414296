package resume

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xtxerr/lenedastat/internal/aggregate"
	"github.com/xtxerr/lenedastat/internal/series"
)

type fakeReader struct {
	state series.ResumeState
	err   error
	calls int
}

func (f *fakeReader) ReadLast(ctx context.Context, seriesID string) (series.ResumeState, error) {
	f.calls++
	return f.state, f.err
}

var now = time.Date(2024, 6, 1, 12, 34, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

func TestResolve_NoHistory(t *testing.T) {
	reader := &fakeReader{}
	c := Cursor{Reader: reader, Granularity: time.Hour, InitialLookback: 180 * 24 * time.Hour, Now: fixedNow}

	pos, err := c.Resolve(context.Background(), "mp_obis_energy_hourly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := now.Add(-180 * 24 * time.Hour)
	if !pos.Since.Equal(want) {
		t.Errorf("expected since=%v, got %v", want, pos.Since)
	}
	if pos.Seed != 0 {
		t.Errorf("expected seed=0, got %f", pos.Seed)
	}
	if reader.calls != 1 {
		t.Errorf("expected 1 store read, got %d", reader.calls)
	}
}

func TestResolve_WithHistory(t *testing.T) {
	last := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	reader := &fakeReader{state: series.ResumeState{LastPeriodStart: last, LastSum: 1234.5, HasHistory: true}}
	c := Cursor{Reader: reader, Granularity: time.Hour, InitialLookback: 180 * 24 * time.Hour, Now: fixedNow}

	pos, err := c.Resolve(context.Background(), "id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pos.Since.Equal(last.Add(time.Hour)) {
		t.Errorf("expected since=%v, got %v", last.Add(time.Hour), pos.Since)
	}
	if pos.Seed != 1234.5 {
		t.Errorf("expected seed=1234.5, got %f", pos.Seed)
	}
}

func TestResolve_ReadError(t *testing.T) {
	boom := errors.New("disk gone")
	c := Cursor{Reader: &fakeReader{err: boom}, Granularity: time.Hour, Now: fixedNow}

	if _, err := c.Resolve(context.Background(), "id"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
}

func TestResolve_InvalidCursor(t *testing.T) {
	if _, err := (Cursor{Granularity: time.Hour}).Resolve(context.Background(), "id"); err == nil {
		t.Error("expected error without reader")
	}
	if _, err := (Cursor{Reader: &fakeReader{}}).Resolve(context.Background(), "id"); err == nil {
		t.Error("expected error without granularity")
	}
}

func TestExclude(t *testing.T) {
	last := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	pos := Cursor{Granularity: time.Hour}.position(series.ResumeState{LastPeriodStart: last, LastSum: 100, HasHistory: true})

	samples := []series.Sample{
		series.NewSample(last.Add(-time.Hour), 50),     // before
		series.NewSample(last, 40),                     // equal to T
		series.NewSample(last.Add(45*time.Minute), 30), // inside the persisted hour
		series.NewSample(last.Add(time.Hour), 10),      // next hour
		series.NewSample(last.Add(time.Hour+15*time.Minute), 10),
	}

	kept := pos.Exclude(samples)
	if len(kept) != 2 {
		t.Fatalf("expected 2 samples kept, got %d", len(kept))
	}
	for _, s := range kept {
		if !s.Timestamp.After(last) {
			t.Errorf("sample at %v should have been excluded", s.Timestamp)
		}
	}
	if len(samples) != 5 {
		t.Error("input should not be modified")
	}
}

func TestExclude_NoHistoryKeepsAll(t *testing.T) {
	pos := Cursor{Granularity: time.Hour, Now: fixedNow}.position(series.ResumeState{})
	samples := []series.Sample{series.NewSample(now, 1), series.NewSample(now.Add(-time.Hour), 2)}

	if kept := pos.Exclude(samples); len(kept) != 2 {
		t.Errorf("expected all samples kept, got %d", len(kept))
	}
}

// Samples at or before the last persisted period never reach the total.
func TestExclude_SeededTotal(t *testing.T) {
	h := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	reader := &fakeReader{state: series.ResumeState{LastPeriodStart: h.Add(-time.Hour), LastSum: 100, HasHistory: true}}
	c := Cursor{Reader: reader, Granularity: time.Hour, Now: fixedNow}

	pos, err := c.Resolve(context.Background(), "id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	samples := []series.Sample{
		series.NewSample(h.Add(-time.Hour), 999), // already persisted
		series.NewSample(h, 10),
	}

	recs := aggregate.Cumulative{Granularity: time.Hour}.Aggregate(pos.Exclude(samples), pos.Seed)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if !recs[0].PeriodStart.Equal(h) {
		t.Errorf("expected period %v, got %v", h, recs[0].PeriodStart)
	}
	if *recs[0].Sum != 110 {
		t.Errorf("expected sum=110, got %f", *recs[0].Sum)
	}
}

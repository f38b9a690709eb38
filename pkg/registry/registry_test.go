package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
	"github.com/kehinde-elelu/aimechanics/pkg/model/modeltest"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(NewMemoryIndex(), newLocalBlobs(t), WithLogger(quiet()))
	t.Cleanup(func() { r.Close() })
	return r
}

func TestPutGetLoad(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	m := modeltest.New(t, 1)

	rec, err := r.Put(ctx, m, PutOptions{Source: "data/train", Metrics: map[string]float64{"test_accuracy": 0.93}})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != m.ID || rec.Size == 0 || len(rec.SHA256) != 64 || rec.Blob != "models/"+m.ID+".amsv" {
		t.Errorf("record = %+v", rec)
	}

	got, err := r.Get(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != "data/train" || got.Metrics["test_accuracy"] != 0.93 || got.CVScore != 1 {
		t.Errorf("Get = %+v", got)
	}
	if len(got.Classes) != 3 || got.Classes[2] != condition.Failure {
		t.Errorf("classes = %v", got.Classes)
	}

	loaded, err := r.Load(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(9, 9))
	for _, c := range condition.All() {
		v := modeltest.Vector(rng, c)
		a, _ := m.Predict(v)
		b, err := loaded.Predict(v)
		if err != nil {
			t.Fatal(err)
		}
		for i := range a.Probabilities {
			if a.Probabilities[i] != b.Probabilities[i] {
				t.Fatalf("loaded model predicts differently: %+v vs %+v", a.Probabilities, b.Probabilities)
			}
		}
	}

	if _, err := r.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: %v", err)
	}
}

func TestCurrent(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	if _, err := r.Current(ctx); !errors.Is(err, ErrNoCurrent) {
		t.Fatalf("Current on empty registry: %v", err)
	}
	if _, _, err := r.LoadCurrent(ctx); !errors.Is(err, ErrNoCurrent) {
		t.Fatalf("LoadCurrent on empty registry: %v", err)
	}

	a := modeltest.New(t, 1)
	b := modeltest.New(t, 2)
	if _, err := r.Put(ctx, a, PutOptions{Activate: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Put(ctx, b, PutOptions{}); err != nil {
		t.Fatal(err)
	}
	cur, err := r.Current(ctx)
	if err != nil || cur.ID != a.ID {
		t.Fatalf("Current = %v, %v", cur, err)
	}

	if err := r.SetCurrent(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	m, rec, err := r.LoadCurrent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != b.ID || rec.ID != b.ID {
		t.Errorf("LoadCurrent = %s / %s, want %s", m.ID, rec.ID, b.ID)
	}

	if err := r.SetCurrent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetCurrent missing: %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	older := modeltest.New(t, 1)
	older.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := modeltest.New(t, 2)
	newer.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, err := r.Put(ctx, older, PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Put(ctx, newer, PutOptions{Activate: true}); err != nil {
		t.Fatal(err)
	}

	list, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("List = %+v", list)
	}

	if err := r.Delete(ctx, newer.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Current(ctx); !errors.Is(err, ErrNoCurrent) {
		t.Errorf("deleting the current model should clear it: %v", err)
	}
	if ok, _ := r.blobs.Exists(ctx, blobPath(newer.ID)); ok {
		t.Error("artifact not removed")
	}
	if _, err := r.Load(ctx, newer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load deleted: %v", err)
	}
	if err := r.Delete(ctx, newer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Delete: %v", err)
	}
	list, _ = r.List(ctx)
	if len(list) != 1 {
		t.Errorf("List after delete = %d", len(list))
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	a := modeltest.New(t, 1)
	a.ID = "aa11"
	b := modeltest.New(t, 2)
	b.ID = "aa22"
	for _, m := range []*model.TrainedModel{a, b} {
		if _, err := r.Put(ctx, m, PutOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	if id, err := r.Resolve(ctx, "aa1"); err != nil || id != "aa11" {
		t.Errorf("Resolve(aa1) = %q, %v", id, err)
	}
	if id, err := r.Resolve(ctx, "aa22"); err != nil || id != "aa22" {
		t.Errorf("Resolve(aa22) = %q, %v", id, err)
	}
	if _, err := r.Resolve(ctx, "aa"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("Resolve(aa) = %v", err)
	}
	if _, err := r.Resolve(ctx, "zz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(zz) = %v", err)
	}
}

func TestLoadChecksum(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	m := modeltest.New(t, 1)
	if _, err := r.Put(ctx, m, PutOptions{}); err != nil {
		t.Fatal(err)
	}
	writeBlob(t, r.blobs, blobPath(m.ID), "AMSV tampered")
	if _, err := r.Load(ctx, m.ID); !errors.Is(err, ErrChecksum) {
		t.Errorf("Load tampered = %v", err)
	}
}

func TestS3Backed(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	r := New(newBadgerIndex(t), NewS3Blobs(fake, "bucket", "aimechanics"), WithLogger(quiet()))
	m := modeltest.New(t, 3)
	if _, err := r.Put(ctx, m, PutOptions{Activate: true}); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.objects["aimechanics/models/"+m.ID+".amsv"]; !ok {
		t.Fatalf("objects = %v", len(fake.objects))
	}
	got, _, err := r.LoadCurrent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID {
		t.Errorf("id = %s", got.ID)
	}
}

func TestOpenPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{Dir: dir}

	r, err := Open(cfg, WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	m := modeltest.New(t, 4)
	if _, err := r.Put(ctx, m, PutOptions{Activate: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	r, err = Open(cfg, WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, rec, err := r.LoadCurrent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID || rec.Blob == "" {
		t.Errorf("reopened current = %s", got.ID)
	}

	if _, err := Open(Config{Dir: filepath.Join(dir, "x"), Backend: "tape"}); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.lock")
	a := New(NewMemoryIndex(), newLocalBlobs(t), WithLockFile(path))
	b := New(NewMemoryIndex(), newLocalBlobs(t), WithLockFile(path))

	unlock, err := a.Lock()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Lock(); !errors.Is(err, ErrLocked) {
		t.Errorf("second Lock = %v, want ErrLocked", err)
	}
	if err := unlock(); err != nil {
		t.Fatal(err)
	}
	unlock, err = b.Lock()
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	unlock()
}

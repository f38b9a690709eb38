package model

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/preprocess"
	"github.com/kehinde-elelu/aimechanics/pkg/svm"
)

// testData returns three well separated clusters in feature space.
func testData(t *testing.T, perClass int) ([][]float64, []int) {
	t.Helper()
	rng := rand.New(rand.NewPCG(5, 6))
	var x [][]float64
	var y []int
	for _, c := range condition.All() {
		for range perClass {
			row := make([]float64, features.Dim)
			for j := range row {
				row[j] = rng.NormFloat64() * 0.3
			}
			row[int(c)] += 4
			row[10+int(c)] -= 3
			x = append(x, row)
			y = append(y, int(c))
		}
	}
	return x, y
}

func buildModel(t *testing.T) (*TrainedModel, [][]float64, []int) {
	t.Helper()
	x, y := testData(t, 20)
	scaler, err := preprocess.FitScaler(x)
	if err != nil {
		t.Fatal(err)
	}
	scaled, _ := scaler.TransformAll(x)
	pca, err := preprocess.FitPCA(scaled, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	projected, _ := pca.TransformAll(scaled)
	gamma, err := svm.GammaScale.Resolve(projected)
	if err != nil {
		t.Fatal(err)
	}
	p := svm.DefaultParams()
	p.Gamma = gamma
	p.Seed = 42
	svc, err := svm.Fit(projected, y, p)
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(scaler, pca, svc, Selection{
		Best:  Hyperparams{Kernel: svm.KernelRBF, C: 1, Gamma: svm.GammaScale},
		Score: 1,
		Folds: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m, x, y
}

func TestNew(t *testing.T) {
	m, _, _ := buildModel(t)
	if m.ID == "" {
		t.Error("missing ID")
	}
	if m.SchemaVersion != features.SchemaVersion {
		t.Errorf("schema = %q", m.SchemaVersion)
	}
	if len(m.Classes) != condition.Count {
		t.Fatalf("classes = %v", m.Classes)
	}
	for i, c := range m.Classes {
		if int(c) != i {
			t.Errorf("Classes[%d] = %v", i, c)
		}
	}
	if m.FeatureDim() != features.Dim {
		t.Errorf("FeatureDim = %d", m.FeatureDim())
	}
}

func TestPredict(t *testing.T) {
	m, x, y := buildModel(t)
	for i, row := range x {
		res, err := m.Predict(row)
		if err != nil {
			t.Fatal(err)
		}
		if int(res.Label) != y[i] {
			t.Errorf("row %d: label %v, want %v", i, res.Label, condition.Class(y[i]))
		}
		if res.Signal != res.Label.Signal() {
			t.Errorf("signal %q for %v", res.Signal, res.Label)
		}
		sum := 0.0
		for _, p := range res.Probabilities {
			if p.Probability < 0 {
				t.Fatalf("negative probability %v", p.Probability)
			}
			sum += p.Probability
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("sum = %v", sum)
		}
		if res.Confidence() < 1.0/3 {
			t.Errorf("confidence %v below uniform", res.Confidence())
		}
	}
}

func TestTransformSchemaMismatch(t *testing.T) {
	m, _, _ := buildModel(t)
	for _, n := range []int{0, 54, 56, 100} {
		_, err := m.Transform(make(features.Vector, n))
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("len %d: err = %v, want ErrSchemaMismatch", n, err)
		}
		var sme *SchemaMismatchError
		if !errors.As(err, &sme) || sme.WantDim != features.Dim || sme.GotDim != n {
			t.Errorf("len %d: err = %#v", n, err)
		}
	}
	if err := m.CheckSchema("amfeat/0", features.Dim); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("version mismatch err = %v", err)
	}
	if err := m.CheckSchema(features.SchemaVersion, features.Dim); err != nil {
		t.Errorf("CheckSchema: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	m, x, _ := buildModel(t)
	data, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("AMSV")) {
		t.Fatalf("missing magic: %q", data[:4])
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != m.ID || !back.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("identity changed: %s/%v vs %s/%v", back.ID, back.CreatedAt, m.ID, m.CreatedAt)
	}
	if back.Selection.Best != m.Selection.Best {
		t.Errorf("selection changed: %+v", back.Selection.Best)
	}
	for _, row := range x {
		a, err := m.Predict(row)
		if err != nil {
			t.Fatal(err)
		}
		b, err := back.Predict(row)
		if err != nil {
			t.Fatal(err)
		}
		if a.Label != b.Label {
			t.Fatalf("label %v vs %v", a.Label, b.Label)
		}
		for i := range a.Probabilities {
			if math.Float64bits(a.Probabilities[i].Probability) != math.Float64bits(b.Probabilities[i].Probability) {
				t.Fatalf("probability %d: %v vs %v", i, a.Probabilities[i], b.Probabilities[i])
			}
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	m, _, _ := buildModel(t)
	path := filepath.Join(t.TempDir(), "models", "m.amsv")
	if err := SaveFile(path, m); err != nil {
		t.Fatal(err)
	}
	back, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != m.ID {
		t.Errorf("ID = %s, want %s", back.ID, m.ID)
	}
}

func TestLoadInvalid(t *testing.T) {
	m, _, _ := buildModel(t)
	good, _ := Marshal(m)

	badVersion := bytes.Clone(good)
	badVersion[4] = 99

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("AM")},
		{"bad magic", append([]byte("XXXX"), good[4:]...)},
		{"bad version", badVersion},
		{"truncated body", good[:len(good)/2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal(tt.data); !errors.Is(err, ErrInvalidArtifact) {
				t.Errorf("err = %v, want ErrInvalidArtifact", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	m, _, _ := buildModel(t)
	broken := *m
	broken.PCA = nil
	if err := broken.Validate(); err == nil {
		t.Error("missing PCA should fail")
	}
	broken = *m
	broken.Classes = broken.Classes[:1]
	if err := broken.Validate(); err == nil {
		t.Error("class count mismatch should fail")
	}
	if err := Save(&bytes.Buffer{}, nil); err == nil {
		t.Error("saving nil should fail")
	}
}

package models

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/slidekit/patchembed/pkg/tensor"
)

func TestLoadUnknownName(t *testing.T) {
	_, err := Load("no-such-model", "cpu")
	if err == nil {
		t.Fatal("expected error for unknown model name")
	}
	if !strings.Contains(err.Error(), "dummy") {
		t.Errorf("error should list valid names, got: %v", err)
	}
}

func TestNamesIncludesBuiltins(t *testing.T) {
	names := Names()
	found := map[string]bool{}
	for _, name := range names {
		found[name] = true
	}
	if !found["dummy"] || !found["stats"] {
		t.Errorf("Names() = %v, want dummy and stats present", names)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register("dummy", func(string) (FeatureExtractor, error) {
		return NewDummy(3), nil
	})
}

func TestDummyForward(t *testing.T) {
	model, err := Load("dummy", "cpu")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if model.OutputDim() != 3 {
		t.Fatalf("OutputDim() = %d, want 3", model.OutputDim())
	}

	a := tensor.New(3, 4, 4)
	a.Set(0, 0, 0, 0.1)
	a.Set(1, 0, 0, 0.2)
	a.Set(2, 0, 0, 0.3)
	b := tensor.New(3, 4, 4)
	b.Set(0, 0, 0, 0.9)

	batch, err := tensor.Stack([]tensor.Tensor{a, b})
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}
	vecs, err := model.Forward(context.Background(), batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	want := []float32{0.1, 0.2, 0.3}
	for c, v := range want {
		if vecs[0][c] != v {
			t.Errorf("vecs[0][%d] = %f, want %f", c, vecs[0][c], v)
		}
	}
	if vecs[1][0] != 0.9 || vecs[1][1] != 0 {
		t.Errorf("vecs[1] = %v, want [0.9 0 0]", vecs[1])
	}
}

func TestStatsForward(t *testing.T) {
	model := NewStats(3)
	if model.OutputDim() != 12 {
		t.Fatalf("OutputDim() = %d, want 12", model.OutputDim())
	}

	patch := tensor.New(3, 2, 2)
	// red channel: 0, 0.2, 0.4, 0.6
	patch.Set(0, 0, 1, 0.2)
	patch.Set(0, 1, 0, 0.4)
	patch.Set(0, 1, 1, 0.6)

	batch, err := tensor.Stack([]tensor.Tensor{patch})
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}
	vecs, err := model.Forward(context.Background(), batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 12 {
		t.Fatalf("got %dx%d, want 1x12", len(vecs), len(vecs[0]))
	}

	vec := vecs[0]
	if math.Abs(float64(vec[0])-0.3) > 1e-6 {
		t.Errorf("red mean = %f, want 0.3", vec[0])
	}
	if vec[2] != 0 {
		t.Errorf("red min = %f, want 0", vec[2])
	}
	if math.Abs(float64(vec[3])-0.6) > 1e-6 {
		t.Errorf("red max = %f, want 0.6", vec[3])
	}
	// green and blue are all-zero planes
	for _, i := range []int{4, 5, 6, 7, 8, 9, 10, 11} {
		if vec[i] != 0 {
			t.Errorf("vec[%d] = %f, want 0", i, vec[i])
		}
	}
}

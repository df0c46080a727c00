package raster

import "testing"

func TestExpandBands(t *testing.T) {
	tests := []struct {
		in      []int
		want    []int
		wantErr bool
	}{
		{[]int{1}, []int{1, 1, 1}, false},
		{[]int{0, 3}, []int{0, 0, 0, 3}, false},
		{[]int{2, 1, 0}, []int{2, 1, 0}, false},
		{[]int{0, 1, 2, 3}, []int{0, 1, 2, 3}, false},
		{nil, nil, true},
		{[]int{0, 1, 2, 3, 4}, nil, true},
	}

	for _, tt := range tests {
		got, err := ExpandBands(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ExpandBands(%v) error = %v", tt.in, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("ExpandBands(%v) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ExpandBands(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}

func TestComputeColor_Grayscale(t *testing.T) {
	channels, _ := ExpandBands([]int{1})
	stats := NewStats([]float64{0, 0}, []float64{255, 200})

	got := ComputeColor([]float64{17, 100}, channels, stats, nil)
	if got != "rgba(128,128,128,1)" {
		t.Errorf("ComputeColor() = %s, want rgba(128,128,128,1)", got)
	}
}

func TestComputeColor_IntegerAlpha(t *testing.T) {
	alphas := ParseAlphas([]int{8, 8, 8, 8}, nil, 1)
	stats := NewStats([]float64{0, 0, 0, 0}, []float64{100, 100, 100, 10})

	got := ComputeColor([]float64{0, 50, 100, 51}, []int{0, 1, 2, 3}, stats, alphas)
	if got != "rgba(0,128,255,0.2)" {
		t.Errorf("ComputeColor() = %s", got)
	}
}

func TestComputeColor_FloatAlpha(t *testing.T) {
	alphas := map[int]Alpha{3: {}}
	tests := []struct {
		name  string
		alpha float64
		min   float64
		max   float64
		want  string
	}{
		{"unit range", 0.5, 0, 1, "rgba(0,0,0,0.5019607843137255)"},
		{"percent", 50, 0, 100, "rgba(0,0,0,0.5019607843137255)"},
		{"byte", 51, 0, 255, "rgba(0,0,0,0.2)"},
		{"degenerate", -5, -5, -5, "rgba(0,0,0,1)"},
		{"own range", 500, 0, 1000, "rgba(0,0,0,0.5019607843137255)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := NewStats([]float64{0, 0, 0, tt.min}, []float64{1, 1, 1, tt.max})
			got := ComputeColor([]float64{0, 0, 0, tt.alpha}, []int{0, 1, 2, 3}, stats, alphas)
			if got != tt.want {
				t.Errorf("ComputeColor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewColorFn_ReadsStatsLazily(t *testing.T) {
	var stats Stats
	fn := NewColorFn([]int{0, 0, 0}, func() Stats { return stats }, nil)

	stats = NewStats([]float64{0}, []float64{10})
	if got := fn([]float64{10}); got != "rgba(255,255,255,1)" {
		t.Errorf("fn() = %s", got)
	}
}

func TestParseAlphas(t *testing.T) {
	alphas := ParseAlphas([]int{16, 16, 32}, []int{2, 2, 3}, 2)
	if len(alphas) != 2 {
		t.Fatalf("ParseAlphas() = %v", alphas)
	}
	if _, ok := alphas[0]; ok {
		t.Error("band 0 is not an extra sample")
	}
	if a := alphas[1]; !a.Int || a.Min != -32768 || a.Range != 65535 {
		t.Errorf("alpha 1 = %+v", a)
	}
	if a := alphas[2]; a.Int {
		t.Errorf("float alpha should not be integer: %+v", a)
	}

	if got := ParseAlphas([]int{8}, nil, 5); len(got) != 1 {
		t.Errorf("extra sample count should be capped: %v", got)
	}
	if got := ParseAlphas([]int{8, 8, 8}, nil, 0); len(got) != 0 {
		t.Errorf("no extra samples expected: %v", got)
	}
}

package series

import (
	"encoding/json"
	"testing"
)

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        Value
		expectError bool
	}{
		{name: "number", input: `1.5`, want: Number(1.5)},
		{name: "integer", input: `42`, want: Number(42)},
		{name: "null", input: `null`, want: Null()},
		{name: "numeric string", input: `"3.25"`, want: Number(3.25)},
		{name: "text", input: `"Running"`, expectError: true},
		{name: "bool", input: `true`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			err := json.Unmarshal([]byte(tt.input), &v)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for %s, got %+v", tt.input, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if v != tt.want {
				t.Errorf("Unmarshal(%s) = %+v, want %+v", tt.input, v, tt.want)
			}
		})
	}
}

func TestSample_NullValueInDocument(t *testing.T) {
	var samples []Sample
	doc := `[{"t":"2024-03-01T10:00:00Z","v":null,"q":192},{"t":"2024-03-01T11:00:00Z","v":7}]`
	if err := json.Unmarshal([]byte(doc), &samples); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if !samples[0].Value.Missing {
		t.Error("Expected first sample to carry the missing marker")
	}
	if samples[0].Quality == nil || *samples[0].Quality != 192 {
		t.Errorf("Quality = %v, want 192", samples[0].Quality)
	}
	if samples[1].Value != Number(7) {
		t.Errorf("Value = %+v, want 7", samples[1].Value)
	}
	if samples[1].Quality != nil {
		t.Errorf("Quality = %v, want nil", *samples[1].Quality)
	}

	out, err := json.Marshal(samples[0].Value)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != "null" {
		t.Errorf("Marshal(missing) = %s, want null", out)
	}
}

func TestDataset_Merge(t *testing.T) {
	ds := Dataset{}
	ds.Merge(Dataset{"T1": {{Value: Number(1)}, {Value: Number(2)}}})
	ds.Merge(Dataset{"T1": {{Value: Number(3)}}, "T2": {{Value: Null()}}})

	values, ok := ds.Values("T1")
	if !ok {
		t.Fatal("T1 missing after merge")
	}
	want := []float64{1, 2, 3}
	if len(values) != len(want) {
		t.Fatalf("len(T1) = %d, want %d", len(values), len(want))
	}
	for i, v := range values {
		if v.Float != want[i] {
			t.Errorf("T1[%d] = %v, want %v", i, v.Float, want[i])
		}
	}

	if ds.Tags() != 2 {
		t.Errorf("Tags() = %d, want 2", ds.Tags())
	}
	if ds.Len() != 4 {
		t.Errorf("Len() = %d, want 4", ds.Len())
	}
	if _, ok := ds.Values("T3"); ok {
		t.Error("Values(T3) reported present")
	}
}

func TestValue_OrZero(t *testing.T) {
	if got := Null().OrZero(); got != 0 {
		t.Errorf("Null().OrZero() = %v, want 0", got)
	}
	if got := Number(2.5).OrZero(); got != 2.5 {
		t.Errorf("Number(2.5).OrZero() = %v, want 2.5", got)
	}
}

package noaa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseReading(t *testing.T) {
	table := []struct {
		input string
		want  Reading
	}{{
		input: `{"t":"2020-10-20 02:17", "v":"4.080", "type":"H"}`,
		want:  Reading{T: "2020-10-20 02:17", V: NewValue(4.08), Type: HighTide},
	}, {
		input: `{"t":"2019-09-21 06:56", "v":"2.559", "type":"L"}`,
		want:  Reading{T: "2019-09-21 06:56", V: NewValue(2.559), Type: LowTide},
	}, {
		input: `{"t":"2025-03-01 12:06", "v":"", "s":"", "f":"1,1,1,1", "q":"p"}`,
		want:  Reading{T: "2025-03-01 12:06"},
	}, {
		input: `{"t":"2025-03-01 12:12", "v":3.5}`,
		want:  Reading{T: "2025-03-01 12:12", V: NewValue(3.5)},
	}, {
		input: `{"t":"2025-03-01 12:18", "v":null}`,
		want:  Reading{T: "2025-03-01 12:18"},
	}, {
		input: `{"t":"not-a-date", "v":"1.0", "type":"LL"}`,
		want:  Reading{T: "not-a-date", V: NewValue(1), Type: LowTide},
	}}

	for _, test := range table {
		t.Run(test.input, func(t *testing.T) {
			var got Reading

			dec := json.NewDecoder(bytes.NewBufferString(test.input))
			if err := dec.Decode(&got); err != nil {
				t.Errorf("unexpected error: %+v", err)
			}

			if diff := cmp.Diff(fmt.Sprintf("%s", test.want), fmt.Sprintf("%s", got)); diff != "" {
				t.Errorf("incorrect parse (-want,+got): %s", diff)
			}
		})
	}
}

func TestParseReadingErrors(t *testing.T) {
	for _, input := range []string{
		`{"t":"2025-03-01 12:00", "v":"abc"}`,
		`{"t":"2025-03-01 12:00", "v":"1.0", "type":"X"}`,
		`{"t":"2025-03-01 12:00", "v":true}`,
	} {
		t.Run(input, func(t *testing.T) {
			var got Reading
			if err := json.Unmarshal([]byte(input), &got); err == nil {
				t.Errorf("expected error, got %s", got)
			}
		})
	}
}

func TestValueMarshalsAbsentAsNull(t *testing.T) {
	got, err := json.Marshal([]Reading{
		{T: "2025-03-01 12:00", V: NewValue(1.5), Type: HighTide},
		{T: "2025-03-01 12:06"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"t":"2025-03-01 12:00","v":1.5,"type":"H"},{"t":"2025-03-01 12:06","v":null}]`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("marshal (-want,+got): %s", diff)
	}
}

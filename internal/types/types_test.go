package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid request",
			req:     Request{Backend: "Libris", Status: "IN_NY", Direction: DirectionIncoming},
			wantErr: false,
		},
		{
			name:    "missing backend",
			req:     Request{Status: "IN_NY", Direction: DirectionIncoming},
			wantErr: true,
			errMsg:  "backend is required",
		},
		{
			name:    "missing status",
			req:     Request{Backend: "Libris", Direction: DirectionOutgoing},
			wantErr: true,
			errMsg:  "status is required",
		},
		{
			name:    "bad direction",
			req:     Request{Backend: "Libris", Status: "IN_NY", Direction: "SIDEWAYS"},
			wantErr: true,
			errMsg:  "invalid direction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want substring %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAppendNote(t *testing.T) {
	r := &Request{}
	r.AppendNote("  ")
	if r.Notes != "" {
		t.Fatalf("blank note should be ignored, got %q", r.Notes)
	}
	r.AppendNote("first")
	r.AppendNote("second")
	if r.Notes != "first\nsecond" {
		t.Errorf("Notes = %q", r.Notes)
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"in", DirectionIncoming, false},
		{"IN", DirectionIncoming, false},
		{"incoming", DirectionIncoming, false},
		{" out ", DirectionOutgoing, false},
		{"Outgoing", DirectionOutgoing, false},
		{"", "", true},
		{"both", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDirection(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDirection(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirectionOf(t *testing.T) {
	tests := []struct {
		code   string
		want   Direction
		wantOK bool
	}{
		{"IN_LAST", DirectionIncoming, true},
		{"OUT_LEV", DirectionOutgoing, true},
		{"REQREV", "", false},
		{"INVALID", "", false},
	}
	for _, tt := range tests {
		got, ok := DirectionOf(tt.code)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("DirectionOf(%q) = (%q, %v), want (%q, %v)", tt.code, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestOutcomeJSONShape(t *testing.T) {
	o := Outcome{
		Error:  1,
		Status: StatusUnknownRequest,
		Method: "cancel",
		Stage:  "commit",
		Next:   ViewRequest,
	}
	data, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"error", "status", "message", "method", "stage", "next", "value"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("outcome JSON missing key %q: %s", key, data)
		}
	}
	if raw["next"] != "illview" {
		t.Errorf("next = %v, want illview", raw["next"])
	}
	if !o.Failed() {
		t.Error("Failed() should be true when Error=1")
	}
}

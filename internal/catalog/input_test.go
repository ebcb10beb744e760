package catalog

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeRuleInput(t *testing.T, body string) RuleInput {
	t.Helper()
	var in RuleInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	return in
}

func TestRuleInput_Defaults(t *testing.T) {
	in := decodeRuleInput(t, `{"name":"High pressure","tag_id":3,"operator":">","static_value":"80","target_tag_id":"","message":""}`)

	r, err := in.Rule()
	if err != nil {
		t.Fatalf("Rule() error = %v", err)
	}
	if r.LogicType() != LogicStatic {
		t.Errorf("LogicType() = %q, want static", r.LogicType())
	}
	if r.Severity != SeverityWarning {
		t.Errorf("Severity = %q, want warning", r.Severity)
	}
	if !r.Enabled {
		t.Error("Enabled should default to true")
	}
	if l, ok := r.Logic.(StaticLogic); !ok || l.Value != 80 {
		t.Errorf("Logic = %#v, want StaticLogic{80}", r.Logic)
	}
}

func TestRuleInput_Compare(t *testing.T) {
	in := decodeRuleInput(t, `{"name":"Delta","tag_id":"1","logic_type":"compare","operator":">","target_tag_id":2,"offset_value":5,"severity":"critical"}`)

	r, err := in.Rule()
	if err != nil {
		t.Fatalf("Rule() error = %v", err)
	}
	l, ok := r.Logic.(CompareLogic)
	if !ok {
		t.Fatalf("Logic = %#v, want CompareLogic", r.Logic)
	}
	if l.TargetTagID != 2 || l.Offset != 5 {
		t.Errorf("CompareLogic = %+v, want target 2 offset 5", l)
	}
	if r.TagID != 1 {
		t.Errorf("TagID = %d, want 1", r.TagID)
	}
}

func TestRuleInput_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing name", `{"tag_id":1,"operator":">","static_value":1}`, "name"},
		{"missing tag", `{"name":"r","operator":">","static_value":1}`, "tag_id"},
		{"bad operator", `{"name":"r","tag_id":1,"operator":"=>","static_value":1}`, "operator"},
		{"bad severity", `{"name":"r","tag_id":1,"operator":">","static_value":1,"severity":"fatal"}`, "severity"},
		{"static without value", `{"name":"r","tag_id":1,"operator":">","static_value":""}`, "static_value"},
		{"compare without target", `{"name":"r","tag_id":1,"logic_type":"compare","operator":">"}`, "target_tag_id"},
		{"unknown logic", `{"name":"r","tag_id":1,"logic_type":"window","operator":">"}`, "logic_type"},
		{"long name", `{"name":"` + strings.Repeat("n", MaxNameLength+1) + `","tag_id":1,"operator":">","static_value":1}`, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRuleInput(t, tt.body).Rule()
			if !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("Rule() error = %v, want ErrInvalidRule", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Rule() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestOptionalFloat_RejectsGarbage(t *testing.T) {
	var in RuleInput
	if err := json.Unmarshal([]byte(`{"static_value":"eighty"}`), &in); err == nil {
		t.Error("expected error for non-numeric static_value")
	}
}

func TestConnectionChanges_Apply(t *testing.T) {
	name := "Renamed"
	disabled := false
	base := Connection{ID: 4, Name: "Old", EndpointURL: "opc.tcp://a:4840", Enabled: true}

	got := ConnectionChanges{Name: &name, Enabled: &disabled}.Apply(base)

	if got.Name != "Renamed" || got.Enabled || got.EndpointURL != base.EndpointURL || got.ID != 4 {
		t.Errorf("Apply() = %+v", got)
	}
}

func TestValidateConnection(t *testing.T) {
	tests := []struct {
		name string
		conn Connection
		ok   bool
	}{
		{"valid", Connection{Name: "PLC", EndpointURL: "opc.tcp://plc:4840"}, true},
		{"blank name", Connection{Name: "  ", EndpointURL: "opc.tcp://plc:4840"}, false},
		{"wrong scheme", Connection{Name: "PLC", EndpointURL: "tcp://plc:4840"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConnection(tt.conn)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateConnection() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestRule_MarshalJSON(t *testing.T) {
	r := Rule{ID: 1, Name: "Delta", TagID: 2, Operator: OpGreaterEqual,
		Logic: CompareLogic{TargetTagID: 3, Offset: 1.5}, Severity: SeverityInfo, Enabled: true}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["logic_type"] != "compare" || got["target_tag_id"] != float64(3) || got["offset_value"] != 1.5 {
		t.Errorf("flattened rule = %v", got)
	}
	if got["static_value"] != nil {
		t.Errorf("static_value = %v, want null", got["static_value"])
	}
}

func TestDecodeLogic(t *testing.T) {
	v := 10.0
	target := int64(5)
	zero := int64(0)

	tests := []struct {
		name      string
		logicType string
		static    *float64
		target    *int64
		want      Logic
	}{
		{"static", "static", &v, nil, StaticLogic{Value: 10}},
		{"static without value", "static", nil, &target, nil},
		{"compare", "compare", nil, &target, CompareLogic{TargetTagID: 5}},
		{"compare zero target", "compare", nil, &zero, nil},
		{"unknown", "range", &v, &target, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLogic(tt.logicType, tt.static, tt.target, nil)
			if tt.want == nil {
				if !errors.Is(err, ErrMalformedLogic) {
					t.Errorf("DecodeLogic() error = %v, want ErrMalformedLogic", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("DecodeLogic() = %#v, %v; want %#v", got, err, tt.want)
			}
		})
	}
}

func TestNotFoundErrors(t *testing.T) {
	for _, err := range []error{ErrConnectionNotFound, ErrTagNotFound, ErrRuleNotFound} {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%v should match ErrNotFound", err)
		}
		if IsValidation(err) {
			t.Errorf("%v should not be a validation error", err)
		}
	}
	if !IsValidation(ErrInvalidRule) {
		t.Error("ErrInvalidRule should be a validation error")
	}
}

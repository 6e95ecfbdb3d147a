package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestHandlerMethodNotFound(t *testing.T) {
	h := NewHandler()
	req := Request{JSONRPC: "2.0", ID: 1, Method: "nonexistent"}

	resp := h.Handle(context.Background(), req)
	if resp.Error == nil {
		t.Fatal("expected error")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("Code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestHandlerInvalidVersion(t *testing.T) {
	h := NewHandler()
	req := Request{JSONRPC: "1.0", ID: 1, Method: MethodMethods}

	resp := h.Handle(context.Background(), req)
	if resp.Error == nil {
		t.Fatal("expected error for invalid version")
	}
	if resp.Error.Code != CodeInvalidRequest {
		t.Errorf("Code = %d, want %d", resp.Error.Code, CodeInvalidRequest)
	}
}

func TestHandlerSuccess(t *testing.T) {
	h := NewHandler()
	h.Register("echo", func(_ context.Context, params json.RawMessage) (any, *Error) {
		return map[string]string{"echo": string(params)}, nil
	})

	req := Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "echo",
		Params:  json.RawMessage(`"hello"`),
	}

	resp := h.Handle(context.Background(), req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]string)
	if !ok {
		t.Fatalf("unexpected result type: %T", resp.Result)
	}
	if result["echo"] != `"hello"` {
		t.Errorf("echo = %q", result["echo"])
	}
}

func TestHandlerError(t *testing.T) {
	h := NewHandler()
	h.Register("fail", func(context.Context, json.RawMessage) (any, *Error) {
		return nil, &Error{Code: CodeEvaluationFailed, Message: "boom"}
	})

	resp := h.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 2, Method: "fail"})

	if resp.Error == nil {
		t.Fatal("expected error")
	}
	if resp.Error.Code != CodeEvaluationFailed {
		t.Errorf("Code = %d", resp.Error.Code)
	}
	if resp.ID != 2 {
		t.Errorf("ID = %v", resp.ID)
	}
}

func TestHandlerPassesContext(t *testing.T) {
	type key struct{}
	h := NewHandler()
	h.Register("ctx", func(ctx context.Context, _ json.RawMessage) (any, *Error) {
		return ctx.Value(key{}), nil
	})

	ctx := context.WithValue(context.Background(), key{}, "run-1")
	resp := h.Handle(ctx, Request{JSONRPC: "2.0", ID: 1, Method: "ctx"})
	if resp.Result != "run-1" {
		t.Errorf("Result = %v", resp.Result)
	}
}

func TestHandleRawParseError(t *testing.T) {
	h := NewHandler()
	resp := h.HandleRaw(context.Background(), []byte(`{invalid json`))

	if resp.Error == nil {
		t.Fatal("expected parse error")
	}
	if resp.Error.Code != CodeParseError {
		t.Errorf("Code = %d", resp.Error.Code)
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     json.RawMessage
		want    string
		wantErr bool
	}{
		{"object", json.RawMessage(`{"run_id":"r1"}`), "r1", false},
		{"nil", nil, "", false},
		{"null", json.RawMessage(`null`), "", false},
		{"not an object", json.RawMessage(`"r1"`), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseParams[RunsGetParams](tt.raw)
			if tt.wantErr {
				if err == nil || err.Code != CodeInvalidParams {
					t.Fatalf("err = %v, want invalid params", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseParams: %v", err)
			}
			if p.RunID != tt.want {
				t.Errorf("RunID = %q, want %q", p.RunID, tt.want)
			}
		})
	}
}

func TestHandlerMethods(t *testing.T) {
	h := NewHandler()
	h.Register("b", func(context.Context, json.RawMessage) (any, *Error) { return nil, nil })
	h.Register("a", func(context.Context, json.RawMessage) (any, *Error) { return nil, nil })

	methods := h.Methods()
	want := []string{"a", "b", MethodMethods}
	if strings.Join(methods, ",") != strings.Join(want, ",") {
		t.Errorf("Methods() = %v, want %v", methods, want)
	}
}

func TestServe(t *testing.T) {
	h := NewHandler()
	h.Register("ping", func(context.Context, json.RawMessage) (any, *Error) {
		return "pong", nil
	})

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		``,
		`{broken`,
		`{"jsonrpc":"2.0","id":"x","method":"missing"}`,
	}, "\n"))
	var out bytes.Buffer

	if err := h.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var resps []Response
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r Response
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		resps = append(resps, r)
	}

	if len(resps) != 3 {
		t.Fatalf("got %d responses, want 3", len(resps))
	}
	if resps[0].Result != "pong" || resps[0].ID != float64(1) {
		t.Errorf("first response = %+v", resps[0])
	}
	if resps[1].Error == nil || resps[1].Error.Code != CodeParseError {
		t.Errorf("second response = %+v", resps[1])
	}
	if resps[2].Error == nil || resps[2].Error.Code != CodeMethodNotFound || resps[2].ID != "x" {
		t.Errorf("third response = %+v", resps[2])
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	h := NewHandler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := h.Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"rpc.methods"}`+"\n"), &out)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

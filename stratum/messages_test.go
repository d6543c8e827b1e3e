package stratum

import (
	"encoding/json"
	"testing"
)

func TestRequestValid(t *testing.T) {
	valid := Request{ID: json.RawMessage("1"), Method: "mining.subscribe", Params: []json.RawMessage{}}
	if !valid.Valid() {
		t.Fatal("expected a numeric-id, non-empty-method request to be valid")
	}

	noMethod := Request{ID: json.RawMessage("1"), Params: []json.RawMessage{}}
	if noMethod.Valid() {
		t.Fatal("a request with no method must be invalid")
	}

	noParams := Request{ID: json.RawMessage("1"), Method: "mining.subscribe"}
	if noParams.Valid() {
		t.Fatal("a request with a nil params array must be invalid")
	}

	stringID := Request{ID: json.RawMessage(`"abc"`), Method: "mining.subscribe", Params: []json.RawMessage{}}
	if stringID.Valid() {
		t.Fatal("a non-numeric id must be invalid")
	}
}

func TestParamString(t *testing.T) {
	raw, _ := json.Marshal("hello")
	params := []json.RawMessage{raw}

	if got := paramString(params, 0); got != "hello" {
		t.Fatalf("paramString(0) = %q, want %q", got, "hello")
	}
	if got := paramString(params, 5); got != "" {
		t.Fatalf("out-of-range index should return empty string, got %q", got)
	}

	notAString := []json.RawMessage{json.RawMessage("42")}
	if got := paramString(notAString, 0); got != "" {
		t.Fatalf("a non-string param should return empty string, got %q", got)
	}
}

func TestStratumErrorMarshalJSON(t *testing.T) {
	e := &StratumError{Code: 23, Message: "low difficulty share"}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `[23,"low difficulty share",null]` {
		t.Fatalf("got %s", raw)
	}
}

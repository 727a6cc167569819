package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	advanceSchema := compile("advance.schema.json")
	purchaseSchema := compile("purchase.schema.json")
	purgeSchema := compile("purge.schema.json")
	resultSchema := compile("result.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "account":"acct_1"
	}`), &hello)
	validate(helloSchema, hello)

	var advance any
	_ = json.Unmarshal([]byte(`{
	  "type":"ADVANCE",
	  "protocol_version":"1.0",
	  "req_id":"R1",
	  "work_budget":0
	}`), &advance)
	validate(advanceSchema, advance)

	var purchase any
	_ = json.Unmarshal([]byte(`{
	  "type":"PURCHASE",
	  "protocol_version":"1.0",
	  "req_id":"R5",
	  "quantity":4
	}`), &purchase)
	validate(purchaseSchema, purchase)

	var purge any
	_ = json.Unmarshal([]byte(`{
	  "type":"PURGE",
	  "protocol_version":"1.0",
	  "req_id":"R2",
	  "token_ids":[11,12,13]
	}`), &purge)
	validate(purgeSchema, purge)

	var result any
	_ = json.Unmarshal([]byte(`{
	  "type":"RESULT",
	  "protocol_version":"1.0",
	  "req_id":"R2",
	  "accepted":true,
	  "processed":3,
	  "status":{
	    "level":2,
	    "state":3,
	    "phase":0,
	    "jackpot_counter":4,
	    "pool_current":100000,
	    "pool_next":2500,
	    "pool_carryover":0,
	    "pool_snapshot":90000,
	    "claimable":120
	  }
	}`), &result)
	validate(resultSchema, result)
}

package models

import (
	"encoding/json"
	"testing"
)

func TestListingUnmarshalQuantity(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"qty", `{"price":10,"qty":2,"status":"complete"}`, 2, false},
		{"quantity alias", `{"price":10,"quantity":3,"status":"complete"}`, 3, false},
		{"qty wins", `{"price":10,"qty":1,"quantity":3,"status":"complete"}`, 1, false},
		{"unknown field", `{"price":10,"qty":1,"seller":"x"}`, 0, true},
	}
	for _, tt := range tests {
		var l Listing
		err := json.Unmarshal([]byte(tt.body), &l)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: error %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (l.Quantity != tt.want || l.Price != 10 || l.Status != StatusComplete) {
			t.Errorf("%s: got %+v", tt.name, l)
		}
	}
}

func TestListingMarshalUsesQty(t *testing.T) {
	raw, err := json.Marshal(Listing{Price: 5, Quantity: 2, Status: StatusComplete})
	if err != nil {
		t.Fatal(err)
	}
	var back Listing
	if err := json.Unmarshal(raw, &back); err != nil || back.Quantity != 2 {
		t.Errorf("round trip: got %+v, %v (json %s)", back, err, raw)
	}
}

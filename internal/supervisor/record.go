package supervisor

import (
	"encoding/json"

	"github.com/meterdock/meterdock/internal/execution"
)

func marshalRecord(rec execution.Record) ([]byte, error) {
	return json.Marshal(rec)
}

// UnmarshalRecord decodes a persisted terminal execution record.
func UnmarshalRecord(b []byte) (execution.Record, error) {
	var rec execution.Record
	err := json.Unmarshal(b, &rec)
	return rec, err
}

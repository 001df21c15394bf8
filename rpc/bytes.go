package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rawBytes carries opaque message bytes over JSON-RPC in array-of-bytes form
// ([26,48,49,...]). A 0x-hex string is accepted on input as a convenience;
// output is always the array form, byte-identical to the processor output.
type rawBytes []byte

func (b rawBytes) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	out = append(out, ']')
	return out, nil
}

func (b *rawBytes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty byte payload")
	}
	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return err
		}
		decoded, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
		if err != nil {
			return fmt.Errorf("decode hex payload: %w", err)
		}
		*b = decoded
		return nil
	}
	var values []int
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return err
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// BalanceEntry is one (account id, balance) pair of a batch balance read.
// The wire form is a two-element array ["id",balance].
type BalanceEntry struct {
	AccountID string
	Balance   uint32
}

func (e BalanceEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.AccountID, e.Balance})
}

func (e *BalanceEntry) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("balance entry must have two elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &e.AccountID); err != nil {
		return err
	}
	return json.Unmarshal(parts[1], &e.Balance)
}

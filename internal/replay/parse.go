package replay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"liquidityStake/internal/model"
)

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// parseOperation decodes one input line. Unknown fields are rejected so a
// misspelled key does not silently default to zero.
func parseOperation(line []byte, lineNo uint64) (model.Operation, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()

	var op model.Operation
	if err := dec.Decode(&op); err != nil {
		return model.Operation{}, fmt.Errorf("line %d: decode operation: %w", lineNo, err)
	}
	op.Line = lineNo
	op.Op = strings.TrimSpace(op.Op)
	if op.Op == "" {
		return model.Operation{}, fmt.Errorf("line %d: op is required", lineNo)
	}
	if _, ok := handlers[op.Op]; !ok {
		return model.Operation{}, fmt.Errorf("line %d: unknown op %q", lineNo, op.Op)
	}
	return op, nil
}

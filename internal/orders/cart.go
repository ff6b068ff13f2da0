package orders

import (
	"bytes"
	"encoding/json"

	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

// ParseCartLines accepts the medicines field either as a JSON array or as a
// string holding a JSON array, which is how multipart clients send it.
func ParseCartLines(raw json.RawMessage) ([]inventory.RequestedLine, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "medicines are required")
	}
	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "medicines must be a JSON array")
		}
		trimmed = bytes.TrimSpace([]byte(encoded))
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "medicines must be a JSON array")
	}
	var lines []inventory.RequestedLine
	if err := json.Unmarshal(trimmed, &lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "medicines must be a JSON array")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one medicine is required")
	}
	return lines, nil
}

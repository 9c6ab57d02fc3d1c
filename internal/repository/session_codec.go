package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"MarketCore/internal/domain/models"
)

// decodeState parses a persisted SessionState. Anything that does not decode
// into a state with a valid trading day is reported as ErrCorruptState.
func decodeState(data []byte) (models.SessionState, error) {
	var st models.SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.SessionState{}, fmt.Errorf("%w: %v", models.ErrCorruptState, err)
	}
	if st.TradingDay != "" {
		if _, err := time.Parse(time.DateOnly, st.TradingDay); err != nil {
			return models.SessionState{}, fmt.Errorf("%w: trading_day %q", models.ErrCorruptState, st.TradingDay)
		}
	}
	return st, nil
}

func encodeState(st models.SessionState) ([]byte, error) {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal session state: %w", err)
	}
	return b, nil
}

func storeKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GPC-MC/GBNX-Gold-Trader/internal/domain"
	"github.com/GPC-MC/GBNX-Gold-Trader/internal/ports"
)

const (
	defaultInterval = 3600
	defaultLimit    = 50
	maxLimit        = 1000
)

// parseWindow reads the shared chart-window query parameters. Defaults
// match the upstream contract: hourly candles, 50 rows, newest first.
func parseWindow(intervalStr, limitStr, offsetStr, sortStr string) (ports.OHLCQuery, error) {
	q := ports.OHLCQuery{
		Interval: defaultInterval,
		Limit:    defaultLimit,
		Sort:     domain.SortDesc,
	}

	if intervalStr != "" {
		interval, err := strconv.Atoi(intervalStr)
		if err != nil || interval <= 0 {
			return ports.OHLCQuery{}, fmt.Errorf("interval must be a positive number of seconds, got %q", intervalStr)
		}
		q.Interval = interval
	}

	if limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxLimit {
			return ports.OHLCQuery{}, fmt.Errorf("limit must be between 1 and %d, got %q", maxLimit, limitStr)
		}
		q.Limit = limit
	}

	if offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return ports.OHLCQuery{}, fmt.Errorf("offset must not be negative, got %q", offsetStr)
		}
		q.Offset = offset
	}

	sort, ok := domain.ParseSortOrder(sortStr)
	if !ok {
		return ports.OHLCQuery{}, fmt.Errorf("sort must be %q or %q, got %q", domain.SortAsc, domain.SortDesc, sortStr)
	}
	q.Sort = sort

	return q, nil
}

// parsePairList splits a comma-separated pair list, defaulting to every
// supported instrument when the list is empty. Any unknown pair fails
// the whole request.
func parsePairList(pairsParam string) ([]domain.Instrument, error) {
	if strings.TrimSpace(pairsParam) == "" {
		return domain.AllInstruments(), nil
	}

	raw := strings.Split(pairsParam, ",")
	instruments := make([]domain.Instrument, 0, len(raw))
	seen := make(map[domain.Instrument]bool, len(raw))
	for _, token := range raw {
		instrument, err := domain.ParseInstrument(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		if seen[instrument] {
			continue
		}
		seen[instrument] = true
		instruments = append(instruments, instrument)
	}
	return instruments, nil
}

package leneda

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/series"
)

type item struct {
	StartedAt string          `json:"startedAt"`
	Value     json.RawMessage `json:"value"`
}

type timeSeriesResponse struct {
	Items []item `json:"items"`
}

type aggregatedResponse struct {
	AggregatedTimeSeries []item `json:"aggregatedTimeSeries"`
}

// Parse decodes a response body of the given feed.
//
// Records with a missing or unparsable startedAt, or a value that is not a
// finite number, are skipped and counted in dropped. Only a body that is
// not a JSON object of the expected shape returns an error.
func Parse(body []byte, feed Feed) (samples []series.Sample, dropped int, err error) {
	var items []item
	switch feed {
	case FeedQuarterHour:
		var resp timeSeriesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, 0, errors.Wrap(errors.ErrDecode, err.Error())
		}
		items = resp.Items
	case FeedHourly:
		var resp aggregatedResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, 0, errors.Wrap(errors.ErrDecode, err.Error())
		}
		items = resp.AggregatedTimeSeries
	default:
		return nil, 0, errors.Wrapf(errors.ErrUnsupportedFeed, "%d", int(feed))
	}

	samples = make([]series.Sample, 0, len(items))
	for _, it := range items {
		s, ok := parseItem(it)
		if !ok {
			dropped++
			continue
		}
		samples = append(samples, s)
	}
	return samples, dropped, nil
}

func parseItem(it item) (series.Sample, bool) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(it.StartedAt))
	if err != nil {
		return series.Sample{}, false
	}

	v, ok := parseValue(it.Value)
	if !ok {
		return series.Sample{}, false
	}
	return series.NewSample(ts, v), true
}

func parseValue(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, false
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return 0, false
		}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

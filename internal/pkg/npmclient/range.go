package npmclient

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

const dayLayout = "2006-01-02"

// DailyDownloads is one element of the API's downloads array.
type DailyDownloads struct {
	Day       string `json:"day"`
	Downloads int64  `json:"downloads"`
}

// RangeResponse is a validated /downloads/range payload.
type RangeResponse struct {
	Package   string           `json:"package"`
	Start     string           `json:"start"`
	End       string           `json:"end"`
	Downloads []DailyDownloads `json:"downloads"`
}

// ParseRange validates raw against the expected shape
// {"downloads": [{"day": "YYYY-MM-DD", "downloads": <non-negative int>}, ...]}
// and decodes it. Element order is preserved.
func ParseRange(raw []byte) (*RangeResponse, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("malformed JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("expected a JSON object")
	}
	if msg := doc.Get("error"); msg.Exists() {
		return nil, fmt.Errorf("api error: %s", msg.String())
	}

	downloads := doc.Get("downloads")
	if !downloads.IsArray() {
		return nil, fmt.Errorf("missing downloads array")
	}

	resp := &RangeResponse{
		Package: doc.Get("package").String(),
		Start:   doc.Get("start").String(),
		End:     doc.Get("end").String(),
	}

	for i, item := range downloads.Array() {
		d, err := parseDaily(item)
		if err != nil {
			return nil, fmt.Errorf("downloads[%d]: %w", i, err)
		}
		resp.Downloads = append(resp.Downloads, d)
	}
	return resp, nil
}

func parseDaily(item gjson.Result) (DailyDownloads, error) {
	if !item.IsObject() {
		return DailyDownloads{}, fmt.Errorf("expected an object")
	}
	day := item.Get("day")
	if day.Type != gjson.String {
		return DailyDownloads{}, fmt.Errorf("day must be a string")
	}
	if _, err := time.Parse(dayLayout, day.Str); err != nil {
		return DailyDownloads{}, fmt.Errorf("day %q is not YYYY-MM-DD", day.Str)
	}

	count := item.Get("downloads")
	if count.Type != gjson.Number {
		return DailyDownloads{}, fmt.Errorf("downloads must be a number")
	}
	n := count.Int()
	if float64(n) != count.Num || n < 0 {
		return DailyDownloads{}, fmt.Errorf("downloads must be a non-negative integer, got %s", count.Raw)
	}
	return DailyDownloads{Day: day.Str, Downloads: n}, nil
}

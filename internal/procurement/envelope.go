package procurement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedEnvelope is returned when a 2xx body is not the expected
// {response:{body:{...}}} JSON document.
var ErrMalformedEnvelope = errors.New("malformed response envelope")

// ErrResultCode is returned when the envelope header reports a non-success
// result code (bad service key, quota exceeded, ...).
var ErrResultCode = errors.New("upstream result code")

const resultCodeOK = "00"

// Page is one decoded page of results.
type Page struct {
	TotalCount int
	PageNo     int
	NumOfRows  int
	Items      []Item
}

type envelope struct {
	Response *struct {
		Header *struct {
			ResultCode Text `json:"resultCode"`
			ResultMsg  Text `json:"resultMsg"`
		} `json:"header"`
		Body *struct {
			TotalCount Text            `json:"totalCount"`
			PageNo     Text            `json:"pageNo"`
			NumOfRows  Text            `json:"numOfRows"`
			Items      json.RawMessage `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

// ParsePage decodes a response body. Items may be an array, an object
// wrapping an array or a single item under "item", an empty string, or null.
func ParsePage(body []byte) (*Page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("%w: missing response", ErrMalformedEnvelope)
	}
	if h := env.Response.Header; h != nil && h.ResultCode != "" && h.ResultCode != resultCodeOK {
		return nil, fmt.Errorf("%w %s: %s", ErrResultCode, h.ResultCode, h.ResultMsg)
	}
	b := env.Response.Body
	if b == nil {
		return nil, fmt.Errorf("%w: missing body", ErrMalformedEnvelope)
	}

	raws, err := itemList(b.Items)
	if err != nil {
		return nil, fmt.Errorf("%w: items: %v", ErrMalformedEnvelope, err)
	}

	page := &Page{
		TotalCount: atoi(b.TotalCount),
		PageNo:     atoi(b.PageNo),
		NumOfRows:  atoi(b.NumOfRows),
		Items:      make([]Item, 0, len(raws)),
	}
	for _, raw := range raws {
		var it Item
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, fmt.Errorf("%w: item: %v", ErrMalformedEnvelope, err)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err == nil {
			raw = compact.Bytes()
		}
		it.Raw = raw
		page.Items = append(page.Items, it)
	}
	return page, nil
}

func itemList(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	case '{':
		var wrapper struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, err
		}
		if len(wrapper.Item) == 0 {
			return nil, nil
		}
		if bytes.TrimSpace(wrapper.Item)[0] == '{' {
			return []json.RawMessage{wrapper.Item}, nil
		}
		return itemList(wrapper.Item)
	default:
		return nil, fmt.Errorf("unexpected items value %.20s", raw)
	}
}

func atoi(t Text) int {
	n, _ := strconv.Atoi(string(t))
	return n
}

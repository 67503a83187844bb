package procurement

import (
	"encoding/json"
	"fmt"
	"strings"
)

// pageJSON renders an upstream page with n items numbered from first.
func pageJSON(total, first, n int) string {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(
			`{"dlvrReqNo":"R%05d","prdctSno":"1","cntrctCorpBizno":"1234567890","dlvrReqAmt":"1,000","dlvrReqRcptDate":"20250115"}`,
			first+i,
		))
	}
	return fmt.Sprintf(
		`{"response":{"header":{"resultCode":"00","resultMsg":"NORMAL SERVICE."},"body":{"items":[%s],"numOfRows":100,"pageNo":1,"totalCount":%d}}}`,
		strings.Join(items, ","), total,
	)
}

func mustItem(s string) Item {
	var it Item
	if err := json.Unmarshal([]byte(s), &it); err != nil {
		panic(err)
	}
	it.Raw = json.RawMessage(s)
	return it
}

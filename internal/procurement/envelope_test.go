package procurement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageItemShapes(t *testing.T) {
	cases := []struct {
		name  string
		items string
		want  int
	}{
		{"array", `[{"dlvrReqNo":"A"},{"dlvrReqNo":"B"}]`, 2},
		{"wrapped array", `{"item":[{"dlvrReqNo":"A"},{"dlvrReqNo":"B"},{"dlvrReqNo":"C"}]}`, 3},
		{"wrapped single", `{"item":{"dlvrReqNo":"A"}}`, 1},
		{"empty string", `""`, 0},
		{"null", `null`, 0},
		{"wrapped null", `{"item":null}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := `{"response":{"body":{"totalCount":"3","items":` + tc.items + `}}}`
			page, err := ParsePage([]byte(body))
			require.NoError(t, err)
			assert.Len(t, page.Items, tc.want)
			assert.Equal(t, 3, page.TotalCount)
		})
	}
}

func TestParsePageKeepsRawItem(t *testing.T) {
	page, err := ParsePage([]byte(`{"response":{"body":{"items":[ {"dlvrReqNo": "A", "prdctSno": 2} ]}}}`))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, `{"dlvrReqNo":"A","prdctSno":2}`, string(page.Items[0].Raw))
	assert.Equal(t, Text("2"), page.Items[0].LineSeq)
}

func TestParsePageMalformed(t *testing.T) {
	for _, body := range []string{
		`<OpenAPI_ServiceResponse><cmmMsgHeader/></OpenAPI_ServiceResponse>`,
		`{}`,
		`{"response":{"header":{"resultCode":"00"}}}`,
		`{"response":{"body":{"items":42}}}`,
	} {
		_, err := ParsePage([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, body)
	}
}

func TestParsePageResultCode(t *testing.T) {
	_, err := ParsePage([]byte(`{"response":{"header":{"resultCode":"30","resultMsg":"SERVICE KEY IS NOT REGISTERED ERROR."},"body":{}}}`))
	require.ErrorIs(t, err, ErrResultCode)
	assert.Contains(t, err.Error(), "SERVICE KEY")
}

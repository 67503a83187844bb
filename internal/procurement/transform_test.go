package procurement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformMapsFields(t *testing.T) {
	it := mustItem(`{
		"dlvrReqNo": "R1", "prdctSno": "3", "dlvrReqChgOrd": "01", "dlvrReqNm": "Desks",
		"dlvrReqRcptDate": "20250115", "dlvrTmlmtDate": "20250201", "IntlCntrctDlvrReqDate": "",
		"dminsttCd": "1230000", "dminsttNm": "PPS", "dminsttRgnNm": "Daejeon", "dmndInsttDivNm": "Central",
		"cntrctCorpBizno": "1234567890", "corpNm": "Acme", "corpEntrprsDivNmNm": "SME", "brnofceNm": "HQ",
		"cntrctNo": "C9", "cntrctChgOrd": "00", "masYn": "Y",
		"prdctClsfcNo": "56101", "prdctClsfcNoNm": "Desks", "prdctIdntNo": "P-7", "prdctUnit": "EA",
		"prdctUprc": "1,234.5", "prdctQty": 2, "prdctAmt": "2,469", "dlvrReqQty": "2", "dlvrReqAmt": null,
		"exclcProdctYn": "N", "smetprCmptProdctYn": "Y"
	}`)

	d := Transform(it)
	require.True(t, d.Valid())
	assert.Equal(t, "R1", d.RequestNo)
	assert.Equal(t, 3, d.LineSeq)
	assert.Equal(t, "01", *d.ChangeOrder)
	assert.Equal(t, "2025-01-15", *d.ReceiptDate)
	assert.Equal(t, "2025-02-01", *d.DeadlineDate)
	assert.Equal(t, "2025-01-15", *d.RequestDate, "request date falls back to receipt date")
	assert.Nil(t, d.IntlDeliveryDate)
	assert.Equal(t, "Daejeon", *d.InstitutionRegion)
	assert.Equal(t, "HQ", *d.BranchOffice)
	assert.Equal(t, 1234.5, *d.UnitPrice)
	assert.Equal(t, 2.0, *d.ProductQty)
	assert.Equal(t, 2469.0, *d.ProductAmt)
	assert.Nil(t, d.RequestAmt)
	assert.Nil(t, d.IncDecQty)
	assert.Equal(t, "Y", *d.SMEFlag)
	require.NotNil(t, d.RawJSON)
	assert.Contains(t, *d.RawJSON, `"dlvrReqNo": "R1"`)
}

func TestTransformInvalidLineSequence(t *testing.T) {
	for _, seq := range []string{`"abc"`, `""`, `null`} {
		d := Transform(mustItem(`{"dlvrReqNo":"R1","prdctSno":` + seq + `}`))
		assert.Equal(t, 0, d.LineSeq)
		assert.False(t, d.Valid(), seq)
	}
	d := Transform(mustItem(`{"prdctSno":"1"}`))
	assert.False(t, d.Valid(), "missing request number")
}

func TestNumberAndDateParsing(t *testing.T) {
	assert.Equal(t, 1234567.0, *number("1,234,567"))
	assert.Nil(t, number(""))
	assert.Nil(t, number("n/a"))

	assert.Equal(t, "2024-12-31", *date("20241231"))
	assert.Equal(t, "2024-12-31", *date("2024-12-31"))
	assert.Nil(t, date("2024123"))
	assert.Nil(t, date("2024AB31"))
	assert.Nil(t, date("00000000"))
	assert.Equal(t, "2024-02-29", *date("2024-02-29"))
	assert.Nil(t, date("20250230"), "February 30th is not a date")
	assert.Nil(t, date("20230229"), "2023 is not a leap year")
	assert.Nil(t, date("20241301"))
	assert.Nil(t, date("20241200"))
	assert.Nil(t, date(""))
}

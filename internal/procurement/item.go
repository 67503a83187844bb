package procurement

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Text is an upstream scalar. The service sends the same field as a string,
// a number, or null depending on the record, so Text accepts all three and
// keeps the trimmed literal.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
	default:
		*t = Text(b)
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Item is one delivery-request detail as returned by getDlvrReqDtlInfoList.
type Item struct {
	RequestNo          Text `json:"dlvrReqNo"`
	LineSeq            Text `json:"prdctSno"`
	ChangeOrder        Text `json:"dlvrReqChgOrd"`
	RequestName        Text `json:"dlvrReqNm"`
	ReceiptDate        Text `json:"dlvrReqRcptDate"`
	DeadlineDate       Text `json:"dlvrTmlmtDate"`
	RequestDate        Text `json:"dlvrReqDate"`
	IntlDeliveryDate   Text `json:"IntlCntrctDlvrReqDate"`
	InstitutionCode    Text `json:"dminsttCd"`
	InstitutionName    Text `json:"dminsttNm"`
	InstitutionRegion  Text `json:"dminsttRgnNm"`
	InstitutionType    Text `json:"dmndInsttDivNm"`
	BusinessNo         Text `json:"cntrctCorpBizno"`
	CompanyName        Text `json:"corpNm"`
	CompanyDivision    Text `json:"corpEntrprsDivNmNm"`
	BranchOffice       Text `json:"brnofceNm"`
	ContractNo         Text `json:"cntrctNo"`
	ContractChangeOrd  Text `json:"cntrctChgOrd"`
	ContractStyle      Text `json:"cntrctCnclsStleNm"`
	MASFlag            Text `json:"masYn"`
	ConstructionFlag   Text `json:"cnstwkMtrlDrctPurchsObjYn"`
	ClassificationNo   Text `json:"prdctClsfcNo"`
	ClassificationName Text `json:"prdctClsfcNoNm"`
	DetailClassNo      Text `json:"dtilPrdctClsfcNo"`
	DetailClassName    Text `json:"dtilPrdctClsfcNoNm"`
	ProductCode        Text `json:"prdctIdntNo"`
	ProductName        Text `json:"prdctIdntNoNm"`
	ProductUnit        Text `json:"prdctUnit"`
	UnitPrice          Text `json:"prdctUprc"`
	ProductQty         Text `json:"prdctQty"`
	ProductAmt         Text `json:"prdctAmt"`
	RequestQty         Text `json:"dlvrReqQty"`
	RequestAmt         Text `json:"dlvrReqAmt"`
	IncDecQty          Text `json:"incdecQty"`
	IncDecAmt          Text `json:"incdecAmt"`
	ExcellentFlag      Text `json:"exclcProdctYn"`
	FinalDeliveryFlag  Text `json:"fnlDlvrReqYn"`
	SMEFlag            Text `json:"smetprCmptProdctYn"`
	OptionDivision     Text `json:"optnDivCdNm"`

	// Raw is the item exactly as received.
	Raw json.RawMessage `json:"-"`
}

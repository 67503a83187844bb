package procurement

import (
	"strconv"
	"strings"
	"time"

	"github.com/rejintech/procsync/internal/database"
)

// Transform maps an upstream item to its canonical raw record. It never
// fails: fields that cannot be interpreted become nil, and a missing or
// unparsable line sequence leaves the record invalid (see DeliveryDetail.Valid).
func Transform(it Item) database.DeliveryDetail {
	d := database.DeliveryDetail{
		RequestNo:   string(it.RequestNo),
		LineSeq:     lineSeq(it.LineSeq),
		ChangeOrder: text(it.ChangeOrder),
		RequestName: text(it.RequestName),

		ReceiptDate:      date(it.ReceiptDate),
		DeadlineDate:     date(it.DeadlineDate),
		RequestDate:      date(it.RequestDate),
		IntlDeliveryDate: date(it.IntlDeliveryDate),

		InstitutionCode:   text(it.InstitutionCode),
		InstitutionName:   text(it.InstitutionName),
		InstitutionRegion: text(it.InstitutionRegion),
		InstitutionType:   text(it.InstitutionType),

		BusinessNo:      text(it.BusinessNo),
		CompanyName:     text(it.CompanyName),
		CompanyDivision: text(it.CompanyDivision),
		BranchOffice:    text(it.BranchOffice),

		ContractNo:           text(it.ContractNo),
		ContractChangeOrder:  text(it.ContractChangeOrd),
		ContractStyle:        text(it.ContractStyle),
		MASFlag:              text(it.MASFlag),
		ConstructionMaterial: text(it.ConstructionFlag),

		ClassificationNo:         text(it.ClassificationNo),
		ClassificationName:       text(it.ClassificationName),
		DetailClassificationNo:   text(it.DetailClassNo),
		DetailClassificationName: text(it.DetailClassName),
		ProductCode:              text(it.ProductCode),
		ProductName:              text(it.ProductName),
		ProductUnit:              text(it.ProductUnit),

		UnitPrice:  number(it.UnitPrice),
		ProductQty: number(it.ProductQty),
		ProductAmt: number(it.ProductAmt),
		RequestQty: number(it.RequestQty),
		RequestAmt: number(it.RequestAmt),
		IncDecQty:  number(it.IncDecQty),
		IncDecAmt:  number(it.IncDecAmt),

		ExcellentFlag:     text(it.ExcellentFlag),
		FinalDeliveryFlag: text(it.FinalDeliveryFlag),
		SMEFlag:           text(it.SMEFlag),
		OptionDivision:    text(it.OptionDivision),
	}
	// The request date is not always populated; the receipt date is the
	// closest substitute.
	if d.RequestDate == nil {
		d.RequestDate = d.ReceiptDate
	}
	if len(it.Raw) > 0 {
		raw := string(it.Raw)
		d.RawJSON = &raw
	}
	return d
}

func text(t Text) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

// number parses a numeric string, ignoring thousands separators.
func number(t Text) *float64 {
	s := strings.ReplaceAll(string(t), ",", "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// date converts YYYYMMDD (dashes tolerated) to YYYY-MM-DD. Values that are
// not a real calendar day, such as 00000000 or 20250230, become nil.
func date(t Text) *string {
	s := strings.ReplaceAll(string(t), "-", "")
	if len(s) != 8 {
		return nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
	}
	day, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	out := day.Format(time.DateOnly)
	return &out
}

func lineSeq(t Text) int {
	n, err := strconv.Atoi(string(t))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

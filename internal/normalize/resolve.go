package normalize

import "github.com/rejintech/procsync/internal/database"

// Empty natural keys yield a nil ID and no reference row.

func resolveInstitution(tx *database.Tx, d *database.DeliveryDetail, c *Counts) (*int64, error) {
	code := orDefault(d.InstitutionCode, "")
	if code == "" {
		return nil, nil
	}
	id, created, err := tx.ResolveInstitution(&database.Institution{
		Code:   code,
		Name:   orDefault(d.InstitutionName, ""),
		Region: orDefault(d.InstitutionRegion, ""),
		Type:   orDefault(d.InstitutionType, ""),
	})
	if err != nil {
		return nil, err
	}
	if created {
		c.Institutions++
	}
	return &id, nil
}

func resolveCompany(tx *database.Tx, d *database.DeliveryDetail, c *Counts) (*int64, error) {
	bizno := database.NormalizeBusinessNumber(orDefault(d.BusinessNo, ""))
	if bizno == "" {
		return nil, nil
	}
	id, created, err := tx.ResolveCompany(&database.Company{
		BusinessNumber: bizno,
		Name:           orDefault(d.CompanyName, ""),
		Type:           orDefault(d.CompanyDivision, ""),
		IsSME:          isYes(d.SMEFlag),
		BranchOffice:   orDefault(d.BranchOffice, ""),
	})
	if err != nil {
		return nil, err
	}
	if created {
		c.Companies++
	}
	return &id, nil
}

func resolveContract(tx *database.Tx, d *database.DeliveryDetail, c *Counts) (*int64, error) {
	number := orDefault(d.ContractNo, "")
	if number == "" {
		return nil, nil
	}
	id, created, err := tx.ResolveContract(&database.Contract{
		Number:                 number,
		ChangeOrder:            orDefault(d.ContractChangeOrder, defaultChangeOrder),
		Type:                   orDefault(d.ContractStyle, ""),
		IsMAS:                  isYes(d.MASFlag),
		IsConstructionMaterial: isYes(d.ConstructionMaterial),
	})
	if err != nil {
		return nil, err
	}
	if created {
		c.Contracts++
	}
	return &id, nil
}

func resolveProduct(tx *database.Tx, d *database.DeliveryDetail, c *Counts) (*int64, error) {
	code := orDefault(d.ProductCode, "")
	if code == "" {
		return nil, nil
	}
	categoryID, created, err := tx.ResolveCategory(&database.Category{
		Code: orDefault(d.ClassificationNo, ""),
		Name: orDefault(d.ClassificationName, ""),
	})
	if err != nil {
		return nil, err
	}
	if created {
		c.Categories++
	}

	id, created, err := tx.ResolveProduct(&database.Product{
		Code:                     code,
		Name:                     orDefault(d.ProductName, ""),
		CategoryID:               categoryID,
		DetailClassificationCode: orDefault(d.DetailClassificationNo, ""),
		DetailClassificationName: orDefault(d.DetailClassificationName, ""),
		Unit:                     orDefault(d.ProductUnit, ""),
	})
	if err != nil {
		return nil, err
	}
	if created {
		c.Products++
	}
	return &id, nil
}

func orDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func isYes(s *string) bool {
	return s != nil && *s == "Y"
}

func cleanDate(s *string) *string {
	if s == nil || *s == "" || *s == "0000-00-00" {
		return nil
	}
	return s
}

/*
seed.go - Standard South African leave catalog

The BCEA-aligned starter set a new company gets: annual, sick, family
responsibility, maternity, study and unpaid leave. Day counts follow the
per-cycle-year simplification used across the product (sick leave's
36-month statutory cycle is flattened to 10 days a year).
*/
package leave

// DefaultTypes returns the starter catalog for a company. IDs, versions and
// timestamps are left for the registry to assign.
func DefaultTypes(companyID string) []*LeaveType {
	return []*LeaveType{
		{
			CompanyID:          companyID,
			Code:               "annual",
			Name:               "Annual Leave",
			DefaultDaysPerYear: Days(15),
			IsPaid:             true,
			AccrualMethod:      AccrualAnnual,
			MaxCarryOver:       Days(5),
			RequiresApproval:   true,
			SortOrder:          1,
		},
		{
			CompanyID:                   companyID,
			Code:                        "sick",
			Name:                        "Sick Leave",
			DefaultDaysPerYear:          Days(10),
			IsPaid:                      true,
			AccrualMethod:               AccrualAnnual,
			RequiresApproval:            false,
			RequiresAttachment:          true,
			AttachmentRequiredAfterDays: intPtr(2),
			SortOrder:                   2,
		},
		{
			CompanyID:          companyID,
			Code:               "family",
			Name:               "Family Responsibility Leave",
			DefaultDaysPerYear: Days(3),
			IsPaid:             true,
			AccrualMethod:      AccrualAnnual,
			RequiresApproval:   true,
			MaxConsecutiveDays: intPtr(3),
			SortOrder:          3,
		},
		{
			CompanyID:          companyID,
			Code:               "maternity",
			Name:               "Maternity Leave",
			AccrualMethod:      AccrualNone,
			RequiresApproval:   true,
			RequiresAttachment: true,
			SortOrder:          4,
		},
		{
			CompanyID:          companyID,
			Code:               "study",
			Name:               "Study Leave",
			DefaultDaysPerYear: Days(5),
			IsPaid:             true,
			AccrualMethod:      AccrualAnnual,
			RequiresApproval:   true,
			RequiresAttachment: true,
			SortOrder:          5,
		},
		{
			CompanyID:        companyID,
			Code:             "unpaid",
			Name:             "Unpaid Leave",
			AccrualMethod:    AccrualNone,
			RequiresApproval: true,
			SortOrder:        6,
		},
	}
}

func intPtr(v int) *int {
	return &v
}

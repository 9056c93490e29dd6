package templates

import "github.com/lodestone-ai/lodestone/internal/model"

// builtinTemplates returns the templates every deployment starts with.
// Tenants override or extend them through the flat file and directory.
func builtinTemplates() []*model.Template {
	return []*model.Template{
		businessFormationTemplate(),
		taxFilingTemplate(),
	}
}

func businessFormationTemplate() *model.Template {
	return &model.Template{
		TemplateID:  "business_formation",
		Version:     "2",
		DisplayName: "Business Formation",
		DocumentTypes: []model.DocumentType{
			{
				TypeID:                "articles_of_organization",
				DisplayName:           "Articles of Organization",
				Category:              "formation",
				Priority:              model.PriorityHigh,
				ClassificationSignals: []string{"articles of organization", "articles of incorporation", "certificate of formation"},
				ExtractionSpec: []model.FieldSpec{
					{FieldID: "legal_name", DisplayName: "Legal Name", Sensitivity: model.SensitivityHigh, NecessityTier: model.TierBlocking},
					{FieldID: "formation_date", DisplayName: "Formation Date", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierExpected},
					{FieldID: "state_of_formation", DisplayName: "State of Formation", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierExpected},
				},
			},
			{
				TypeID:                "ein_letter",
				DisplayName:           "EIN Assignment Letter",
				Category:              "tax",
				Priority:              model.PriorityHigh,
				ClassificationSignals: []string{"ein", "employer identification number", "ss-4", "cp 575"},
				ExtractionSpec: []model.FieldSpec{
					{FieldID: "ein", DisplayName: "EIN", Sensitivity: model.SensitivityCritical, NecessityTier: model.TierBlocking},
				},
			},
			{
				TypeID:                "operating_agreement",
				DisplayName:           "Operating Agreement",
				Category:              "formation",
				Priority:              model.PriorityMedium,
				ClassificationSignals: []string{"operating agreement", "bylaws"},
				ExtractionSpec: []model.FieldSpec{
					{FieldID: "ownership_split", DisplayName: "Ownership Split", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierExpected},
					{FieldID: "registered_agent", DisplayName: "Registered Agent", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierEnriching},
				},
			},
			{
				TypeID:                "business_license",
				DisplayName:           "Business License",
				Category:              "compliance",
				Priority:              model.PriorityMedium,
				ClassificationSignals: []string{"business license", "permit"},
				ExtractionSpec: []model.FieldSpec{
					{FieldID: "license_number", DisplayName: "License Number", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierEnriching},
				},
			},
		},
		EntityRoles: []model.EntityRole{
			{RoleID: "company", DisplayName: "Company", Type: "business", MinCount: 1, RequiredFields: []string{"legal_name", "ein", "address"}},
			{RoleID: "owner", DisplayName: "Owner", Type: "person", MinCount: 1, RequiredFields: []string{"full_name", "address"}},
			{RoleID: "registered_agent", DisplayName: "Registered Agent", Type: "person", Optional: true},
		},
		CrossDocRules: []model.CrossDocRule{
			{RuleID: "ein_consistent", Description: "EIN must match across documents", Severity: "HIGH", Validation: model.ValidationExact, Fields: []string{"ein"}},
			{RuleID: "legal_name_consistent", Description: "Legal name must agree across documents", Severity: "MEDIUM", Validation: model.ValidationFuzzy, Fields: []string{"legal_name"}},
		},
	}
}

func taxFilingTemplate() *model.Template {
	return &model.Template{
		TemplateID:  "tax_filing",
		Version:     "2",
		DisplayName: "Tax Filing",
		DocumentTypes: []model.DocumentType{
			{
				TypeID:                "prior_year_return",
				DisplayName:           "Prior Year Return",
				Category:              "tax",
				Priority:              model.PriorityHigh,
				ClassificationSignals: []string{"form 1040", "form 1120", "tax return"},
				ExtractionSpec: []model.FieldSpec{
					{FieldID: "ssn", DisplayName: "SSN", Sensitivity: model.SensitivityCritical, NecessityTier: model.TierBlocking},
					{FieldID: "filing_status", DisplayName: "Filing Status", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierExpected},
				},
			},
			{
				TypeID:                "w2",
				DisplayName:           "W-2",
				Category:              "income",
				Priority:              model.PriorityHigh,
				ClassificationSignals: []string{"w-2", "wage and tax statement"},
				ExtractionSpec: []model.FieldSpec{
					{FieldID: "wages", DisplayName: "Wages", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierBlocking},
					{FieldID: "employer_name", DisplayName: "Employer Name", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierExpected},
				},
			},
			{
				TypeID:                "form_1099",
				DisplayName:           "1099",
				Category:              "income",
				Priority:              model.PriorityMedium,
				ClassificationSignals: []string{"1099", "miscellaneous income", "nonemployee compensation"},
				ExtractionSpec: []model.FieldSpec{
					{FieldID: "payer_name", DisplayName: "Payer Name", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierExpected},
				},
			},
			{
				TypeID:                "expense_receipts",
				DisplayName:           "Expense Receipts",
				Category:              "deductions",
				Priority:              model.PriorityLow,
				ClassificationSignals: []string{"receipt", "invoice", "expense"},
				ExtractionSpec: []model.FieldSpec{
					{FieldID: "expense_total", DisplayName: "Expense Total", Sensitivity: model.SensitivityStandard, NecessityTier: model.TierEnriching},
				},
			},
		},
		EntityRoles: []model.EntityRole{
			{RoleID: "taxpayer", DisplayName: "Taxpayer", Type: "person", MinCount: 1, RequiredFields: []string{"full_name", "ssn", "address"}},
			{RoleID: "employer", DisplayName: "Employer", Type: "business", Optional: true},
		},
		CrossDocRules: []model.CrossDocRule{
			{RuleID: "ssn_consistent", Description: "SSN must match across documents", Severity: "HIGH", Validation: model.ValidationExact, Fields: []string{"ssn"}},
		},
	}
}

package core

import "time"

// CaseStatus tracks where a case sits in the processing pipeline.
// Status only ever advances; a failed stage leaves the case at its
// last successful status with the failure visible through job state.
type CaseStatus string

const (
	CaseCreated           CaseStatus = "CREATED"
	CaseDocumentsUploaded CaseStatus = "DOCUMENTS_UPLOADED"
	CaseProcessing        CaseStatus = "PROCESSING"
	CaseFeaturesBuilt     CaseStatus = "FEATURES_BUILT"
	CaseEligibilityScored CaseStatus = "ELIGIBILITY_SCORED"
	CaseReportGenerated   CaseStatus = "REPORT_GENERATED"
)

// caseStatusOrder defines the monotonic pipeline ordering.
var caseStatusOrder = map[CaseStatus]int{
	CaseCreated:           0,
	CaseDocumentsUploaded: 1,
	CaseProcessing:        2,
	CaseFeaturesBuilt:     3,
	CaseEligibilityScored: 4,
	CaseReportGenerated:   5,
}

// Advances reports whether moving to next would be a forward transition.
// Equal statuses do not advance.
func (s CaseStatus) Advances(next CaseStatus) bool {
	return caseStatusOrder[next] > caseStatusOrder[s]
}

// ProgramType selects which lender programs a case is evaluated against.
type ProgramType string

const (
	ProgramBanking ProgramType = "banking"
	ProgramGST     ProgramType = "gst"
	ProgramHybrid  ProgramType = "hybrid"
)

// Case is a single loan application under processing.
type Case struct {
	UUID           string                 `json:"uuid"`
	CaseID         string                 `json:"case_id"` // CASE-YYYYMMDD-NNNN
	OperatorID     string                 `json:"operator_id"`
	BorrowerName   string                 `json:"borrower_name"`
	ProgramType    ProgramType            `json:"program_type"`
	Status         CaseStatus             `json:"status"`
	Overrides      map[string]interface{} `json:"overrides,omitempty"`
	GSTIN          string                 `json:"gstin,omitempty"`
	Address        string                 `json:"address,omitempty"`
	EntityType     string                 `json:"entity_type,omitempty"`
	Pincode        string                 `json:"pincode,omitempty"`
	VintageYears   float64                `json:"business_vintage_years,omitempty"`
	AnnualTurnover float64                `json:"annual_turnover,omitempty"`
	GSTINProfile   map[string]interface{} `json:"gstin_profile,omitempty"` // cached raw lookup response
	Deleted        bool                   `json:"deleted,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// DocumentStatus tracks a document through its per-document stages.
type DocumentStatus string

const (
	DocUploaded    DocumentStatus = "UPLOADED"
	DocOCRComplete DocumentStatus = "OCR_COMPLETE"
	DocClassified  DocumentStatus = "CLASSIFIED"
	DocExtracted   DocumentStatus = "EXTRACTED"
	DocFailed      DocumentStatus = "FAILED"
)

// Terminal reports whether the document has finished its per-document
// pipeline, successfully or not.
func (s DocumentStatus) Terminal() bool {
	return s == DocExtracted || s == DocFailed
}

// DocumentType is the classified category of an uploaded document.
type DocumentType string

const (
	DocTypePAN         DocumentType = "PAN"
	DocTypeAadhaar     DocumentType = "AADHAAR"
	DocTypeGSTCert     DocumentType = "GST_CERTIFICATE"
	DocTypeGSTReturns  DocumentType = "GST_RETURNS"
	DocTypeCIBILReport DocumentType = "CIBIL_REPORT"
	DocTypeBankStmt    DocumentType = "BANK_STATEMENT"
	DocTypeITR         DocumentType = "ITR"
	DocTypeUdyam       DocumentType = "UDYAM_SHOP_LICENSE"
	DocTypeFinancials  DocumentType = "FINANCIAL_STATEMENT"
	DocTypeUnknown     DocumentType = "UNKNOWN"
)

// Document is one uploaded borrower file.
type Document struct {
	ID               string         `json:"doc_id"`
	CaseUUID         string         `json:"case_uuid"`
	StorageKey       string         `json:"storage_key"`
	OriginalFilename string         `json:"filename"`
	ContentHash      string         `json:"content_hash"` // SHA-256 hex
	SizeBytes        int64          `json:"size_bytes"`
	Extension        string         `json:"extension"`
	DocType          DocumentType   `json:"doc_type,omitempty"`
	Confidence       float64        `json:"classification_confidence,omitempty"`
	ClassifyMethod   string         `json:"classification_method,omitempty"`
	OCRText          string         `json:"-"`
	PageCount        int            `json:"page_count,omitempty"`
	Status           DocumentStatus `json:"status"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// FieldSource says where an extracted field value came from.
type FieldSource string

const (
	SourceExtraction FieldSource = "extraction"
	SourceManual     FieldSource = "manual"
	SourceComputed   FieldSource = "computed"
	SourceExternal   FieldSource = "external"
)

// ExtractedField is one typed value pulled from a document, an enricher,
// or a manual override. Multiple rows per (case, field_name) are allowed;
// the feature assembler resolves them.
type ExtractedField struct {
	ID         string      `json:"id"`
	CaseUUID   string      `json:"case_uuid"`
	DocumentID string      `json:"document_id,omitempty"`
	FieldName  string      `json:"field_name"`
	FieldValue string      `json:"field_value"`
	Confidence float64     `json:"confidence"`
	Source     FieldSource `json:"source"`
	CreatedAt  time.Time   `json:"created_at"`
}

// BorrowerFeatures is the assembled feature vector for one case.
// Pointer fields distinguish "absent" from zero.
type BorrowerFeatures struct {
	CaseUUID string `json:"case_uuid"`

	// Identity
	FullName string     `json:"full_name,omitempty"`
	PAN      string     `json:"pan,omitempty"`
	Aadhaar  string     `json:"aadhaar,omitempty"`
	DOB      *time.Time `json:"dob,omitempty"`

	// Business
	EntityType   string   `json:"entity_type,omitempty"`
	GSTIN        string   `json:"gstin,omitempty"`
	Pincode      string   `json:"pincode,omitempty"`
	VintageYears *float64 `json:"business_vintage_years,omitempty"`

	// Financial
	AnnualTurnover    *float64 `json:"annual_turnover,omitempty"`
	MonthlyTurnover   *float64 `json:"monthly_turnover,omitempty"`
	AvgMonthlyBalance *float64 `json:"avg_monthly_balance,omitempty"`
	MonthlyCreditAvg  *float64 `json:"monthly_credit_avg,omitempty"`
	Bounces12M        *int     `json:"bounces_12m,omitempty"`
	CashDepositRatio  *float64 `json:"cash_deposit_ratio,omitempty"`
	ExistingEMIs      *float64 `json:"existing_emis,omitempty"`

	// Credit
	CIBILScore   *int `json:"cibil_score,omitempty"`
	ActiveLoans  *int `json:"active_loans,omitempty"`
	Overdues     *int `json:"overdues,omitempty"`
	Enquiries12M *int `json:"enquiries_12m,omitempty"`

	Completeness float64   `json:"feature_completeness"` // 0-100
	UpdatedAt    time.Time `json:"updated_at"`
}

// LenderProduct is one lender offering with its published policy thresholds.
type LenderProduct struct {
	ID              string      `json:"id"`
	LenderName      string      `json:"lender_name"`
	ProductName     string      `json:"product_name"`
	ProgramType     ProgramType `json:"program_type"`
	IsActive        bool        `json:"is_active"`
	PolicyAvailable bool        `json:"policy_available"`

	MinCIBILScore     *int     `json:"min_cibil_score,omitempty"`
	MinVintageYears   *float64 `json:"min_vintage_years,omitempty"`
	MinTurnoverAnnual *float64 `json:"min_turnover_annual,omitempty"`
	MinABB            *float64 `json:"min_abb,omitempty"`
	AgeMin            *int     `json:"age_min,omitempty"`
	AgeMax            *int     `json:"age_max,omitempty"`
	MaxTicketSize     *float64 `json:"max_ticket_size,omitempty"`
	MaxDPD30Plus      *int     `json:"max_dpd_30plus,omitempty"`

	EligibleEntityTypes []string       `json:"eligible_entity_types,omitempty"`
	RequiredDocuments   []DocumentType `json:"required_documents,omitempty"`
	EnforcesGeo         bool           `json:"enforces_geo"`
}

// ApprovalProbability buckets an eligibility score.
type ApprovalProbability string

const (
	ProbabilityHigh   ApprovalProbability = "HIGH"
	ProbabilityMedium ApprovalProbability = "MEDIUM"
	ProbabilityLow    ApprovalProbability = "LOW"
	ProbabilityNone   ApprovalProbability = "NONE"
)

// HardFilterStatus is the layer-1 outcome for one lender product.
type HardFilterStatus string

const (
	FilterPass HardFilterStatus = "PASS"
	FilterFail HardFilterStatus = "FAIL"
)

// EligibilityResult is one lender-product evaluation within a run.
type EligibilityResult struct {
	ID                 string              `json:"id"`
	CaseUUID           string              `json:"case_uuid"`
	LenderProductID    string              `json:"lender_product_id"`
	LenderName         string              `json:"lender_name"`
	ProductName        string              `json:"product_name"`
	RunID              string              `json:"run_id"`
	HardFilterStatus   HardFilterStatus    `json:"hard_filter_status"`
	HardFilterDetails  map[string]string   `json:"hard_filter_details,omitempty"`
	EligibilityScore   *float64            `json:"eligibility_score,omitempty"`
	Probability        ApprovalProbability `json:"approval_probability"`
	ExpectedTicketMin  *float64            `json:"expected_ticket_min,omitempty"`
	ExpectedTicketMax  *float64            `json:"expected_ticket_max,omitempty"`
	Confidence         float64             `json:"confidence"`
	MissingImprovement []string            `json:"missing_for_improvement,omitempty"`
	Rank               *int                `json:"rank,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
}

// CaseReport is the generated report artifact pair for a case.
type CaseReport struct {
	ID              string                 `json:"report_id"`
	CaseUUID        string                 `json:"case_uuid"`
	Payload         map[string]interface{} `json:"payload"`
	PDFKey          string                 `json:"pdf_key"`
	WhatsAppSummary string                 `json:"whatsapp_summary"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// CopilotQueryType is the rule-classified category of an operator query.
type CopilotQueryType string

const (
	QueryCIBIL      CopilotQueryType = "CIBIL"
	QueryPincode    CopilotQueryType = "PINCODE"
	QueryLender     CopilotQueryType = "LENDER_SPECIFIC"
	QueryComparison CopilotQueryType = "COMPARISON"
	QueryVintage    CopilotQueryType = "VINTAGE"
	QueryTurnover   CopilotQueryType = "TURNOVER"
	QueryEntity     CopilotQueryType = "ENTITY"
	QueryTicket     CopilotQueryType = "TICKET"
	QueryRequired   CopilotQueryType = "REQUIREMENT"
	QueryKnowledge  CopilotQueryType = "KNOWLEDGE"
	QueryGeneral    CopilotQueryType = "GENERAL"
)

// CopilotQuery is one persisted question/answer turn.
type CopilotQuery struct {
	ID           string           `json:"id"`
	OperatorID   string           `json:"operator_id"`
	CaseUUID     string           `json:"case_uuid,omitempty"`
	QueryText    string           `json:"query_text"`
	DetectedType CopilotQueryType `json:"detected_type"`
	Sources      []string         `json:"retrieved_sources,omitempty"`
	ResponseText string           `json:"response_text"`
	AnswerMode   string           `json:"answer_mode"` // llm | template | glossary
	CreatedAt    time.Time        `json:"created_at"`
}

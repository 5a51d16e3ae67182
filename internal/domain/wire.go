package domain

// Wire types for the offline reconciliation protocol. The agent and the
// server share these shapes; all arrays are omitted when empty.

type SyncRequest struct {
	Audits            []AuditMutation  `json:"audits,omitempty"`
	Answers           []AnswerMutation `json:"answers,omitempty"`
	RequestedAuditIDs []string         `json:"requestedAuditIds,omitempty"`
}

// AuditMutation carries a dirty parent record: the full scalar field map, the
// inspector set and the client stamp used for the LWW comparison.
type AuditMutation struct {
	ID                   string         `json:"id"`
	GeneralDetails       map[string]any `json:"generalDetails"`
	SelectedInspectorIDs []string       `json:"selectedInspectorIds"`
	LastUpdated          string         `json:"lastUpdated"`
}

type AnswerMutation struct {
	AuditID     string  `json:"auditId"`
	CriterionID string  `json:"criterionId"`
	Value       *string `json:"value"`
	Comment     *string `json:"comment"`
	LastUpdated string  `json:"lastUpdated"`
}

type SyncResponse struct {
	OK     bool            `json:"ok"`
	Audits []AuditSnapshot `json:"audits,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// AuditSnapshot is the authoritative post-merge state of one audit as the
// server returns it: current stamps, full field map and every answer.
type AuditSnapshot struct {
	ID                   string           `json:"id"`
	UpdatedAt            string           `json:"updatedAt"`
	GeneralDetails       map[string]any   `json:"generalDetails"`
	SelectedInspectorIDs []string         `json:"selectedInspectorIds"`
	Answers              []AnswerSnapshot `json:"answers"`
}

type AnswerSnapshot struct {
	CriterionID string  `json:"criterionId"`
	Value       *string `json:"value"`
	Comment     *string `json:"comment"`
	UpdatedAt   string  `json:"updatedAt"`
}

type CreateAuditRequest struct {
	GeneralDetails       map[string]any `json:"generalDetails"`
	SelectedInspectorIDs []string       `json:"selectedInspectorIds"`
}

type ReferenceCriterion struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type ReferenceCategory struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Criteria []ReferenceCriterion `json:"criteria"`
}

type ReferenceInspector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReferenceData is the read-only lookup set the form and the summary
// projection are driven by.
type ReferenceData struct {
	Categories []ReferenceCategory  `json:"categories"`
	Inspectors []ReferenceInspector `json:"inspectors"`
}

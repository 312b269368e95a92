package application

// Source tells where an approved answer came from.
type Source string

const (
	SourceAutoResume        Source = "auto_resume"
	SourceAutoCoverLetter   Source = "auto_cover_letter"
	SourceProfilePhone      Source = "profile.phone"
	SourceProfileEmail      Source = "profile.email"
	SourceProfileLocation   Source = "profile.location"
	SourceWorkAuthorization Source = "profile.work_authorization"
	SourceKnowledgeBase     Source = "knowledge_base"
	SourceUserProvided      Source = "user_provided"
	SourceUserSkipped       Source = "user_skipped"
	SourceDebugAnswers      Source = "debug_answers_file"
)

// Approver names the component that accepted an answer.
type Approver string

const (
	ApproverHeuristics Approver = "AutoHeuristics"
	ApproverValidity   Approver = "AnswerValidityAgent"
	ApproverUser       Approver = "UserInputRequiredAgent"
	ApproverDebug      Approver = "DebugAnswers"
)

// AnswerRecord is a single approved value for a field.
type AnswerRecord struct {
	FieldID string `json:"field_id"`
	Answer  string `json:"answer"`
	Source  Source `json:"source"`
	// Provenance is a free-text note such as the evidence chunk cited by the model.
	Provenance  string   `json:"provenance,omitempty"`
	ApprovedBy  Approver `json:"approved_by"`
	DisplayName string   `json:"display_name"`
	Timestamp   string   `json:"timestamp"`
}

// SkipRecord marks a field the user explicitly chose to leave blank.
type SkipRecord struct {
	FieldID     string   `json:"field_id"`
	Source      Source   `json:"source"`
	ApprovedBy  Approver `json:"approved_by"`
	DisplayName string   `json:"display_name"`
	Timestamp   string   `json:"timestamp"`
}

// PendingQuestion is a field waiting on a human.
type PendingQuestion struct {
	Question  string `json:"question"`
	Reason    string `json:"reason"`
	InputType string `json:"input_type"`
	Required  bool   `json:"required"`
}

// AnswerAssessment is the validity gate verdict for one field.
type AnswerAssessment struct {
	FieldID         string `json:"field_id"`
	FieldName       string `json:"field_name"`
	CanAnswer       bool   `json:"can_answer"`
	ExtractedAnswer string `json:"extracted_answer,omitempty"`
	NeedsUserInput  bool   `json:"needs_user_input"`
	Reasoning       string `json:"reasoning"`
	Provenance      string `json:"provenance,omitempty"`
}

// NeedsHuman reports whether the field has to go through the human loop.
func (a *AnswerAssessment) NeedsHuman() bool {
	return a.NeedsUserInput || !a.CanAnswer
}

package store

import "time"

type UserType string

const (
	UserTypeIndividual UserType = "individual"
	UserTypeBusiness   UserType = "business"
	UserTypeBoth       UserType = "both"
)

// RoleName keys the portfolio's role modules. At most one module exists per
// role; adding a role replaces any prior record for that key.
type RoleName string

const (
	RoleJobseeker     RoleName = "jobseeker"
	RoleCarer         RoleName = "carer"
	RoleStudent       RoleName = "student"
	RoleBusinessOwner RoleName = "businessOwner"
)

func (r RoleName) Valid() bool {
	switch r {
	case RoleJobseeker, RoleCarer, RoleStudent, RoleBusinessOwner:
		return true
	}
	return false
}

// RoleModule holds the free-form attributes collected for one situational
// role, stamped when the module was (re)created.
type RoleModule struct {
	Attributes map[string]any `json:"attributes"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type BusinessProfile struct {
	ABN                 string `json:"abn,omitempty"`
	Name                string `json:"name,omitempty"`
	Industry            string `json:"industry,omitempty"`
	State               string `json:"state,omitempty"`
	Postcode            string `json:"postcode,omitempty"`
	LocalGovernmentArea string `json:"localGovernmentArea,omitempty"`
	Employees           int    `json:"employees,omitempty"`
	Contractors         int    `json:"contractors,omitempty"`
	Vehicles            int    `json:"vehicles,omitempty"`
	Apprentices         int    `json:"apprentices,omitempty"`
	Interstate          bool   `json:"interstate,omitempty"`
	Notes               string `json:"notes,omitempty"`
}

type IndividualProfile struct {
	VisaType        string `json:"visaType,omitempty"`
	VisaSubclass    string `json:"visaSubclass,omitempty"`
	StudyStatus     string `json:"studyStatus,omitempty"`
	WorkRights      string `json:"workRights,omitempty"`
	TravelPlans     string `json:"travelPlans,omitempty"`
	IncomeBand      string `json:"incomeBand,omitempty"`
	HousingGoals    string `json:"housingGoals,omitempty"`
	Dependants      int    `json:"dependants,omitempty"`
	ResidencyStatus string `json:"residencyStatus,omitempty"`
}

type LocationProfile struct {
	CurrentState    string   `json:"currentState,omitempty"`
	CurrentPostcode string   `json:"currentPostcode,omitempty"`
	IntendedStates  []string `json:"intendedStates,omitempty"`
}

// Portfolio is the user's accumulated profile, the single source of truth
// the assistant personalizes against.
type Portfolio struct {
	UserType   UserType                `json:"userType,omitempty"`
	Business   *BusinessProfile        `json:"business,omitempty"`
	Individual *IndividualProfile      `json:"individual,omitempty"`
	Location   *LocationProfile        `json:"location,omitempty"`
	Roles      map[RoleName]RoleModule `json:"roles,omitempty"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Category string

const (
	CategoryTax        Category = "tax"
	CategoryServices   Category = "services"
	CategoryData       Category = "data"
	CategoryCompliance Category = "compliance"
)

type ChecklistItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     string    `json:"dueDate,omitempty"`
	Agency      string    `json:"agency,omitempty"`
	Priority    Priority  `json:"priority"`
	Category    Category  `json:"category"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// State is everything the portfolio store owns for one session: the profile
// plus the checklist, in insertion order.
type State struct {
	Portfolio Portfolio       `json:"portfolio"`
	Checklist []ChecklistItem `json:"checklist"`
}

// FormKind names one of the context-collection forms the assistant can ask
// the client to render.
type FormKind string

const (
	FormABN             FormKind = "abn"
	FormBusinessDetails FormKind = "businessDetails"
	FormDocumentUpload  FormKind = "documentUpload"
	FormJobseeker       FormKind = "jobseekerDetails"
	FormCarer           FormKind = "carerDetails"
	FormStudent         FormKind = "studentDetails"
	FormBankConnect     FormKind = "bankConnect"
)

func (f FormKind) Valid() bool {
	switch f {
	case FormABN, FormBusinessDetails, FormDocumentUpload, FormJobseeker,
		FormCarer, FormStudent, FormBankConnect:
		return true
	}
	return false
}

// Closed vocabularies shared by the tool declaration and the strict reply
// metadata schema.
var (
	ChallengeAreaValues = []string{"tax", "services", "data", "compliance"}
	CategoryValues      = []string{"tax", "services", "data", "compliance"}
	PriorityValues      = []string{"high", "medium", "low"}
	JurisdictionLevels  = []string{"federal", "state", "local"}
	FormKindValues      = []string{
		string(FormABN), string(FormBusinessDetails), string(FormDocumentUpload),
		string(FormJobseeker), string(FormCarer), string(FormStudent),
		string(FormBankConnect),
	}
)

type Citation struct {
	Title  string `json:"title"`
	Source string `json:"source,omitempty"`
	URL    string `json:"url,omitempty"`
}

type Jurisdiction struct {
	Level string `json:"level"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

type ChecklistSuggestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	Agency      string   `json:"agency,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	Category    Category `json:"category,omitempty"`
}

// ReplyMetadata is the typed side-channel payload an assistant reply may
// carry. Instances exist only after strict schema validation.
type ReplyMetadata struct {
	ChallengeAreas     []string              `json:"challengeAreas,omitempty"`
	AppliesTo          []string              `json:"appliesTo,omitempty"`
	RecommendedActions []string              `json:"recommendedActions,omitempty"`
	Citations          []Citation            `json:"citations,omitempty"`
	Jurisdictions      []Jurisdiction        `json:"jurisdictions,omitempty"`
	Suggestions        []string              `json:"suggestions,omitempty"`
	ChecklistItems     []ChecklistSuggestion `json:"checklistItems,omitempty"`
	ShowForm           FormKind              `json:"showForm,omitempty"`
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is immutable once appended; the session's message list only
// grows, except on an explicit chat reset which replaces it wholesale.
type ChatMessage struct {
	ID        string         `json:"id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  *ReplyMetadata `json:"metadata,omitempty"`
	ShowForm  FormKind       `json:"showForm,omitempty"`
}

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseAwaiting Phase = "awaiting-response"
	PhaseError    Phase = "error"
)

// Session is the server-side stand-in for one browser session: the portfolio
// state, the conversation, and the form-directed flow bookkeeping.
type Session struct {
	ID          string            `json:"id"`
	Subject     string            `json:"subject"`
	State       State             `json:"state"`
	Messages    []ChatMessage     `json:"messages"`
	Phase       Phase             `json:"phase"`
	PendingForm FormKind          `json:"pendingForm,omitempty"`
	Satisfied   map[FormKind]bool `json:"satisfiedForms,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

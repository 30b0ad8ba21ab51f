package store

import (
	"time"

	"github.com/google/uuid"
)

// Stubbed in tests.
var (
	now   = time.Now
	newID = uuid.NewString
)

type ActionType string

const (
	ActionSetUserType         ActionType = "SET_USER_TYPE"
	ActionUpdateBusiness      ActionType = "UPDATE_BUSINESS"
	ActionUpdateIndividual    ActionType = "UPDATE_INDIVIDUAL"
	ActionUpdateLocation      ActionType = "UPDATE_LOCATION"
	ActionAddRoleModule       ActionType = "ADD_ROLE_MODULE"
	ActionRemoveRoleModule    ActionType = "REMOVE_ROLE_MODULE"
	ActionAddChecklistItem    ActionType = "ADD_CHECKLIST_ITEM"
	ActionToggleChecklistItem ActionType = "TOGGLE_CHECKLIST_ITEM"
	ActionRemoveChecklistItem ActionType = "REMOVE_CHECKLIST_ITEM"
	ActionSwitchContext       ActionType = "SWITCH_CONTEXT"
	ActionClearPortfolio      ActionType = "CLEAR_PORTFOLIO"
)

// BusinessPatch carries only the fields a caller wants changed; nil fields
// are left untouched by the shallow merge.
type BusinessPatch struct {
	ABN                 *string `json:"abn,omitempty"`
	Name                *string `json:"name,omitempty"`
	Industry            *string `json:"industry,omitempty"`
	State               *string `json:"state,omitempty"`
	Postcode            *string `json:"postcode,omitempty"`
	LocalGovernmentArea *string `json:"localGovernmentArea,omitempty"`
	Employees           *int    `json:"employees,omitempty"`
	Contractors         *int    `json:"contractors,omitempty"`
	Vehicles            *int    `json:"vehicles,omitempty"`
	Apprentices         *int    `json:"apprentices,omitempty"`
	Interstate          *bool   `json:"interstate,omitempty"`
	Notes               *string `json:"notes,omitempty"`
}

type IndividualPatch struct {
	VisaType        *string `json:"visaType,omitempty"`
	VisaSubclass    *string `json:"visaSubclass,omitempty"`
	StudyStatus     *string `json:"studyStatus,omitempty"`
	WorkRights      *string `json:"workRights,omitempty"`
	TravelPlans     *string `json:"travelPlans,omitempty"`
	IncomeBand      *string `json:"incomeBand,omitempty"`
	HousingGoals    *string `json:"housingGoals,omitempty"`
	Dependants      *int    `json:"dependants,omitempty"`
	ResidencyStatus *string `json:"residencyStatus,omitempty"`
}

type LocationPatch struct {
	CurrentState    *string  `json:"currentState,omitempty"`
	CurrentPostcode *string  `json:"currentPostcode,omitempty"`
	IntendedStates  []string `json:"intendedStates,omitempty"`
}

// NewChecklistItem is the caller-supplied part of a checklist item; the
// reducer assigns the identifier, completion flag and timestamp.
type NewChecklistItem struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	Agency      string   `json:"agency,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	Category    Category `json:"category,omitempty"`
}

// Action is the tagged payload union consumed by Reduce. Only the fields
// relevant to Type are read.
type Action struct {
	Type       ActionType        `json:"type"`
	UserType   UserType          `json:"userType,omitempty"`
	Business   *BusinessPatch    `json:"business,omitempty"`
	Individual *IndividualPatch  `json:"individual,omitempty"`
	Location   *LocationPatch    `json:"location,omitempty"`
	Role       RoleName          `json:"role,omitempty"`
	Attributes map[string]any    `json:"attributes,omitempty"`
	Item       *NewChecklistItem `json:"item,omitempty"`
	ItemID     string            `json:"itemId,omitempty"`
	Portfolio  *Portfolio        `json:"portfolio,omitempty"`
}

// Reduce is the pure state transition for the portfolio store. It never
// mutates its input; unrecognized actions return the state unchanged.
func Reduce(s State, a Action) State {
	switch a.Type {
	case ActionSetUserType:
		out := cloneState(s)
		out.Portfolio.UserType = a.UserType
		return out

	case ActionUpdateBusiness:
		if a.Business == nil {
			return s
		}
		out := cloneState(s)
		out.Portfolio.Business = mergeBusiness(s.Portfolio.Business, a.Business)
		return out

	case ActionUpdateIndividual:
		if a.Individual == nil {
			return s
		}
		out := cloneState(s)
		out.Portfolio.Individual = mergeIndividual(s.Portfolio.Individual, a.Individual)
		return out

	case ActionUpdateLocation:
		if a.Location == nil {
			return s
		}
		out := cloneState(s)
		out.Portfolio.Location = mergeLocation(s.Portfolio.Location, a.Location)
		return out

	case ActionAddRoleModule:
		if !a.Role.Valid() {
			return s
		}
		out := cloneState(s)
		if out.Portfolio.Roles == nil {
			out.Portfolio.Roles = make(map[RoleName]RoleModule)
		}
		attrs := make(map[string]any, len(a.Attributes))
		for k, v := range a.Attributes {
			attrs[k] = v
		}
		// Full replacement of any prior module for this role, fresh stamp.
		out.Portfolio.Roles[a.Role] = RoleModule{Attributes: attrs, CreatedAt: now()}
		return out

	case ActionRemoveRoleModule:
		if _, ok := s.Portfolio.Roles[a.Role]; !ok {
			return s
		}
		out := cloneState(s)
		delete(out.Portfolio.Roles, a.Role)
		return out

	case ActionAddChecklistItem:
		if a.Item == nil {
			return s
		}
		out := cloneState(s)
		out.Checklist = append(out.Checklist, ChecklistItem{
			ID:          newID(),
			Title:       a.Item.Title,
			Description: a.Item.Description,
			DueDate:     a.Item.DueDate,
			Agency:      a.Item.Agency,
			Priority:    a.Item.Priority,
			Category:    a.Item.Category,
			Completed:   false,
			CreatedAt:   now(),
		})
		return out

	case ActionToggleChecklistItem:
		for i, item := range s.Checklist {
			if item.ID == a.ItemID {
				out := cloneState(s)
				out.Checklist[i].Completed = !item.Completed
				return out
			}
		}
		return s

	case ActionRemoveChecklistItem:
		for i, item := range s.Checklist {
			if item.ID == a.ItemID {
				out := cloneState(s)
				out.Checklist = append(out.Checklist[:i:i], out.Checklist[i+1:]...)
				return out
			}
		}
		return s

	case ActionSwitchContext:
		out := cloneState(s)
		if a.Portfolio != nil {
			out.Portfolio = clonePortfolio(*a.Portfolio)
		} else {
			out.Portfolio = Portfolio{}
		}
		return out

	case ActionClearPortfolio:
		return State{}

	default:
		return s
	}
}

func cloneState(s State) State {
	out := State{Portfolio: clonePortfolio(s.Portfolio)}
	if s.Checklist != nil {
		out.Checklist = make([]ChecklistItem, len(s.Checklist))
		copy(out.Checklist, s.Checklist)
	}
	return out
}

func clonePortfolio(p Portfolio) Portfolio {
	out := p
	if p.Business != nil {
		b := *p.Business
		out.Business = &b
	}
	if p.Individual != nil {
		i := *p.Individual
		out.Individual = &i
	}
	if p.Location != nil {
		l := *p.Location
		l.IntendedStates = append([]string(nil), p.Location.IntendedStates...)
		out.Location = &l
	}
	if p.Roles != nil {
		out.Roles = make(map[RoleName]RoleModule, len(p.Roles))
		for name, mod := range p.Roles {
			attrs := make(map[string]any, len(mod.Attributes))
			for k, v := range mod.Attributes {
				attrs[k] = v
			}
			out.Roles[name] = RoleModule{Attributes: attrs, CreatedAt: mod.CreatedAt}
		}
	}
	return out
}

func mergeBusiness(cur *BusinessProfile, p *BusinessPatch) *BusinessProfile {
	out := BusinessProfile{}
	if cur != nil {
		out = *cur
	}
	if p.ABN != nil {
		out.ABN = *p.ABN
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Industry != nil {
		out.Industry = *p.Industry
	}
	if p.State != nil {
		out.State = *p.State
	}
	if p.Postcode != nil {
		out.Postcode = *p.Postcode
	}
	if p.LocalGovernmentArea != nil {
		out.LocalGovernmentArea = *p.LocalGovernmentArea
	}
	if p.Employees != nil {
		out.Employees = *p.Employees
	}
	if p.Contractors != nil {
		out.Contractors = *p.Contractors
	}
	if p.Vehicles != nil {
		out.Vehicles = *p.Vehicles
	}
	if p.Apprentices != nil {
		out.Apprentices = *p.Apprentices
	}
	if p.Interstate != nil {
		out.Interstate = *p.Interstate
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	return &out
}

func mergeIndividual(cur *IndividualProfile, p *IndividualPatch) *IndividualProfile {
	out := IndividualProfile{}
	if cur != nil {
		out = *cur
	}
	if p.VisaType != nil {
		out.VisaType = *p.VisaType
	}
	if p.VisaSubclass != nil {
		out.VisaSubclass = *p.VisaSubclass
	}
	if p.StudyStatus != nil {
		out.StudyStatus = *p.StudyStatus
	}
	if p.WorkRights != nil {
		out.WorkRights = *p.WorkRights
	}
	if p.TravelPlans != nil {
		out.TravelPlans = *p.TravelPlans
	}
	if p.IncomeBand != nil {
		out.IncomeBand = *p.IncomeBand
	}
	if p.HousingGoals != nil {
		out.HousingGoals = *p.HousingGoals
	}
	if p.Dependants != nil {
		out.Dependants = *p.Dependants
	}
	if p.ResidencyStatus != nil {
		out.ResidencyStatus = *p.ResidencyStatus
	}
	return &out
}

func mergeLocation(cur *LocationProfile, p *LocationPatch) *LocationProfile {
	out := LocationProfile{}
	if cur != nil {
		out = *cur
	}
	if p.CurrentState != nil {
		out.CurrentState = *p.CurrentState
	}
	if p.CurrentPostcode != nil {
		out.CurrentPostcode = *p.CurrentPostcode
	}
	if p.IntendedStates != nil {
		out.IntendedStates = append([]string(nil), p.IntendedStates...)
	}
	return &out
}

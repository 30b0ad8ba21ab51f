package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"redtape.au/redtape/internal/store"
)

const sendFailureReply = "Sorry — I couldn't reach the assistance desk just now. " +
	"Your message is safe; please try sending it again."

// FormSubmission is one completed context-collection form.
type FormSubmission struct {
	Form   store.FormKind `json:"form"`
	Fields map[string]any `json:"fields"`
}

// FlowService drives the form-directed conversation over sessions: phases,
// directives, and the dual effect of a form submission.
type FlowService struct {
	sessions *store.SessionStore
	chat     *ChatService
}

func NewFlowService(sessions *store.SessionStore, chat *ChatService) *FlowService {
	return &FlowService{sessions: sessions, chat: chat}
}

func (f *FlowService) CreateSession(subject string) store.Session {
	return f.sessions.Create(subject)
}

func (f *FlowService) GetSession(id, subject string) (store.Session, error) {
	sess, err := f.sessions.Snapshot(id, subject)
	if err != nil {
		return store.Session{}, sessionError(err)
	}
	return sess, nil
}

func (f *FlowService) Teardown(id, subject string) error {
	if err := f.sessions.Delete(id, subject); err != nil {
		return sessionError(err)
	}
	return nil
}

func (f *FlowService) ResetChat(id, subject string) (store.Session, error) {
	sess, err := f.sessions.ResetChat(id, subject)
	if err != nil {
		return store.Session{}, sessionError(err)
	}
	return sess, nil
}

func (f *FlowService) GetPortfolio(id, subject string) (store.State, error) {
	sess, err := f.sessions.Snapshot(id, subject)
	if err != nil {
		return store.State{}, sessionError(err)
	}
	return sess.State, nil
}

func (f *FlowService) Dispatch(id, subject string, action store.Action) (store.State, error) {
	state, err := f.sessions.Dispatch(id, subject, action)
	if err != nil {
		return store.State{}, sessionError(err)
	}
	return state, nil
}

// SendMessage appends the user turn, runs the chat round with the session's
// portfolio snapshot, and appends the assistant turn. Upstream failure is
// surfaced as a synthesized assistant message, not as a request error.
func (f *FlowService) SendMessage(ctx context.Context, id, subject, content string) (store.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.ChatMessage{}, NewInvalidInput("message content cannot be empty")
	}

	err := f.sessions.Apply(id, subject, func(sess *store.Session) {
		sess.Messages = append(sess.Messages, store.NewChatMessage(store.RoleUser, content))
		sess.Phase = store.PhaseAwaiting
	})
	if err != nil {
		return store.ChatMessage{}, sessionError(err)
	}
	snapshot, err := f.sessions.Snapshot(id, subject)
	if err != nil {
		return store.ChatMessage{}, sessionError(err)
	}

	msgs := make([]IncomingMessage, len(snapshot.Messages))
	for i, m := range snapshot.Messages {
		msgs[i] = IncomingMessage{Role: string(m.Role), Content: m.Content}
	}

	reply, chatErr := f.chat.Respond(ctx, msgs, snapshot.State)
	if chatErr != nil {
		log.Printf("Session %s: chat round failed: %v", id, chatErr)
		failure := store.NewChatMessage(store.RoleAssistant, sendFailureReply)
		if err := f.sessions.Apply(id, subject, func(sess *store.Session) {
			sess.Messages = append(sess.Messages, failure)
			sess.Phase = store.PhaseError
		}); err != nil {
			return store.ChatMessage{}, sessionError(err)
		}
		return failure, nil
	}

	assistant := store.NewChatMessage(store.RoleAssistant, reply.Content)
	assistant.Metadata = reply.Metadata
	directive := reply.ShowForm

	err = f.sessions.Apply(id, subject, func(sess *store.Session) {
		// Suppress directives for forms this session already satisfied;
		// without this guard a re-issued directive would let stale form
		// state overwrite the role module.
		if directive != "" && !sess.Satisfied[directive] {
			assistant.ShowForm = directive
			sess.PendingForm = directive
		} else {
			sess.PendingForm = ""
		}
		sess.Messages = append(sess.Messages, assistant)
		sess.Phase = store.PhaseIdle
	})
	if err != nil {
		return store.ChatMessage{}, sessionError(err)
	}
	return assistant, nil
}

// SubmitForm performs both submission effects: dispatch the mapped portfolio
// mutations, then send the synthesized follow-up message through the normal
// chat path. A form may only be submitted against a matching pending
// directive, and never twice.
func (f *FlowService) SubmitForm(ctx context.Context, id, subject string, sub FormSubmission) (store.ChatMessage, error) {
	if !sub.Form.Valid() {
		return store.ChatMessage{}, NewInvalidInput("unknown form kind")
	}

	snapshot, err := f.sessions.Snapshot(id, subject)
	if err != nil {
		return store.ChatMessage{}, sessionError(err)
	}
	if snapshot.PendingForm != sub.Form {
		return store.ChatMessage{}, NewInvalidInput("that form was not requested")
	}
	if snapshot.Satisfied[sub.Form] {
		return store.ChatMessage{}, NewConflict("that information has already been provided")
	}

	actions := actionsForForm(sub)
	err = f.sessions.Apply(id, subject, func(sess *store.Session) {
		for _, action := range actions {
			sess.State = store.Reduce(sess.State, action)
		}
		sess.Satisfied[sub.Form] = true
		sess.PendingForm = ""
	})
	if err != nil {
		return store.ChatMessage{}, sessionError(err)
	}

	return f.SendMessage(ctx, id, subject, summarizeSubmission(sub))
}

// actionsForForm maps a submitted form onto portfolio store actions. The
// business-shaped forms patch the business record (the JSON round-trip keeps
// only fields the patch type knows about); role forms replace the matching
// role module wholesale.
func actionsForForm(sub FormSubmission) []store.Action {
	switch sub.Form {
	case store.FormABN, store.FormDocumentUpload:
		return []store.Action{{Type: store.ActionUpdateBusiness, Business: businessPatchFrom(sub.Fields)}}
	case store.FormBusinessDetails:
		return []store.Action{
			{Type: store.ActionUpdateBusiness, Business: businessPatchFrom(sub.Fields)},
			{Type: store.ActionAddRoleModule, Role: store.RoleBusinessOwner, Attributes: sub.Fields},
		}
	case store.FormJobseeker:
		return []store.Action{{Type: store.ActionAddRoleModule, Role: store.RoleJobseeker, Attributes: sub.Fields}}
	case store.FormCarer:
		return []store.Action{{Type: store.ActionAddRoleModule, Role: store.RoleCarer, Attributes: sub.Fields}}
	case store.FormStudent:
		return []store.Action{{Type: store.ActionAddRoleModule, Role: store.RoleStudent, Attributes: sub.Fields}}
	case store.FormBankConnect:
		return []store.Action{{Type: store.ActionUpdateIndividual, Individual: individualPatchFrom(sub.Fields)}}
	}
	return nil
}

func businessPatchFrom(fields map[string]any) *store.BusinessPatch {
	patch := &store.BusinessPatch{}
	roundTrip(fields, patch)
	return patch
}

func individualPatchFrom(fields map[string]any) *store.IndividualPatch {
	patch := &store.IndividualPatch{}
	roundTrip(fields, patch)
	return patch
}

func roundTrip(fields map[string]any, dst any) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return
	}
	// Unknown keys are dropped; type mismatches make the whole patch empty,
	// which reduces to a no-op merge.
	_ = json.Unmarshal(raw, dst)
}

var formLabels = map[store.FormKind]string{
	store.FormABN:             "ABN lookup",
	store.FormBusinessDetails: "business",
	store.FormDocumentUpload:  "document",
	store.FormJobseeker:       "jobseeker",
	store.FormCarer:           "carer",
	store.FormStudent:         "student",
	store.FormBankConnect:     "bank connection",
}

// summarizeSubmission builds the synthesized follow-up chat message. Keys
// are sorted so the summary is stable.
func summarizeSubmission(sub FormSubmission) string {
	keys := make([]string, 0, len(sub.Fields))
	for k := range sub.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, sub.Fields[k]))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("I've completed the %s form.", formLabels[sub.Form])
	}
	return fmt.Sprintf("I've provided my %s details: %s.", formLabels[sub.Form], strings.Join(parts, ", "))
}

func sessionError(err error) error {
	if errors.Is(err, store.ErrSessionNotFound) {
		return NewNotFound("session not found")
	}
	return err
}

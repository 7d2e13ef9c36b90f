package goMFA

import (
	"github.com/MrEthical07/goMFA/method"
)

// Member is the subject of an MFA flow. It is owned by the host identity
// system.
type Member struct {
	ID    string
	Email string
	Name  string
	// SkippedRegistration records that the member chose to skip MFA
	// registration when policy allowed it. The host persists this flag.
	SkippedRegistration bool
}

func (m Member) handlerMember() method.Member {
	return method.Member{ID: m.ID, Email: m.Email, Name: m.Name}
}

// RegistrationStart is returned by [Engine.StartRegistration].
type RegistrationStart struct {
	Method      string       `json:"method"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	SupportLink string       `json:"supportLink,omitempty"`
	Component   string       `json:"component"`
	Props       method.Props `json:"props"`
}

// LoginStart is returned by [Engine.StartLogin].
type LoginStart struct {
	Method      string       `json:"method"`
	LeadInLabel string       `json:"leadInLabel"`
	Component   string       `json:"component"`
	Props       method.Props `json:"props"`
}

// LoginOutcome is returned by [Engine.CompleteLogin]. FullyVerified is true
// once the flow has verified every required factor.
type LoginOutcome struct {
	Result        method.Result
	FullyVerified bool
}

// MethodDescription describes one method to the frontend.
type MethodDescription struct {
	URLSegment         string `json:"urlSegment"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	Thumbnail          string `json:"thumbnail"`
	SupportLink        string `json:"supportLink,omitempty"`
	Component          string `json:"component"`
	LeadInLabel        string `json:"leadInLabel"`
	IsAvailable        bool   `json:"isAvailable"`
	UnavailableMessage string `json:"unavailableMessage,omitempty"`
}

// Endpoints are route templates with a {urlSegment} placeholder.
type Endpoints struct {
	Register   string `json:"register"`
	Login      string `json:"login"`
	Remove     string `json:"remove"`
	SetDefault string `json:"setDefault"`
	Skip       string `json:"skip"`
}

// Schema drives the frontend's method list.
type Schema struct {
	RegisteredMethods []MethodDescription `json:"registeredMethods"`
	AvailableMethods  []MethodDescription `json:"availableMethods"`
	DefaultMethod     string              `json:"defaultMethod,omitempty"`
	BackupMethod      *MethodDescription  `json:"backupMethod,omitempty"`
	Endpoints         Endpoints           `json:"endpoints"`
	CanSkip           bool                `json:"canSkip"`
	IsFullyRegistered bool                `json:"isFullyRegistered"`
	ShouldRedirect    bool                `json:"shouldRedirect"`
	Resources         map[string]string   `json:"resources"`
}

func describe(m method.Method) MethodDescription {
	reg := m.RegisterHandler()
	login := m.LoginHandler()
	return MethodDescription{
		URLSegment:         m.URLSegment(),
		Name:               m.Name(),
		Description:        m.Description(),
		Thumbnail:          m.Thumbnail(),
		SupportLink:        reg.SupportLink(),
		Component:          reg.Component(),
		LeadInLabel:        login.LeadInLabel(),
		IsAvailable:        m.IsAvailable(),
		UnavailableMessage: m.UnavailableMessage(),
	}
}

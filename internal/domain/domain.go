package domain

import "strings"

// PrimaryDomain is the user store domain used when a name carries none.
const PrimaryDomain = "PRIMARY"

type Certificate struct {
	Alias        string `json:"alias"`
	Certificate  string `json:"certificate,omitempty"`
	IssuerDN     string `json:"issuerDN,omitempty"`
	SubjectDN    string `json:"subjectDN,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	ValidFrom    string `json:"validFrom,omitempty" format:"date-time"`
	ValidTill    string `json:"validTill,omitempty" format:"date-time"`
}

type UserStore struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TypeName    string `json:"typeName,omitempty"`
	Enabled     bool   `json:"enabled"`
	Self        string `json:"self,omitempty"`
}

// TypeProperty is one configurable property of a user store type.
type TypeProperty struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName,omitempty"`
	Description  string `json:"description,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
	Required     bool   `json:"required,omitempty"`
	Secret       bool   `json:"secret,omitempty"`
	URL          bool   `json:"url,omitempty"`
}

// TypeProperties groups a type's properties by wizard section.
type TypeProperties struct {
	Basic      []TypeProperty `json:"Basic,omitempty"`
	Connection []TypeProperty `json:"Connection,omitempty"`
	User       []TypeProperty `json:"User,omitempty"`
	Group      []TypeProperty `json:"Group,omitempty"`
	Advanced   []TypeProperty `json:"Advanced,omitempty"`
}

type UserStoreType struct {
	TypeID     string         `json:"typeId"`
	TypeName   string         `json:"typeName"`
	ClassName  string         `json:"className,omitempty"`
	Properties TypeProperties `json:"properties"`
}

// Property is a name/value pair sent in create payloads.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type UserStoreCreate struct {
	TypeID      string     `json:"typeId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Properties  []Property `json:"properties"`
}

type Member struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

type Meta struct {
	Created      string `json:"created,omitempty" format:"date-time"`
	LastModified string `json:"lastModified,omitempty" format:"date-time"`
	Location     string `json:"location,omitempty"`
}

type Group struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Members     []Member `json:"members,omitempty"`
	Meta        Meta     `json:"meta,omitempty"`
}

// Domain returns the user store domain prefix of the display name.
func (g Group) Domain() string {
	d, _ := SplitDomain(g.DisplayName)
	return d
}

// Name returns the display name without its domain prefix.
func (g Group) Name() string {
	_, n := SplitDomain(g.DisplayName)
	return n
}

// SplitDomain splits "DOMAIN/name" names; names without a prefix belong to
// the primary domain.
func SplitDomain(qualified string) (string, string) {
	if i := strings.Index(qualified, "/"); i > 0 {
		return strings.ToUpper(qualified[:i]), qualified[i+1:]
	}
	return PrimaryDomain, qualified
}

// QualifiedName prefixes name with domain unless it is the primary domain.
func QualifiedName(domain, name string) string {
	if domain == "" || strings.EqualFold(domain, PrimaryDomain) {
		return name
	}
	return strings.ToUpper(domain) + "/" + name
}

type GroupCreate struct {
	Schemas     []string `json:"schemas"`
	DisplayName string   `json:"displayName"`
	Members     []Member `json:"members,omitempty"`
}

type Approval struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	PresentationName string `json:"presentationName,omitempty"`
	PresentationSub  string `json:"presentationSubject,omitempty"`
	Status           string `json:"taskStatus" enum:"READY,RESERVED,COMPLETED,BLOCKED"`
	Priority         int    `json:"priority,omitempty"`
	Created          string `json:"createdTimeInMillis,omitempty"`
}

type WorkflowDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template,omitempty"`
	Engine      string `json:"engine,omitempty"`
}

type WorkflowCreate struct {
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	TemplateID         string     `json:"templateId"`
	EngineID           string     `json:"engineId"`
	TemplateProperties []Property `json:"templateProperties"`
	EngineProperties   []Property `json:"engineProperties,omitempty"`
}

// Event is one persisted alert or mutation.
type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	Level       string `json:"level,omitempty"`
	Resource    string `json:"resource,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
	Payload     string `json:"payload_json,omitempty"`
}

// APIKey authenticates a robot principal against the console API. Only
// the hash of the key is stored.
type APIKey struct {
	ID          string   `json:"id"`
	ActorID     string   `json:"actor_id"`
	Name        string   `json:"name,omitempty"`
	KeyHash     string   `json:"-"`
	Permissions []string `json:"permissions,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	ExpiresAt   string   `json:"expires_at,omitempty" format:"date-time"`
	LastUsedAt  string   `json:"last_used_at,omitempty" format:"date-time"`
}

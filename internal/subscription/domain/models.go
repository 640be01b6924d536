package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type Action string

const (
	ActionAdd    Action = "ADD"
	ActionDelete Action = "DELETE"
)

type AssignmentType string

const (
	AssignmentTypeGroup AssignmentType = "GROUP"
	AssignmentTypeUser  AssignmentType = "USER"
)

type SubscriptionType string

const (
	SubscriptionTypeQBusiness SubscriptionType = "Q_BUSINESS"
	SubscriptionTypeQLite     SubscriptionType = "Q_LITE"
)

// DeleteConfirmation is the status returned by a successful DELETE.
const DeleteConfirmation = "Application assignment deleted successfully"

// Request is the normalized inbound shape shared by every entry surface.
type Request struct {
	Action           string `json:"action"`
	Region           string `json:"region"`
	ApplicationID    string `json:"applicationId"`
	AssignmentType   string `json:"assignmentType"`
	AssignmentID     string `json:"assignmentId"`
	SubscriptionType string `json:"subscriptionType,omitempty"`
}

// Command is a validated Request.
type Command struct {
	Action           Action
	Region           string
	ApplicationID    string
	Principal        Principal
	SubscriptionType SubscriptionType
}

// Result is returned on success. ADD fills SubscriptionID only; DELETE also sets Status.
type Result struct {
	SubscriptionID string `json:"subscriptionId"`
	Status         string `json:"status,omitempty"`
}

// Subscription is a record owned by the Q Business subscription API.
type Subscription struct {
	ID        string
	Principal Principal
	Type      SubscriptionType
}

// Principal is either a group or a user. The zero value matches nothing.
type Principal struct {
	kind AssignmentType
	id   string
}

func GroupPrincipal(id string) Principal {
	return Principal{kind: AssignmentTypeGroup, id: id}
}

func UserPrincipal(id string) Principal {
	return Principal{kind: AssignmentTypeUser, id: id}
}

// NewPrincipal builds a principal from an already validated assignment type.
func NewPrincipal(kind AssignmentType, id string) (Principal, error) {
	switch kind {
	case AssignmentTypeGroup:
		return GroupPrincipal(id), nil
	case AssignmentTypeUser:
		return UserPrincipal(id), nil
	default:
		return Principal{}, fmt.Errorf("unknown assignment type %q", kind)
	}
}

func (p Principal) Type() AssignmentType { return p.kind }

func (p Principal) ID() string { return p.id }

func (p Principal) IsZero() bool { return p.kind == "" }

func (p Principal) String() string {
	if p.IsZero() {
		return "<none>"
	}
	return string(p.kind) + ":" + p.id
}

// wireKey is the lower-case key used by the subscription API.
func (p Principal) wireKey() string {
	return strings.ToLower(string(p.kind))
}

// MarshalJSON writes the single-key shape {"group": id} or {"user": id}.
func (p Principal) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string{p.wireKey(): p.id})
}

// UnmarshalJSON accepts the principal key case-insensitively, preferring the
// exact lower-case key. Unknown keys leave the principal zero instead of
// failing the whole listing. When both kinds are present the group wins.
func (p *Principal) UnmarshalJSON(data []byte) error {
	*p = Principal{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if id, ok := principalID(raw, AssignmentTypeGroup); ok {
		*p = GroupPrincipal(id)
	} else if id, ok := principalID(raw, AssignmentTypeUser); ok {
		*p = UserPrincipal(id)
	}
	return nil
}

// principalID looks up the exact wire key first, then the remaining
// case variants in sorted order.
func principalID(raw map[string]json.RawMessage, kind AssignmentType) (string, bool) {
	exact := strings.ToLower(string(kind))
	candidates := []string{exact}
	var variants []string
	for key := range raw {
		if key != exact && strings.EqualFold(strings.TrimSpace(key), exact) {
			variants = append(variants, key)
		}
	}
	sort.Strings(variants)
	candidates = append(candidates, variants...)

	for _, key := range candidates {
		value, ok := raw[key]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(value, &id); err != nil {
			continue
		}
		return id, true
	}
	return "", false
}

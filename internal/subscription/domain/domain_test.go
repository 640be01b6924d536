package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	validAdd := Request{
		Action:           "ADD",
		Region:           "us-east-1",
		ApplicationID:    "app1",
		AssignmentType:   "GROUP",
		AssignmentID:     "grp1",
		SubscriptionType: "Q_LITE",
	}
	validDelete := Request{
		Action:         "DELETE",
		Region:         "us-west-2",
		ApplicationID:  "app1",
		AssignmentType: "user",
		AssignmentID:   "usr1",
	}

	tests := []struct {
		name    string
		mutate  func(r *Request)
		base    Request
		wantMsg string
	}{
		{name: "unknown action", base: validAdd, mutate: func(r *Request) { r.Action = "UPDATE" }, wantMsg: msgInvalidAction},
		{name: "lower-case action", base: validAdd, mutate: func(r *Request) { r.Action = "add" }, wantMsg: msgInvalidAction},
		{name: "add missing application", base: validAdd, mutate: func(r *Request) { r.ApplicationID = " " }, wantMsg: msgAddFieldsRequired},
		{name: "add missing assignment type", base: validAdd, mutate: func(r *Request) { r.AssignmentType = "" }, wantMsg: msgAddFieldsRequired},
		{name: "add missing assignment id", base: validAdd, mutate: func(r *Request) { r.AssignmentID = "" }, wantMsg: msgAddFieldsRequired},
		{name: "add missing subscription type", base: validAdd, mutate: func(r *Request) { r.SubscriptionType = "" }, wantMsg: msgAddFieldsRequired},
		{name: "add bad subscription type", base: validAdd, mutate: func(r *Request) { r.SubscriptionType = "Q_PRO" }, wantMsg: msgInvalidSubscriptionType},
		{name: "add bad assignment type", base: validAdd, mutate: func(r *Request) { r.AssignmentType = "ROLE" }, wantMsg: msgInvalidAssignmentType},
		{name: "add lower-case assignment type", base: validAdd, mutate: func(r *Request) { r.AssignmentType = "group" }, wantMsg: msgInvalidAssignmentType},
		{name: "delete missing application", base: validDelete, mutate: func(r *Request) { r.ApplicationID = "" }, wantMsg: msgDeleteFieldsRequired},
		{name: "delete missing assignment id", base: validDelete, mutate: func(r *Request) { r.AssignmentID = "" }, wantMsg: msgDeleteFieldsRequired},
		{name: "delete bad assignment type", base: validDelete, mutate: func(r *Request) { r.AssignmentType = "role" }, wantMsg: msgInvalidAssignmentType},
		{name: "region injection", base: validAdd, mutate: func(r *Request) { r.Region = "evil.example.com/x" }, wantMsg: msgInvalidRegion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.base
			tt.mutate(&req)

			_, err := req.Validate("")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestRequestValidateAdd(t *testing.T) {
	cmd, err := Request{
		Action:           "ADD",
		Region:           "us-east-1",
		ApplicationID:    "app1",
		AssignmentType:   "GROUP",
		AssignmentID:     "grp1",
		SubscriptionType: "Q_LITE",
	}.Validate("eu-west-1")
	require.NoError(t, err)

	assert.Equal(t, ActionAdd, cmd.Action)
	assert.Equal(t, "us-east-1", cmd.Region)
	assert.Equal(t, "app1", cmd.ApplicationID)
	assert.Equal(t, GroupPrincipal("grp1"), cmd.Principal)
	assert.Equal(t, SubscriptionTypeQLite, cmd.SubscriptionType)
}

func TestRequestValidateDeleteIgnoresSubscriptionType(t *testing.T) {
	cmd, err := Request{
		Action:           "DELETE",
		ApplicationID:    "app1",
		AssignmentType:   "User",
		AssignmentID:     "usr1",
		SubscriptionType: "bogus",
	}.Validate("eu-west-1")
	require.NoError(t, err)

	assert.Equal(t, ActionDelete, cmd.Action)
	assert.Equal(t, "eu-west-1", cmd.Region)
	assert.Equal(t, UserPrincipal("usr1"), cmd.Principal)
	assert.Empty(t, cmd.SubscriptionType)
}

func TestRequestValidateRequiresRegion(t *testing.T) {
	_, err := Request{Action: "DELETE", ApplicationID: "a", AssignmentType: "USER", AssignmentID: "u"}.Validate("")
	require.Error(t, err)
	assert.Equal(t, msgRegionRequired, err.Error())
}

func TestPrincipalMarshal(t *testing.T) {
	body, err := json.Marshal(struct {
		Principal Principal        `json:"principal"`
		Type      SubscriptionType `json:"type"`
	}{GroupPrincipal("grp1"), SubscriptionTypeQLite})
	require.NoError(t, err)
	assert.JSONEq(t, `{"principal":{"group":"grp1"},"type":"Q_LITE"}`, string(body))

	body, err = json.Marshal(UserPrincipal("usr1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"usr1"}`, string(body))
}

func TestPrincipalUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Principal
	}{
		{`{"group":"g1"}`, GroupPrincipal("g1")},
		{`{"USER":"u1"}`, UserPrincipal("u1")},
		{`{"Group":"g2","user":"u2"}`, GroupPrincipal("g2")},
		{`{"user":"a","USER":"b"}`, UserPrincipal("a")},
		{`{"USER":"b","user":"a"}`, UserPrincipal("a")},
		{`{"User":"c","USER":"b"}`, UserPrincipal("b")},
		{`{"user":7,"USER":"b"}`, UserPrincipal("b")},
		{`{"role":"r1"}`, Principal{}},
		{`{"user":42}`, Principal{}},
		{`null`, Principal{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var p Principal
			require.NoError(t, json.Unmarshal([]byte(tt.in), &p))
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestPrincipalUnmarshalRejectsNonObject(t *testing.T) {
	var p Principal
	assert.Error(t, json.Unmarshal([]byte(`"grp1"`), &p))
}

func TestKind(t *testing.T) {
	upstream := &UpstreamError{Operation: "ListSubscriptions", StatusCode: 500, Err: errors.New("boom")}

	assert.Equal(t, "validation_error", Kind(NewValidationError("bad")))
	assert.Equal(t, "not_found", Kind(fmt.Errorf("wrapped: %w", NewNotFoundError("missing"))))
	assert.Equal(t, "upstream_error", Kind(upstream))
	assert.Equal(t, "unsupported_operation", Kind(&UnsupportedOperationError{Method: "PATCH"}))
	assert.Equal(t, "ambiguous_principal", Kind(&AmbiguousPrincipalError{Matches: 2}))
	assert.Equal(t, "partial_completion", Kind(&PartialCompletionError{Action: ActionAdd, Err: upstream}))
	assert.Equal(t, "internal_error", Kind(errors.New("other")))
	assert.Equal(t, "", Kind(nil))
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := &UpstreamError{Err: errors.New("connection reset by peer")}
	assert.Equal(t, "Request failed: connection reset by peer", err.Error())

	err = &UpstreamError{Operation: "CreateApplicationAssignment", Err: errors.New("AccessDenied")}
	assert.Equal(t, "CreateApplicationAssignment failed: AccessDenied", err.Error())
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte("  "))
	require.NoError(t, err)
	assert.Equal(t, Request{}, req)

	req, err = DecodeRequest([]byte(`{"action":"DELETE","applicationId":"app1","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "DELETE", req.Action)
	assert.Equal(t, "app1", req.ApplicationID)

	_, err = DecodeRequest([]byte(`[1,2]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, msgInvalidBody, err.Error())
}

func TestAddAndDeleteRequestForceAction(t *testing.T) {
	add := AddRequest(Request{Action: "DELETE", AssignmentID: "grp1"})
	assert.Equal(t, "ADD", add.Action)
	assert.Equal(t, "grp1", add.AssignmentID)

	del := DeleteRequest("us-east-1", "app1", "USER", "usr1")
	assert.Equal(t, Request{Action: "DELETE", Region: "us-east-1", ApplicationID: "app1", AssignmentType: "USER", AssignmentID: "usr1"}, del)
}

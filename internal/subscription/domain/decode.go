package domain

import (
	"bytes"
	"encoding/json"
)

const msgInvalidBody = "Invalid request body"

// DecodeRequest parses a JSON request body. An empty body decodes to the zero
// Request so that field validation reports what is missing.
func DecodeRequest(raw []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, NewValidationError(msgInvalidBody)
	}
	return req, nil
}

// AddRequest forces the ADD action on a body decoded from a create call.
func AddRequest(body Request) Request {
	body.Action = string(ActionAdd)
	return body
}

// DeleteRequest builds a DELETE request from query parameters. A subscription
// type is never read for removals.
func DeleteRequest(region, applicationID, assignmentType, assignmentID string) Request {
	return Request{
		Action:         string(ActionDelete),
		Region:         region,
		ApplicationID:  applicationID,
		AssignmentType: assignmentType,
		AssignmentID:   assignmentID,
	}
}

package domain

import (
	"regexp"
	"strings"
)

const (
	msgInvalidAction           = "Invalid action. Must be ADD, or DELETE"
	msgAddFieldsRequired       = "assignmentType, assignmentId, and subscriptionType are required for ADD action"
	msgInvalidSubscriptionType = "Invalid subscription type. Must be Q_BUSINESS or Q_LITE"
	msgInvalidAssignmentType   = "Invalid assignment type. Must be GROUP or USER"
	msgDeleteFieldsRequired    = "assignmentType and assignmentId are required for DELETE action"
	msgRegionRequired          = "region is required"
	msgInvalidRegion           = "Invalid region"
)

// The region is interpolated into the upstream host name.
var regionPattern = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-[0-9]+$`)

// Validate checks the fields required by the requested action and returns the
// typed command. An empty region falls back to defaultRegion.
func (r Request) Validate(defaultRegion string) (Command, error) {
	action := Action(strings.TrimSpace(r.Action))
	applicationID := strings.TrimSpace(r.ApplicationID)
	assignmentType := strings.TrimSpace(r.AssignmentType)
	assignmentID := strings.TrimSpace(r.AssignmentID)
	subscriptionType := SubscriptionType(strings.TrimSpace(r.SubscriptionType))

	var (
		kind AssignmentType
		cmd  Command
	)

	switch action {
	case ActionAdd:
		if applicationID == "" || assignmentType == "" || assignmentID == "" || subscriptionType == "" {
			return Command{}, NewValidationError(msgAddFieldsRequired)
		}
		switch subscriptionType {
		case SubscriptionTypeQBusiness, SubscriptionTypeQLite:
		default:
			return Command{}, NewValidationError(msgInvalidSubscriptionType)
		}
		kind = AssignmentType(assignmentType)
		cmd.SubscriptionType = subscriptionType
	case ActionDelete:
		if applicationID == "" || assignmentType == "" || assignmentID == "" {
			return Command{}, NewValidationError(msgDeleteFieldsRequired)
		}
		// DELETE matches the principal key case-insensitively.
		kind = AssignmentType(strings.ToUpper(assignmentType))
	default:
		return Command{}, NewValidationError(msgInvalidAction)
	}

	principal, err := NewPrincipal(kind, assignmentID)
	if err != nil {
		return Command{}, NewValidationError(msgInvalidAssignmentType)
	}

	region := strings.TrimSpace(r.Region)
	if region == "" {
		region = strings.TrimSpace(defaultRegion)
	}
	if region == "" {
		return Command{}, NewValidationError(msgRegionRequired)
	}
	if !regionPattern.MatchString(region) {
		return Command{}, NewValidationError(msgInvalidRegion)
	}

	cmd.Action = action
	cmd.Region = region
	cmd.ApplicationID = applicationID
	cmd.Principal = principal
	return cmd, nil
}

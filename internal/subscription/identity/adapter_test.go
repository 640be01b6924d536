package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssotypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type applicationAPIMock struct {
	mock.Mock
	regions []string
}

func (m *applicationAPIMock) GetApplication(ctx context.Context, params *qbusiness.GetApplicationInput, optFns ...func(*qbusiness.Options)) (*qbusiness.GetApplicationOutput, error) {
	var opts qbusiness.Options
	for _, fn := range optFns {
		fn(&opts)
	}
	m.regions = append(m.regions, opts.Region)

	args := m.Called(aws.ToString(params.ApplicationId))
	out, _ := args.Get(0).(*qbusiness.GetApplicationOutput)
	return out, args.Error(1)
}

type assignmentAPIMock struct {
	mock.Mock
	regions []string
}

func (m *assignmentAPIMock) region(optFns []func(*ssoadmin.Options)) {
	var opts ssoadmin.Options
	for _, fn := range optFns {
		fn(&opts)
	}
	m.regions = append(m.regions, opts.Region)
}

func (m *assignmentAPIMock) CreateApplicationAssignment(ctx context.Context, params *ssoadmin.CreateApplicationAssignmentInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.CreateApplicationAssignmentOutput, error) {
	m.region(optFns)
	args := m.Called(aws.ToString(params.ApplicationArn), aws.ToString(params.PrincipalId), params.PrincipalType)
	return &ssoadmin.CreateApplicationAssignmentOutput{}, args.Error(0)
}

func (m *assignmentAPIMock) DeleteApplicationAssignment(ctx context.Context, params *ssoadmin.DeleteApplicationAssignmentInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.DeleteApplicationAssignmentOutput, error) {
	m.region(optFns)
	args := m.Called(aws.ToString(params.ApplicationArn), aws.ToString(params.PrincipalId), params.PrincipalType)
	return &ssoadmin.DeleteApplicationAssignmentOutput{}, args.Error(0)
}

type responseError struct{ status int }

func (e responseError) Error() string       { return "AccessDeniedException: denied" }
func (e responseError) HTTPStatusCode() int { return e.status }

func TestApplicationArn(t *testing.T) {
	apps := &applicationAPIMock{}
	apps.On("GetApplication", "app1").Return(&qbusiness.GetApplicationOutput{
		IdentityCenterApplicationArn: aws.String("arn:aws:sso::123:application/ssoins-1/apl-1"),
	}, nil).Once()

	adapter := NewAdapter(apps, &assignmentAPIMock{}, zaptest.NewLogger(t), nil)
	arn, err := adapter.ApplicationArn(context.Background(), "eu-central-1", "app1")
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:sso::123:application/ssoins-1/apl-1", arn)
	assert.Equal(t, []string{"eu-central-1"}, apps.regions)
	apps.AssertExpectations(t)
}

func TestApplicationArnMissingIsUpstreamError(t *testing.T) {
	apps := &applicationAPIMock{}
	apps.On("GetApplication", "app1").Return(&qbusiness.GetApplicationOutput{}, nil)

	adapter := NewAdapter(apps, &assignmentAPIMock{}, nil, nil)
	_, err := adapter.ApplicationArn(context.Background(), "us-east-1", "app1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.Contains(t, err.Error(), "identityCenterApplicationArn")
}

func TestApplicationArnSDKError(t *testing.T) {
	apps := &applicationAPIMock{}
	apps.On("GetApplication", "app1").Return(nil, responseError{status: 403})

	adapter := NewAdapter(apps, &assignmentAPIMock{}, nil, nil)
	_, err := adapter.ApplicationArn(context.Background(), "us-east-1", "app1")
	require.Error(t, err)

	var upstreamErr *domain.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, "GetApplication", upstreamErr.Operation)
	assert.Equal(t, 403, upstreamErr.StatusCode)
	assert.Equal(t, "GetApplication failed: AccessDeniedException: denied", err.Error())
}

func TestCreateAssignmentMapsPrincipalType(t *testing.T) {
	assignments := &assignmentAPIMock{}
	assignments.On("CreateApplicationAssignment", "arn:app", "grp1", ssotypes.PrincipalTypeGroup).Return(nil).Once()
	assignments.On("CreateApplicationAssignment", "arn:app", "usr1", ssotypes.PrincipalTypeUser).Return(nil).Once()

	adapter := NewAdapter(&applicationAPIMock{}, assignments, nil, nil)
	require.NoError(t, adapter.CreateAssignment(context.Background(), "us-east-1", "arn:app", domain.GroupPrincipal("grp1")))
	require.NoError(t, adapter.CreateAssignment(context.Background(), "us-west-2", "arn:app", domain.UserPrincipal("usr1")))

	assert.Equal(t, []string{"us-east-1", "us-west-2"}, assignments.regions)
	assignments.AssertExpectations(t)
}

func TestDeleteAssignmentError(t *testing.T) {
	assignments := &assignmentAPIMock{}
	assignments.On("DeleteApplicationAssignment", "arn:app", "usr1", ssotypes.PrincipalTypeUser).
		Return(errors.New("dial tcp: connection refused"))

	adapter := NewAdapter(&applicationAPIMock{}, assignments, nil, nil)
	err := adapter.DeleteAssignment(context.Background(), "us-east-1", "arn:app", domain.UserPrincipal("usr1"))
	require.Error(t, err)

	var upstreamErr *domain.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Zero(t, upstreamErr.StatusCode)
	assert.Equal(t, "DeleteApplicationAssignment", upstreamErr.Operation)
}

func TestZeroPrincipalIsRejectedWithoutCall(t *testing.T) {
	assignments := &assignmentAPIMock{}

	adapter := NewAdapter(&applicationAPIMock{}, assignments, nil, nil)
	err := adapter.CreateAssignment(context.Background(), "us-east-1", "arn:app", domain.Principal{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assignments.AssertNotCalled(t, "CreateApplicationAssignment", mock.Anything, mock.Anything, mock.Anything)
}

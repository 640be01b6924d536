package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/smallbiznis/qsubscription/internal/clock"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testCreds = aws.Credentials{
	AccessKeyID:     "AKIDEXAMPLE",
	SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	SessionToken:    "session-token",
	Source:          "test",
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type fakeQBusiness struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

func (f *fakeQBusiness) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.EscapedPath(),
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	f.mu.Unlock()
	f.handler(w, r)
}

func (f *fakeQBusiness) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeQBusiness) {
	t.Helper()

	fake := &fakeQBusiness{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := NewClient(Config{EndpointTemplate: srv.URL + "/"}, zaptest.NewLogger(t), nil).
		WithClock(clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	return client, fake
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestCreateSubscriptionSignsAndSendsPayload(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"subscriptionId":"sub-1"}`)
	})

	id, err := client.CreateSubscription(context.Background(), testCreds, "us-east-1", "app1",
		domain.GroupPrincipal("grp1"), domain.SubscriptionTypeQLite)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", id)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	req := reqs[0]

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/applications/app1/subscriptions", req.Path)
	assert.JSONEq(t, `{"principal":{"group":"grp1"},"type":"Q_LITE"}`, req.Body)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	auth := req.Header.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 "), auth)
	assert.Contains(t, auth, "Credential=AKIDEXAMPLE/20240301/us-east-1/qbusiness/aws4_request")
	assert.Contains(t, auth, "SignedHeaders=")
	assert.Equal(t, "20240301T120000Z", req.Header.Get("X-Amz-Date"))
	assert.Equal(t, "session-token", req.Header.Get("X-Amz-Security-Token"))
}

func TestSigningNameIsConfigurable(t *testing.T) {
	fake := &fakeQBusiness{handler: func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"subscriptions":[]}`)
	}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := NewClient(Config{EndpointTemplate: srv.URL, SigningName: "qbusiness-beta"}, nil, nil)
	_, err := client.ListSubscriptions(context.Background(), testCreds, "eu-west-1", "app1")
	require.NoError(t, err)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Header.Get("Authorization"), "/eu-west-1/qbusiness-beta/aws4_request")
}

func TestBaseURLSubstitutesRegion(t *testing.T) {
	client := NewClient(Config{}, nil, nil)
	assert.Equal(t, "https://qbusiness.ap-southeast-2.api.aws", client.BaseURL("ap-southeast-2"))
}

func TestListSubscriptionsFollowsNextToken(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("nextToken") {
		case "":
			writeJSON(w, http.StatusOK, `{
				"subscriptions":[{"subscriptionId":"s1","principal":{"group":"g1"},"currentSubscription":{"type":"Q_LITE"}}],
				"nextToken":"page 2"
			}`)
		case "page 2":
			writeJSON(w, http.StatusOK, `{
				"subscriptions":[
					{"subscriptionId":"s2","principal":{"USER":"u1"},"type":"Q_BUSINESS"},
					{"subscriptionId":"s3","principal":"not-an-object"}
				]
			}`)
		default:
			http.Error(w, "unexpected token", http.StatusBadRequest)
		}
	})

	subs, err := client.ListSubscriptions(context.Background(), testCreds, "us-east-1", "app1")
	require.NoError(t, err)
	require.Len(t, subs, 3)

	assert.Equal(t, domain.Subscription{ID: "s1", Principal: domain.GroupPrincipal("g1"), Type: domain.SubscriptionTypeQLite}, subs[0])
	assert.Equal(t, domain.Subscription{ID: "s2", Principal: domain.UserPrincipal("u1"), Type: domain.SubscriptionTypeQBusiness}, subs[1])
	assert.True(t, subs[2].Principal.IsZero())

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Query)
	query, err := url.ParseQuery(reqs[1].Query)
	require.NoError(t, err)
	assert.Equal(t, "page 2", query.Get("nextToken"))
	assert.Equal(t, http.MethodGet, reqs[0].Method)
}

func TestListSubscriptionsWithoutCollectionIsNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	_, err := client.ListSubscriptions(context.Background(), testCreds, "us-east-1", "app1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, msgNoSubscriptions, err.Error())
}

func TestListSubscriptionsFailsOnRepeatedToken(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"subscriptions":[{"subscriptionId":"s1","principal":{"user":"u1"}}],"nextToken":"same"}`)
	})

	subs, err := client.ListSubscriptions(context.Background(), testCreds, "us-east-1", "app1")
	require.Error(t, err)
	assert.Nil(t, subs)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.False(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "repeated nextToken")
	assert.Len(t, fake.recorded(), 2)
}

func TestListSubscriptionsFailsPastPageLimit(t *testing.T) {
	previous := maxListPages
	maxListPages = 3
	t.Cleanup(func() { maxListPages = previous })

	var served int
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		served++
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"subscriptions":[],"nextToken":"t%d"}`, served))
	})

	_, err := client.ListSubscriptions(context.Background(), testCreds, "us-east-1", "app1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.Contains(t, err.Error(), "exceeded 3 pages")
	assert.Len(t, fake.recorded(), 3)
}

func TestListSubscriptionsEndsOnPageWithoutCollection(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("nextToken") == "" {
			writeJSON(w, http.StatusOK, `{"subscriptions":[{"subscriptionId":"s1","principal":{"group":"g1"}}],"nextToken":"next"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{}`)
	})

	subs, err := client.ListSubscriptions(context.Background(), testCreds, "us-east-1", "app1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "s1", subs[0].ID)
	assert.Len(t, fake.recorded(), 2)
}

func TestDeleteSubscriptionEscapesPath(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	err := client.DeleteSubscription(context.Background(), testCreds, "us-east-1", "app/1", "sub 1")
	require.NoError(t, err)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/applications/app%2F1/subscriptions/sub%201", reqs[0].Path)
	assert.Empty(t, reqs[0].Body)
}

func TestNon2xxIsUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Amzn-Errortype", "AccessDeniedException:http://internal")
		writeJSON(w, http.StatusForbidden, `{"message":"not authorized"}`)
	})

	_, err := client.CreateSubscription(context.Background(), testCreds, "us-east-1", "app1",
		domain.UserPrincipal("u1"), domain.SubscriptionTypeQBusiness)
	require.Error(t, err)

	var upstreamErr *domain.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, http.StatusForbidden, upstreamErr.StatusCode)
	assert.True(t, strings.HasPrefix(err.Error(), "Request failed: 403 Client Error: Forbidden for url: "), err.Error())
	assert.Contains(t, err.Error(), "not authorized")
	assert.Contains(t, err.Error(), "(AccessDeniedException)")
}

func TestTransportFailureIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := NewClient(Config{EndpointTemplate: endpoint, Timeout: time.Second}, nil, nil)
	err := client.DeleteSubscription(context.Background(), testCreds, "us-east-1", "app1", "s1")
	require.Error(t, err)

	var upstreamErr *domain.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Zero(t, upstreamErr.StatusCode)
	assert.True(t, strings.HasPrefix(err.Error(), "Request failed: "), err.Error())
}

func TestCreateSubscriptionRequiresID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	_, err := client.CreateSubscription(context.Background(), testCreds, "us-east-1", "app1",
		domain.UserPrincipal("u1"), domain.SubscriptionTypeQBusiness)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

func TestMalformedResponseIsUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"subscriptions":`)
	})

	_, err := client.ListSubscriptions(context.Background(), testCreds, "us-east-1", "app1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

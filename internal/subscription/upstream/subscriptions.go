package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
)

const (
	opListSubscriptions  = "ListSubscriptions"
	opCreateSubscription = "CreateSubscription"
	opDeleteSubscription = "DeleteSubscription"

	msgNoSubscriptions = "No subscriptions found for the given application"
)

// maxListPages bounds ListSubscriptions against a server that never stops paging.
var maxListPages = 1000

var _ domain.SubscriptionGateway = (*Client)(nil)

type listSubscriptionsResponse struct {
	Subscriptions *[]subscriptionRecord `json:"subscriptions"`
	NextToken     string                `json:"nextToken"`
}

type subscriptionRecord struct {
	SubscriptionID      string          `json:"subscriptionId"`
	Principal           json.RawMessage `json:"principal"`
	Type                string          `json:"type"`
	CurrentSubscription *struct {
		Type string `json:"type"`
	} `json:"currentSubscription"`
}

type createSubscriptionRequest struct {
	Principal domain.Principal        `json:"principal"`
	Type      domain.SubscriptionType `json:"type"`
}

type createSubscriptionResponse struct {
	SubscriptionID string `json:"subscriptionId"`
}

func (c *Client) subscriptionsURL(region, applicationID string) string {
	return c.BaseURL(region) + "/applications/" + url.PathEscape(applicationID) + "/subscriptions"
}

// ListSubscriptions follows nextToken until the last page. A repeated token
// or too many pages fails the listing rather than returning part of it.
func (c *Client) ListSubscriptions(ctx context.Context, creds aws.Credentials, region, applicationID string) ([]domain.Subscription, error) {
	base := c.subscriptionsURL(region, applicationID)

	var (
		out   []domain.Subscription
		token string
		seen  = map[string]struct{}{}
	)
	for page := 0; page < maxListPages; page++ {
		endpoint := base
		if token != "" {
			endpoint += "?" + url.Values{"nextToken": []string{token}}.Encode()
		}

		var resp listSubscriptionsResponse
		if err := c.Do(ctx, creds, opListSubscriptions, region, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		if resp.Subscriptions == nil {
			if page == 0 {
				return nil, domain.NewNotFoundError(msgNoSubscriptions)
			}
			token = ""
			break
		}
		for _, record := range *resp.Subscriptions {
			out = append(out, record.toDomain())
		}

		token = strings.TrimSpace(resp.NextToken)
		if token == "" {
			break
		}
		if _, dup := seen[token]; dup {
			return nil, &domain.UpstreamError{
				Operation: opListSubscriptions,
				Err:       fmt.Errorf("repeated nextToken after %d pages", page+1),
			}
		}
		seen[token] = struct{}{}
	}
	if token != "" {
		return nil, &domain.UpstreamError{
			Operation: opListSubscriptions,
			Err:       fmt.Errorf("listing exceeded %d pages", maxListPages),
		}
	}
	return out, nil
}

func (r subscriptionRecord) toDomain() domain.Subscription {
	var principal domain.Principal
	if len(r.Principal) > 0 {
		// Non-object principals are treated as matching nothing.
		if err := json.Unmarshal(r.Principal, &principal); err != nil {
			principal = domain.Principal{}
		}
	}

	kind := r.Type
	if r.CurrentSubscription != nil && r.CurrentSubscription.Type != "" {
		kind = r.CurrentSubscription.Type
	}

	return domain.Subscription{
		ID:        r.SubscriptionID,
		Principal: principal,
		Type:      domain.SubscriptionType(kind),
	}
}

func (c *Client) CreateSubscription(
	ctx context.Context,
	creds aws.Credentials,
	region string,
	applicationID string,
	principal domain.Principal,
	subscriptionType domain.SubscriptionType,
) (string, error) {
	payload := createSubscriptionRequest{Principal: principal, Type: subscriptionType}

	var resp createSubscriptionResponse
	if err := c.Do(ctx, creds, opCreateSubscription, region, http.MethodPost, c.subscriptionsURL(region, applicationID), payload, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.SubscriptionID) == "" {
		return "", &domain.UpstreamError{Err: errors.New("response is missing subscriptionId")}
	}
	return resp.SubscriptionID, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, creds aws.Credentials, region, applicationID, subscriptionID string) error {
	endpoint := c.subscriptionsURL(region, applicationID) + "/" + url.PathEscape(subscriptionID)
	return c.Do(ctx, creds, opDeleteSubscription, region, http.MethodDelete, endpoint, nil, nil)
}

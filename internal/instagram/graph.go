package instagram

import (
	"context"
	"net/url"
)

// Token is an access token with its lifetime in seconds (0 when unknown).
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Page is a Facebook page the user can manage.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// ContainerStatus is the processing state of a media container.
type ContainerStatus struct {
	Code   string `json:"status_code"`
	Status string `json:"status"`
}

// ExchangeLongLived swaps token for a long-lived (~60 day) token. The same
// call extends an existing long-lived token.
func (c *Client) ExchangeLongLived(ctx context.Context, appID, appSecret, token string) (Token, error) {
	var out Token
	err := c.get(ctx, "oauth/access_token", url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {appID},
		"client_secret":     {appSecret},
		"fb_exchange_token": {token},
	}, &out)
	if err != nil {
		return Token{}, err
	}
	if out.AccessToken == "" {
		return Token{}, &APIError{Message: "token exchange returned no access_token"}
	}
	return out, nil
}

// Pages lists the pages the token's user manages, in API order.
func (c *Client) Pages(ctx context.Context, userToken string) ([]Page, error) {
	var out struct {
		Data []Page `json:"data"`
	}
	err := c.get(ctx, "me/accounts", url.Values{
		"fields":       {"id,name,access_token"},
		"access_token": {userToken},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// LinkedAccount returns the Instagram business/creator account linked to a
// page, or "" when there is none.
func (c *Client) LinkedAccount(ctx context.Context, pageID, token string) (string, error) {
	var out struct {
		Account *struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	err := c.get(ctx, url.PathEscape(pageID), url.Values{
		"fields":       {"instagram_business_account"},
		"access_token": {token},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Account == nil {
		return "", nil
	}
	return out.Account.ID, nil
}

// Username looks up the handle of an Instagram account.
func (c *Client) Username(ctx context.Context, accountID, token string) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	err := c.get(ctx, url.PathEscape(accountID), url.Values{
		"fields":       {"username"},
		"access_token": {token},
	}, &out)
	return out.Username, err
}

// CreateContainer stages an image for publication and returns the creation id.
func (c *Client) CreateContainer(ctx context.Context, accountID, token, imageURL, caption string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.postForm(ctx, url.PathEscape(accountID)+"/media", url.Values{
		"image_url":    {imageURL},
		"caption":      {caption},
		"media_type":   {"IMAGE"},
		"access_token": {token},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &APIError{Message: "media container response carried no id"}
	}
	return out.ID, nil
}

// ContainerStatus fetches the processing state of a container.
func (c *Client) ContainerStatus(ctx context.Context, containerID, token string) (ContainerStatus, error) {
	var out ContainerStatus
	err := c.get(ctx, url.PathEscape(containerID), url.Values{
		"fields":       {"status_code,status"},
		"access_token": {token},
	}, &out)
	return out, err
}

// PublishContainer publishes a finished container and returns the media id.
func (c *Client) PublishContainer(ctx context.Context, accountID, token, creationID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.postForm(ctx, url.PathEscape(accountID)+"/media_publish", url.Values{
		"creation_id":  {creationID},
		"access_token": {token},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &APIError{Message: "media publish response carried no id"}
	}
	return out.ID, nil
}


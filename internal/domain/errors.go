package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNotConfigured     = errors.New("instagram app is not configured")
	ErrNotConnected      = errors.New("instagram account is not connected")
	ErrTokenExpired      = errors.New("instagram access token has expired")
	ErrNoLinkedAccount   = errors.New("no facebook page with a linked instagram business account")
	ErrInvalidCredential = errors.New("credential requires access token and user id")
	ErrEmptyCaption      = errors.New("caption is required")
	ErrImageUnreachable  = errors.New("image url is not reachable")
	ErrNotAnImage        = errors.New("image url does not serve an image")
	ErrContainerFailed   = errors.New("instagram could not process the media")
	ErrPublishTimeout    = errors.New("instagram is taking too long to process the media")
	ErrProviderFailure   = errors.New("provider failure")
)

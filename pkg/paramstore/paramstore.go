// Package paramstore resolves secrets from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

var (
	ErrNilAPI       = errors.New("paramstore: api must not be nil")
	ErrNameRequired = errors.New("paramstore: name is required")
	ErrMissingValue = errors.New("paramstore: parameter missing value")
)

// ssmAPI is the subset of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter reads a single decrypted parameter value.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type Client struct {
	api ssmAPI
}

var _ Getter = (*Client)(nil)

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, ErrNilAPI
	}
	return &Client{api: api}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", ErrMissingValue
	}
	return *out.Parameter.Value, nil
}

// Resolve returns value when it is set, otherwise the parameter named by
// param. An empty param with an empty value yields "".
func Resolve(ctx context.Context, getter Getter, value, param string) (string, error) {
	if v := strings.TrimSpace(value); v != "" {
		return v, nil
	}
	if strings.TrimSpace(param) == "" {
		return "", nil
	}
	if getter == nil {
		return "", fmt.Errorf("paramstore: no getter configured for %q", param)
	}
	return getter.GetParameter(ctx, param)
}

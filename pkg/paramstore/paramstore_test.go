package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	out  *ssm.GetParameterOutput
	err  error
	last *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.last = in
	return f.out, f.err
}

func TestGetParameterDecrypts(t *testing.T) {
	api := &fakeAPI{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  aws.String("/support/secret"),
		Value: aws.String("s3cret"),
		Type:  types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /support/secret ")
	require.NoError(t, err)
	require.Equal(t, "s3cret", v)
	require.Equal(t, "/support/secret", aws.ToString(api.last.Name))
	require.True(t, aws.ToBool(api.last.WithDecryption))
}

func TestGetParameterMissingValue(t *testing.T) {
	client, err := New(&fakeAPI{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorIs(t, err, ErrMissingValue)
}

func TestGetParameterAPIError(t *testing.T) {
	client, err := New(&fakeAPI{err: errors.New("boom")})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameterEmptyName(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestNewNilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrNilAPI)
}

func TestResolvePrefersInlineValue(t *testing.T) {
	api := &fakeAPI{err: errors.New("should not be called")}
	client, err := New(api)
	require.NoError(t, err)

	v, err := Resolve(context.Background(), client, "inline", "/param")
	require.NoError(t, err)
	require.Equal(t, "inline", v)
	require.Nil(t, api.last)
}

func TestResolveFallsBackToParameter(t *testing.T) {
	client, err := New(&fakeAPI{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("from-ssm")}}})
	require.NoError(t, err)

	v, err := Resolve(context.Background(), client, "", "/param")
	require.NoError(t, err)
	require.Equal(t, "from-ssm", v)
}

func TestResolveWithoutGetter(t *testing.T) {
	v, err := Resolve(context.Background(), nil, "", "")
	require.NoError(t, err)
	require.Empty(t, v)

	_, err = Resolve(context.Background(), nil, "", "/param")
	require.Error(t, err)
}

package mainconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
)

func TestEndpointOverrideRoutesLocalServices(t *testing.T) {
	resolver := endpointOverride("http://localhost:4566", "us-east-1")

	ep, err := resolver.ResolveEndpoint(sqs.ServiceID, "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566", ep.URL)
	assert.Equal(t, "us-east-1", ep.SigningRegion)

	_, err = resolver.ResolveEndpoint(bedrockruntime.ServiceID, "us-east-1")
	var notFound *aws.EndpointNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-west-2",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "secret",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "us-west-2", awsCfg.Region)
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
	assert.NotNil(t, awsCfg.EndpointResolverWithOptions)
}

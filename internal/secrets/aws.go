package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

// AWSSecretsManagerProvider implements SecretProvider against AWS Secrets
// Manager, selected by --secret-names/--aws-region. This is the cloud
// secret-manager collaborator spec.md §1 treats as external and §6 names
// explicitly; no pack example ships an AWS-backed SecretProvider, so this
// is built fresh against the real aws-sdk-go client the region/names flags
// imply, following the teacher's SecretProvider contract shape.
type AWSSecretsManagerProvider struct {
	client *secretsmanager.SecretsManager
	region string
}

// NewAWSSecretsManagerProvider builds a provider against the given region.
func NewAWSSecretsManagerProvider(region string) (*AWSSecretsManagerProvider, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws-secrets-manager: creating session: %w", err)
	}
	return &AWSSecretsManagerProvider{client: secretsmanager.New(sess), region: region}, nil
}

func (p *AWSSecretsManagerProvider) GetSecret(ctx context.Context, key string) (*Secret, error) {
	out, err := p.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("aws-secrets-manager: get %s: %w", key, err)
	}

	var value []byte
	if out.SecretBinary != nil {
		value = out.SecretBinary
	} else if out.SecretString != nil {
		value = []byte(*out.SecretString)
	} else {
		return nil, &SecretNotFoundError{Key: key, Provider: "aws-secrets-manager"}
	}

	secret := &Secret{
		Key:       key,
		Value:     value,
		Metadata:  map[string]string{"source": "aws-secrets-manager", "region": p.region},
		CreatedAt: time.Now(),
	}
	if out.VersionId != nil {
		secret.Version = *out.VersionId
	}
	if out.CreatedDate != nil {
		secret.CreatedAt = *out.CreatedDate
	}
	return secret, nil
}

func (p *AWSSecretsManagerProvider) GetSecrets(ctx context.Context, keys []string) (map[string]*Secret, error) {
	out := make(map[string]*Secret)
	for _, k := range keys {
		if s, err := p.GetSecret(ctx, k); err == nil {
			out[k] = s
		}
	}
	return out, nil
}

func (p *AWSSecretsManagerProvider) SetSecret(ctx context.Context, key string, value []byte, options *SecretOptions) error {
	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(key),
		SecretBinary: value,
	}
	_, err := p.client.CreateSecretWithContext(ctx, input)
	return err
}

func (p *AWSSecretsManagerProvider) DeleteSecret(ctx context.Context, key string) error {
	_, err := p.client.DeleteSecretWithContext(ctx, &secretsmanager.DeleteSecretInput{
		SecretId: aws.String(key),
	})
	return err
}

func (p *AWSSecretsManagerProvider) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := p.client.ListSecretsPagesWithContext(ctx, &secretsmanager.ListSecretsInput{}, func(page *secretsmanager.ListSecretsOutput, lastPage bool) bool {
		for _, entry := range page.SecretList {
			if entry.Name != nil && (prefix == "" || len(*entry.Name) >= len(prefix) && (*entry.Name)[:len(prefix)] == prefix) {
				keys = append(keys, *entry.Name)
			}
		}
		return true
	})
	return keys, err
}

func (p *AWSSecretsManagerProvider) Health(ctx context.Context) *HealthStatus {
	start := time.Now()
	_, err := p.client.ListSecretsWithContext(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int64(1)})
	var errs []string
	if err != nil {
		errs = append(errs, err.Error())
	}
	return &HealthStatus{
		Healthy:        err == nil,
		Provider:       "aws-secrets-manager",
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
		Errors:         errs,
		Metadata:       map[string]string{"region": p.region},
	}
}

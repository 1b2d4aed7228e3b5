// Package secret resolves named secrets from SSM Parameter Store in
// production and from environment variables in dev mode.
package secret

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// maxBatch is the SSM GetParameters limit.
const maxBatch = 10

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Resolver retrieves secret values by name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// BatchResolver resolves several names in one round trip. Names that do not
// resolve are absent from the result.
type BatchResolver interface {
	GetSecrets(ctx context.Context, names []string) (map[string]string, error)
}

// SSMResolver reads SecureString parameters.
type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// GetSecrets fetches names in batches of ten.
func (r *SSMResolver) GetSecrets(ctx context.Context, names []string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for start := 0; start < len(names); start += maxBatch {
		end := min(start+maxBatch, len(names))
		out, err := r.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          names[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("ssm get parameters: %w", err)
		}
		for _, p := range out.Parameters {
			if p.Name != nil && p.Value != nil {
				values[*p.Name] = *p.Value
			}
		}
	}
	return values, nil
}

// EnvResolver maps "/drivechat/state-secret" to $STATE_SECRET: last path
// segment, uppercased, hyphens to underscores.
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

func paramNameToEnvVar(name string) string {
	last := name[strings.LastIndex(name, "/")+1:]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// CachedResolver memoizes successful lookups for the life of the process,
// so warm Lambda invocations do not call SSM again. Failures are not cached.
type CachedResolver struct {
	next Resolver

	mu     sync.Mutex
	values map[string]string
}

func NewCachedResolver(next Resolver) *CachedResolver {
	return &CachedResolver{next: next, values: make(map[string]string)}
}

// Prefetch loads names into the cache, in one batch when the wrapped
// resolver supports it. Names that fail are left for GetSecret to retry.
func (r *CachedResolver) Prefetch(ctx context.Context, names ...string) error {
	names = slices.DeleteFunc(slices.Clone(names), func(n string) bool { return n == "" })
	batch, ok := r.next.(BatchResolver)
	if !ok {
		for _, n := range names {
			_, _ = r.GetSecret(ctx, n)
		}
		return nil
	}
	values, err := batch.GetSecrets(ctx, names)
	if err != nil {
		return err
	}
	r.mu.Lock()
	for k, v := range values {
		r.values[k] = v
	}
	r.mu.Unlock()
	return nil
}

func (r *CachedResolver) GetSecret(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	v, ok := r.values[name]
	r.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := r.next.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.values[name] = v
	r.mu.Unlock()
	return v, nil
}

package secret

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSMClient struct {
	params     map[string]string
	calls      int
	batchCalls int
}

func (f *fakeSSMClient) GetParameters(_ context.Context, input *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batchCalls++
	if len(input.Names) > maxBatch {
		return nil, fmt.Errorf("too many names: %d", len(input.Names))
	}
	out := &ssm.GetParametersOutput{}
	for _, n := range input.Names {
		if val, ok := f.params[n]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(n), Value: aws.String(val)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, n)
		}
	}
	return out, nil
}

func (f *fakeSSMClient) GetParameter(_ context.Context, input *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	val, ok := f.params[*input.Name]
	if !ok {
		return nil, fmt.Errorf("parameter not found: %s", *input.Name)
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:  input.Name,
			Value: aws.String(val),
		},
	}, nil
}

func TestSSMResolver_GetSecret_Success(t *testing.T) {
	client := &fakeSSMClient{
		params: map[string]string{
			"/drivechat/state-secret": "super-secret-value",
		},
	}
	resolver := NewSSMResolver(client)

	val, err := resolver.GetSecret(context.Background(), "/drivechat/state-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "super-secret-value" {
		t.Fatalf("expected %q, got %q", "super-secret-value", val)
	}
}

func TestSSMResolver_GetSecret_NotFound(t *testing.T) {
	client := &fakeSSMClient{
		params: map[string]string{},
	}
	resolver := NewSSMResolver(client)

	_, err := resolver.GetSecret(context.Background(), "/drivechat/nonexistent")
	if err == nil {
		t.Fatal("expected error for missing parameter, got nil")
	}
}

func TestEnvResolver_GetSecret_Success(t *testing.T) {
	t.Setenv("STATE_SECRET", "env-secret-value")

	resolver := NewEnvResolver()

	val, err := resolver.GetSecret(context.Background(), "/drivechat/state-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "env-secret-value" {
		t.Fatalf("expected %q, got %q", "env-secret-value", val)
	}
}

func TestEnvResolver_GetSecret_NotSet(t *testing.T) {
	os.Unsetenv("NONEXISTENT_SECRET")
	resolver := NewEnvResolver()

	_, err := resolver.GetSecret(context.Background(), "/drivechat/nonexistent-secret")
	if err == nil {
		t.Fatal("expected error for missing env var, got nil")
	}
}

func TestParamNameToEnvVar(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/drivechat/state-secret", "STATE_SECRET"},
		{"/drivechat/google-client-secret", "GOOGLE_CLIENT_SECRET"},
		{"/drivechat/twilio-auth-token", "TWILIO_AUTH_TOKEN"},
		{"/drivechat/genai-api-key", "GENAI_API_KEY"},
	}

	for _, tc := range tests {
		got := paramNameToEnvVar(tc.input)
		if got != tc.expected {
			t.Errorf("paramNameToEnvVar(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestCachedResolver_CachesSuccessOnly(t *testing.T) {
	client := &fakeSSMClient{
		params: map[string]string{"/drivechat/state-secret": "s3cret"},
	}
	resolver := NewCachedResolver(NewSSMResolver(client))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		val, err := resolver.GetSecret(ctx, "/drivechat/state-secret")
		if err != nil || val != "s3cret" {
			t.Fatalf("GetSecret = %q, %v", val, err)
		}
	}
	if client.calls != 1 {
		t.Errorf("expected 1 SSM call, got %d", client.calls)
	}

	resolver.GetSecret(ctx, "/drivechat/missing")
	resolver.GetSecret(ctx, "/drivechat/missing")
	if client.calls != 3 {
		t.Errorf("expected failed lookups to be retried, got %d calls", client.calls)
	}
}

func TestCachedResolver_PrefetchBatches(t *testing.T) {
	client := &fakeSSMClient{params: map[string]string{}}
	var names []string
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("/drivechat/secret-%d", i)
		names = append(names, name)
		if i != 5 {
			client.params[name] = fmt.Sprintf("value-%d", i)
		}
	}
	resolver := NewCachedResolver(NewSSMResolver(client))
	ctx := context.Background()

	if err := resolver.Prefetch(ctx, names...); err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if client.batchCalls != 2 {
		t.Errorf("expected 2 batch calls, got %d", client.batchCalls)
	}

	val, err := resolver.GetSecret(ctx, "/drivechat/secret-11")
	if err != nil || val != "value-11" {
		t.Fatalf("GetSecret = %q, %v", val, err)
	}
	if client.calls != 0 {
		t.Errorf("prefetched secret should not hit SSM, got %d calls", client.calls)
	}

	if _, err := resolver.GetSecret(ctx, "/drivechat/secret-5"); err == nil {
		t.Error("expected missing secret to fail")
	}
	if client.calls != 1 {
		t.Errorf("expected a single fallback lookup, got %d", client.calls)
	}
}

func TestCachedResolver_PrefetchWithoutBatchSupport(t *testing.T) {
	t.Setenv("STATE_SECRET", "from-env")
	resolver := NewCachedResolver(NewEnvResolver())

	if err := resolver.Prefetch(context.Background(), "/drivechat/state-secret", "/drivechat/unset-secret"); err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	val, err := resolver.GetSecret(context.Background(), "/drivechat/state-secret")
	if err != nil || val != "from-env" {
		t.Fatalf("GetSecret = %q, %v", val, err)
	}
}

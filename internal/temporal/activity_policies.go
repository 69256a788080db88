package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ActivityPolicyRecordIntake   = "record_intake"
	ActivityPolicyExtractSchema  = "extract_schema"
	ActivityPolicyMapRecord      = "map_record"
	ActivityPolicyRenderAndStore = "render_and_store"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

var defaultRetryPolicy = temporal.RetryPolicy{
	InitialInterval:    1 * time.Second,
	BackoffCoefficient: 2,
	MaximumInterval:    10 * time.Second,
	MaximumAttempts:    3,
}

var activityPolicies = map[string]activityPolicy{
	ActivityPolicyRecordIntake: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         defaultRetryPolicy,
	},
	// The model client owns its retry budget.
	ActivityPolicyExtractSchema: {
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyMapRecord: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         defaultRetryPolicy,
	},
	ActivityPolicyRenderAndStore: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         defaultRetryPolicy,
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}

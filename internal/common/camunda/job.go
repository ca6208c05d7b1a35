package camunda

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// DecodeVariables validates the job variables against schema and decodes
// them into out. Any failure is an INVALID_INPUT error carrying field errors.
func DecodeVariables(job entities.Job, schema *validation.Schema, out interface{}) error {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return errors.NewInvalidInputError(fmt.Sprintf("failed to parse variables: %v", err))
	}

	if schema != nil {
		result, err := schema.Validate(vars)
		if err != nil {
			return errors.NewInvalidInputError(err.Error())
		}
		if !result.Valid {
			stdErr := errors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
			stdErr.FieldErrors = result.FieldErrors()
			return stdErr
		}
	}

	raw, err := json.Marshal(vars)
	if err != nil {
		return errors.NewInvalidInputError(fmt.Sprintf("failed to encode variables: %v", err))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewInvalidInputError(fmt.Sprintf("failed to decode variables: %v", err))
	}
	return nil
}

// CompleteJob completes job with output encoded as process variables,
// retrying transient gateway errors.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var vars map[string]interface{}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return fmt.Errorf("failed to convert output: %w", err)
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromMap(vars)
	if err != nil {
		return fmt.Errorf("failed to create complete command: %w", err)
	}
	return SendWithRetry(ctx, "complete job", func(ctx context.Context) error {
		_, err := cmd.Send(ctx)
		return err
	})
}

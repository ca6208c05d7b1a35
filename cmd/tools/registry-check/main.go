// Command registry-check validates an activity registry before it is shipped
// or loaded as an operator override.
package main

import (
	"flag"
	"fmt"
	"os"

	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/validation"
	"insurance-checkout/pkg/registry"
)

var knownCodes = map[string]bool{
	string(errors.ErrCodeValidationFailed):       true,
	string(errors.ErrCodeTransportFailed):        true,
	string(errors.ErrCodePaymentRejected):        true,
	string(errors.ErrCodePaymentTerminalFailure): true,
	string(errors.ErrCodePartialFailure):         true,
	string(errors.ErrCodeDocumentUploadFailed):   true,
	string(errors.ErrCodeInvalidState):           true,
	string(errors.ErrCodeSessionAbandoned):       true,
	string(errors.ErrCodeInvalidInput):           true,
}

func main() {
	path := flag.String("path", "", "registry file to check; the embedded registry when empty")
	flag.Parse()

	var (
		reg *registry.ActivityRegistry
		err error
	)
	if *path == "" {
		reg, err = registry.Default()
	} else {
		reg, err = registry.LoadRegistry(*path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load registry: %v\n", err)
		os.Exit(1)
	}

	problems := check(reg)
	for _, p := range problems {
		fmt.Fprintln(os.Stderr, p)
	}
	if len(problems) > 0 {
		os.Exit(1)
	}
	fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
}

// check returns one line per problem found.
func check(reg *registry.ActivityRegistry) []string {
	var problems []string
	if len(reg.Activities) == 0 {
		return []string{"registry contains no activities"}
	}

	ids := make(map[string]bool)
	for _, a := range reg.Activities {
		if a.ID == "" {
			problems = append(problems, fmt.Sprintf("activity %s: missing id", a.TaskType))
		} else if ids[a.ID] {
			problems = append(problems, fmt.Sprintf("activity %s: duplicate id", a.ID))
		}
		ids[a.ID] = true

		if a.DisplayName == "" {
			problems = append(problems, fmt.Sprintf("activity %s: missing displayName", a.ID))
		}
		if a.TimeoutDuration(0) == 0 {
			problems = append(problems, fmt.Sprintf("activity %s: invalid timeout %q", a.ID, a.Timeout))
		}
		if a.Retries < 0 {
			problems = append(problems, fmt.Sprintf("activity %s: negative retries", a.ID))
		}
		for _, code := range a.ErrorCodes {
			if !knownCodes[code] {
				problems = append(problems, fmt.Sprintf("activity %s: unknown error code %s", a.ID, code))
			}
		}
		if a.InputSchema == nil {
			problems = append(problems, fmt.Sprintf("activity %s: missing inputSchema", a.ID))
		} else if _, err := validation.Compile(a.InputSchema); err != nil {
			problems = append(problems, fmt.Sprintf("activity %s: inputSchema: %v", a.ID, err))
		}
		if a.OutputSchema != nil {
			if _, err := validation.Compile(a.OutputSchema); err != nil {
				problems = append(problems, fmt.Sprintf("activity %s: outputSchema: %v", a.ID, err))
			}
		}
	}
	return problems
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package config

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/awsx"
)

// SSMEnvsPathVar names the environment variable holding the parameter path.
const SSMEnvsPathVar = "SSM_ENVS_PATH"

// NewSSMClient creates a Parameter Store client. A non-empty endpoint
// overrides the service URL.
func NewSSMClient(cfg aws.Config, endpoint string) *ssm.Client {
	return ssm.NewFromConfig(cfg, func(o *ssm.Options) {
		o.BaseEndpoint = awsx.Endpoint(endpoint)
	})
}

// LoadSSMEnvs exports every parameter under path through setenv, named by the
// parameter name with path removed. A nil setenv uses os.Setenv. It returns
// the number of variables set.
func LoadSSMEnvs(ctx context.Context, client ssm.GetParametersByPathAPIClient, path string, setenv func(key, value string) error) (int, error) {
	if setenv == nil {
		setenv = os.Setenv
	}

	paginator := ssm.NewGetParametersByPathPaginator(client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})

	set := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return set, oops.Code("SSM_LOAD_FAILED").With("path", path).Wrap(err)
		}
		for _, p := range page.Parameters {
			key := strings.TrimPrefix(strings.TrimPrefix(aws.ToString(p.Name), path), "/")
			if key == "" {
				continue
			}
			if err := setenv(key, aws.ToString(p.Value)); err != nil {
				return set, oops.Code("SSM_LOAD_FAILED").With("parameter", key).Wrap(err)
			}
			set++
		}
	}
	return set, nil
}

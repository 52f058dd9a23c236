// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package awsx loads shared AWS SDK configuration.
package awsx

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/samber/oops"
)

var loadDefaultConfig = config.LoadDefaultConfig

// Options select the credentials profile. Empty fields use SDK defaults.
type Options struct {
	Profile string
	Region  string
}

// LoadConfig resolves AWS configuration from the environment, shared config
// files, and opts.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	var fns []func(*config.LoadOptions) error
	if opts.Profile != "" {
		fns = append(fns, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		fns = append(fns, config.WithRegion(opts.Region))
	}

	cfg, err := loadDefaultConfig(ctx, fns...)
	if err != nil {
		return aws.Config{}, oops.Code("AWS_CONFIG_FAILED").
			With("profile", opts.Profile).
			Wrap(err)
	}
	return cfg, nil
}

// Endpoint returns a pointer for a non-empty endpoint override.
func Endpoint(url string) *string {
	if url == "" {
		return nil
	}
	return aws.String(url)
}

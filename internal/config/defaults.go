package config

import "time"

// Central place for application-wide timing constants and other defaults.

const (
	// MinTimeBetweenFetches rate-limits calls to the Rituals cloud.
	MinTimeBetweenFetches = 5 * time.Minute

	// Host loop cadence
	UpdateInterval     = 30 * time.Second // refresh every entity
	SetupRetryInterval = 60 * time.Second // retry setup while no hub is known

	// Operation time-outs
	RitualsTimeout = 30 * time.Second
	MQTTTimeout    = 5 * time.Second

	// Force a publish even without changes
	DefaultForceUpdateInterval = 30 * time.Minute
)

// Package types holds the shared value types of the executor: node states,
// rate limits, execution statistics, and the CLI configuration.
package types

// Bastion is the request security enforcement core: it evaluates inbound
// requests through IP reputation, rate limiting, anomaly detection and rule
// checks, and keeps an encrypted, queryable audit trail of every decision.
//
// Usage:
//
//	# Start the evaluation API
//	bastion serve --config bastion.yaml
//
//	# Evaluate one request offline against local rules
//	bastion evaluate --rules rules/ --method GET --path /admin --ip 203.0.113.7
//
//	# Query the audit trail
//	bastion audit query --since 24h --risk HIGH --risk CRITICAL --format csv
//
//	# Check rule files
//	bastion rules lint rules/
package main

import "os"

func main() {
	os.Exit(Execute())
}

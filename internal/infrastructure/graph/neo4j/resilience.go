package neo4j

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/resilience"
)

// classifyNeo4jError separates transient graph failures, which are worth a
// retry, from query errors that will fail the same way every time.
func classifyNeo4jError(err error) resilience.Verdict {
	if err == nil {
		return resilience.Verdict{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Verdict{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}
	if neo4j.IsConnectivityError(err) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}
	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) {
		if strings.HasPrefix(neoErr.Code, "Neo.TransientError") {
			return resilience.Verdict{Retry: true, CountFailure: true}
		}
		return resilience.Verdict{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}
	return resilience.Verdict{CountFailure: true}
}

package tpc

import "github.com/VictoriaMetrics/metrics"

// coordinator metrics
var (
	opsCommitted      = metrics.NewCounter(`tpc_coordinator_operations_total{result="commit"}`)
	opsAborted        = metrics.NewCounter(`tpc_coordinator_operations_total{result="abort"}`)
	opsRejected       = metrics.NewCounter(`tpc_coordinator_operations_total{result="rejected"}`)
	voteTimeouts      = metrics.NewCounter(`tpc_coordinator_vote_timeouts_total`)
	decisionRetries   = metrics.NewCounter(`tpc_coordinator_decision_retries_total`)
	operationDuration = metrics.NewSummary(`tpc_coordinator_operation_duration_seconds`)

	readsFromCache     = metrics.NewCounter(`tpc_coordinator_reads_total{source="cache"}`)
	readsFromPrimary   = metrics.NewCounter(`tpc_coordinator_reads_total{source="primary"}`)
	readsFromSecondary = metrics.NewCounter(`tpc_coordinator_reads_total{source="secondary"}`)
	readsFailed        = metrics.NewCounter(`tpc_coordinator_reads_total{source="none"}`)
)

// participant metrics
var (
	votesReady      = metrics.NewCounter(`tpc_participant_votes_total{vote="ready"}`)
	votesAbort      = metrics.NewCounter(`tpc_participant_votes_total{vote="abort"}`)
	commitsApplied  = metrics.NewCounter(`tpc_participant_commits_total`)
	abortsLogged    = metrics.NewCounter(`tpc_participant_aborts_total`)
	commitsIgnored  = metrics.NewCounter(`tpc_participant_ignored_commits_total`)
	replayedEntries = metrics.NewCounter(`tpc_participant_replayed_operations_total`)
)

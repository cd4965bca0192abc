package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_store_remote_errors_total",
		Help: "Remote table calls that failed, by store operation.",
	}, []string{"op"})

	feedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_store_feed_events_total",
		Help: "Change-feed events merged into the store, by type and outcome.",
	}, []string{"type", "outcome"})

	leadsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_store_leads_added_total",
		Help: "Leads prepended to the collection by Add or AddBulk.",
	})
)

// Feed merge outcomes.
const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeMissing   = "missing"
	outcomeIgnored   = "ignored"
	outcomeStale     = "stale"
)

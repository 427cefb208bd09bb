package tiers

import (
	"math"
	"time"
)

// Fitness weights: f = α·log(access_count+1) + β·recency(last_access) +
// γ·chain_depth(v). Entries scoring below theta are demoted from Cold to
// Deep.
const (
	fitnessAlpha = 1.0
	fitnessBeta  = 1.0
	fitnessGamma = 0.1
	fitnessTheta = 0.5

	// recencyHalfLife is the decay constant for the recency term: a value
	// touched this instant scores 1, one half-life ago scores 0.5, and it
	// decays smoothly rather than as a hard cutoff — consistent with the
	// log-scaled access_count term it sits alongside.
	recencyHalfLife = 60 * time.Second
)

func fitness(e *entry, chainDepth int) float64 {
	recency := recencyScore(e.lastAccess)
	return fitnessAlpha*math.Log(float64(e.accessCount)+1) +
		fitnessBeta*recency +
		fitnessGamma*float64(chainDepth)
}

func recencyScore(lastAccessNanos int64) float64 {
	age := time.Duration(nowNanos() - lastAccessNanos)
	if age < 0 {
		age = 0
	}
	return math.Exp(-float64(age) / float64(recencyHalfLife) * math.Ln2)
}

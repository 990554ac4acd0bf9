package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SnapshotKey returns the store key for a candidate's resumable snapshot of
// one assessment. There is exactly one entry per (candidate, assessment).
func (r *CacheKeyStruct) SnapshotKey(candidateID, assessmentID string) string {
	return fmt.Sprintf("proctor:candidate:%s:assessment:%s:snapshot", candidateID, assessmentID)
}

// SnapshotPattern matches every snapshot key of a candidate.
func (r *CacheKeyStruct) SnapshotPattern(candidateID string) string {
	return fmt.Sprintf("proctor:candidate:%s:assessment:*:snapshot", candidateID)
}

var CacheKey = NewCacheKeyStruct()

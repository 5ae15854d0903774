// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package model

// Canonical stored forms for persisted enums. Exactly one lower-case
// spelling is accepted at every data boundary; anything else is rejected
// rather than case-mapped on read.

// Image processing status state machine:
// pending -> processing -> {completed, failed}.
const (
	ImageStatusPending    = "pending"
	ImageStatusProcessing = "processing"
	ImageStatusCompleted  = "completed"
	ImageStatusFailed     = "failed"
)

func IsValidImageStatus(s string) bool {
	switch s {
	case ImageStatusPending, ImageStatusProcessing, ImageStatusCompleted, ImageStatusFailed:
		return true
	}
	return false
}

// Detector classes. The deer classes carry age/sex structure from the
// detector; `other` is the inventory bucket for non-deer results and never
// enters Re-ID.
const (
	ClassDoe    = "doe"
	ClassFawn   = "fawn"
	ClassMature = "mature"
	ClassMid    = "mid"
	ClassYoung  = "young"
	ClassOther  = "other"
)

// DeerClassList is the closed set of classes eligible for Re-ID, in stable
// order for IN queries.
var DeerClassList = []string{ClassDoe, ClassFawn, ClassMature, ClassMid, ClassYoung}

// DeerClasses indexes DeerClassList for membership tests.
var DeerClasses = func() map[string]struct{} {
	m := make(map[string]struct{}, len(DeerClassList))
	for _, c := range DeerClassList {
		m[c] = struct{}{}
	}
	return m
}()

func IsDeerClass(class string) bool {
	_, ok := DeerClasses[class]
	return ok
}

func IsValidClass(class string) bool {
	return IsDeerClass(class) || class == ClassOther
}

// Profile sex values.
const (
	SexBuck    = "buck"
	SexDoe     = "doe"
	SexFawn    = "fawn"
	SexUnknown = "unknown"
)

// DeriveSex maps a detector class to the profile sex recorded on a newly
// created Deer. Antlered age classes imply buck.
func DeriveSex(class string) string {
	switch class {
	case ClassMature, ClassMid, ClassYoung:
		return SexBuck
	case ClassDoe:
		return SexDoe
	case ClassFawn:
		return SexFawn
	default:
		return SexUnknown
	}
}

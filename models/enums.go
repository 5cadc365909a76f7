package models

import (
	"strings"
)

type OmnilinkStatus string

const (
	OmnilinkStatusCurrent OmnilinkStatus = "current"
	OmnilinkStatusLapsed  OmnilinkStatus = "lapsed"
)

func (s OmnilinkStatus) IsValid() bool {
	return s == OmnilinkStatusCurrent || s == OmnilinkStatusLapsed
}

type IndicationStatus string

const (
	IndicationStatusIndicated    IndicationStatus = "indicated"
	IndicationStatusRectified    IndicationStatus = "rectified"
	IndicationStatusNotIndicated IndicationStatus = "not-indicated"
)

func (s IndicationStatus) IsValid() bool {
	switch s {
	case IndicationStatusIndicated, IndicationStatusRectified, IndicationStatusNotIndicated:
		return true
	}
	return false
}

var indicationStatusLabels = map[string]IndicationStatus{
	"indicated":     IndicationStatusIndicated,
	"indicado":      IndicationStatusIndicated,
	"rectified":     IndicationStatusRectified,
	"retificado":    IndicationStatusRectified,
	"not-indicated": IndicationStatusNotIndicated,
	"not indicated": IndicationStatusNotIndicated,
	"nao indicado":  IndicationStatusNotIndicated,
	"não indicado":  IndicationStatusNotIndicated,
	"nao-indicado":  IndicationStatusNotIndicated,
	"não-indicado":  IndicationStatusNotIndicated,
}

// ParseIndicationStatus accepts the stored values and their Portuguese labels; unknown yields nil.
func ParseIndicationStatus(s string) *IndicationStatus {
	status, ok := indicationStatusLabels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return nil
	}
	return &status
}

type PendingStatus string

const (
	PendingStatusPending PendingStatus = "pending"
)

type ResolutionChoice string

const (
	ResolutionKeepAuthoritative ResolutionChoice = "keep-authoritative"
	ResolutionKeepStaged        ResolutionChoice = "keep-staged"
)

func (c ResolutionChoice) IsValid() bool {
	return c == ResolutionKeepAuthoritative || c == ResolutionKeepStaged
}

type ResolutionStatus string

const (
	ResolutionStatusOpen      ResolutionStatus = "open"
	ResolutionStatusCompleted ResolutionStatus = "completed"
	ResolutionStatusAborted   ResolutionStatus = "aborted"
)

type UserRole string

const (
	UserRoleAdmin    UserRole = "A"
	UserRoleOperator UserRole = "O"
)

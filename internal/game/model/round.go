package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus é o estado de uma rodada. Os únicos valores válidos são as
// constantes abaixo; ParseRoundStatus rejeita qualquer outro texto vindo do banco.
type RoundStatus string

const (
	RoundWaiting  RoundStatus = "waiting"
	RoundRunning  RoundStatus = "running"
	RoundSettling RoundStatus = "settling"
	RoundFinished RoundStatus = "finished"
)

// ParseRoundStatus converte o valor persistido em RoundStatus
func ParseRoundStatus(s string) (RoundStatus, error) {
	switch st := RoundStatus(s); st {
	case RoundWaiting, RoundRunning, RoundSettling, RoundFinished:
		return st, nil
	}
	return "", fmt.Errorf("unknown round status %q", s)
}

// Active indica se a rodada ainda aceita apostas (waiting ou running)
func (s RoundStatus) Active() bool {
	switch s {
	case RoundWaiting, RoundRunning:
		return true
	case RoundSettling, RoundFinished:
		return false
	}
	return false
}

// CanTransition valida as transições permitidas da máquina de estados:
// waiting -> running -> settling -> finished
func (s RoundStatus) CanTransition(to RoundStatus) bool {
	switch s {
	case RoundWaiting:
		return to == RoundRunning
	case RoundRunning:
		return to == RoundSettling
	case RoundSettling:
		return to == RoundFinished
	case RoundFinished:
		return false
	}
	return false
}

// Round é uma rodada do jogo de zonas de eliminação
type Round struct {
	ID        string
	Status    RoundStatus
	StartTime time.Time
	EndTime   time.Time
	SafeZones []int // nil até o sorteio
	TotalBets decimal.Decimal
	IsValid   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueTransition retorna o próximo status exigido pelo relógio, se houver.
// Uma rodada em settling sempre está "vencida": a liquidação precisa ser retomada.
func (r Round) DueTransition(now time.Time) (RoundStatus, bool) {
	switch r.Status {
	case RoundWaiting:
		if !now.Before(r.StartTime) {
			return RoundRunning, true
		}
	case RoundRunning:
		if !now.Before(r.EndTime) {
			return RoundSettling, true
		}
	case RoundSettling:
		return RoundSettling, true
	case RoundFinished:
	}
	return r.Status, false
}

// IsSafe indica se a zona foi sorteada como segura
func (r Round) IsSafe(zone int) bool {
	for _, z := range r.SafeZones {
		if z == zone {
			return true
		}
	}
	return false
}

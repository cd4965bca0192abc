package followup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/theme"
)

var prompt = model.FollowUpPrompt{LeadID: "l1", LeadName: "Asha", Status: model.StatusDiscussion}

func TestDefaultTask(t *testing.T) {
	assert.Equal(t, "Follow up with Asha (Discussion)", DefaultTask(prompt))
}

func TestParseDue(t *testing.T) {
	got, err := ParseDue("2024-06-02", "14:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 2, 14, 30, 0, 0, time.UTC), got)

	got, err = ParseDue(" 2024-06-02 ", "", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Hour())

	_, err = ParseDue("02/06/2024", "10:00", time.UTC)
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateDate("2024-06-02"))
	assert.Error(t, validateDate("tomorrow"))
	assert.NoError(t, validateClock(""))
	assert.NoError(t, validateClock("09:15"))
	assert.Error(t, validateClock("25:00"))
	assert.Error(t, validateRequired("Task")("  "))
}

func TestStartPrefillsBindings(t *testing.T) {
	m := New(theme.New(theme.Default), 80, 24)
	assert.False(t, m.Active())

	now := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	m.Start(prompt, now)

	assert.True(t, m.Active())
	assert.Equal(t, "Follow up with Asha (Discussion)", m.fb.task)
	assert.Equal(t, "2024-06-02", m.fb.dueDate)
	assert.Contains(t, m.View(), "Schedule follow-up: Asha (Discussion)")
}

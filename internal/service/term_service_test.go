package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
)

func TestCreateTermValidatesDateOrder(t *testing.T) {
	svc := NewTermService(newMockTermRepo(), newMockSectionRepo(), nil, nil)
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), CreateTermRequest{
		Name: "2025 Fall", StartDate: start, EndDate: start.AddDate(0, -1, 0),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	term, err := svc.Create(context.Background(), CreateTermRequest{
		Name: "2025 Fall", StartDate: start, EndDate: start.AddDate(0, 4, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "2025 Fall", term.Name)
}

func TestUpdateTermRechecksMergedDates(t *testing.T) {
	repo := newMockTermRepo()
	svc := NewTermService(repo, newMockSectionRepo(), nil, nil)
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	term, err := svc.Create(context.Background(), CreateTermRequest{
		Name: "2025 Fall", StartDate: start, EndDate: start.AddDate(0, 4, 0),
	})
	require.NoError(t, err)

	// pushing the start beyond the unchanged end must fail
	badStart := start.AddDate(0, 6, 0)
	_, err = svc.Update(context.Background(), term.ID, UpdateTermRequest{StartDate: &badStart})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestDeleteTermRejectedWhileSectionsActive(t *testing.T) {
	repo := newMockTermRepo()
	sections := newMockSectionRepo()
	svc := NewTermService(repo, sections, nil, nil)
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	term, err := svc.Create(context.Background(), CreateTermRequest{
		Name: "2026 Spring", StartDate: start, EndDate: start.AddDate(0, 4, 0),
	})
	require.NoError(t, err)

	sections.sections["sec-1"] = models.Section{ID: "sec-1", SectionCode: "A", TermID: term.ID}

	err = svc.Delete(context.Background(), term.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.False(t, repo.terms[term.ID].IsDeleted)
}

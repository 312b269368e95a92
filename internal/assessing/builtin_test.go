package assessing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/auto-apply/internal/application"
)

func newTestContext(t *testing.T) *application.Context {
	t.Helper()
	appCtx := application.NewContext("https://jobs.example.com/roles/platform-engineer")
	appCtx.CVPath = "/tmp/cv.pdf"
	appCtx.CoverLetter = "Dear hiring team"
	appCtx.CoverLetterPath = "/tmp/cover.txt"

	profile, err := application.DecodeProfile(map[string]any{
		"meta": map[string]any{
			"location":    "London, UK",
			"postal_code": "N1 9GU",
			"contact":     map[string]any{"phone": "+44 20 7946 0000", "email": "ada@example.com"},
			"work_authorization": map[string]any{
				"uk": "Yes",
				"eu": "No",
			},
		},
	})
	require.NoError(t, err)
	appCtx.Profile = profile
	return appCtx
}

func TestHeuristicsRightToWorkSelect(t *testing.T) {
	appCtx := newTestContext(t)
	field := &application.FieldDescriptor{
		ID:       "rtw",
		Label:    "Do you have the right to work in the UK?",
		Kind:     application.KindSelect,
		Options:  []string{"Yes", "No"},
		Required: true,
	}

	res, err := NewHeuristics(nil).Apply(context.Background(), appCtx, []*application.FieldDescriptor{field})
	require.NoError(t, err)
	assert.Equal(t, Result{Initial: 1, Answered: 1, Left: 0}, res)

	record := appCtx.Answers["rtw"]
	require.NotNil(t, record)
	assert.Equal(t, "Yes", record.Answer)
	assert.Equal(t, application.SourceWorkAuthorization, record.Source)
	assert.Equal(t, application.ApproverHeuristics, record.ApprovedBy)
}

func TestHeuristicsRules(t *testing.T) {
	tests := []struct {
		name   string
		field  *application.FieldDescriptor
		answer string
		source application.Source
	}{
		{
			name:   "resume upload",
			field:  &application.FieldDescriptor{ID: "f1", Label: "Upload your CV", Kind: application.KindFile},
			answer: "/tmp/cv.pdf",
			source: application.SourceAutoResume,
		},
		{
			name:   "file attachment",
			field:  &application.FieldDescriptor{ID: "f2", Label: "Attachment", Kind: application.KindFile},
			answer: "/tmp/cv.pdf",
			source: application.SourceAutoResume,
		},
		{
			name:   "cover letter text",
			field:  &application.FieldDescriptor{ID: "f3", Label: "Cover letter", Kind: application.KindTextarea},
			answer: "Dear hiring team",
			source: application.SourceAutoCoverLetter,
		},
		{
			name:   "cover letter file",
			field:  &application.FieldDescriptor{ID: "f4", Label: "Cover letter", Kind: application.KindFile},
			answer: "/tmp/cover.txt",
			source: application.SourceAutoCoverLetter,
		},
		{
			name:   "phone",
			field:  &application.FieldDescriptor{ID: "f5", Label: "Phone number", Kind: application.KindText},
			answer: "+44 20 7946 0000",
			source: application.SourceProfilePhone,
		},
		{
			name:   "email from name attribute",
			field:  &application.FieldDescriptor{ID: "f6", NameAttr: "Email", Kind: application.KindText},
			answer: "ada@example.com",
			source: application.SourceProfileEmail,
		},
		{
			name:   "city",
			field:  &application.FieldDescriptor{ID: "f7", Question: "Which town do you live in?", Kind: application.KindText},
			answer: "London",
			source: application.SourceProfileLocation,
		},
		{
			name:   "country free text",
			field:  &application.FieldDescriptor{ID: "f8", Label: "Country", Kind: application.KindText},
			answer: "United Kingdom",
			source: application.SourceProfileLocation,
		},
		{
			name: "country option by substring",
			field: &application.FieldDescriptor{
				ID: "f9", Label: "Country of residence", Kind: application.KindSelect,
				Options: []string{"France", "United Kingdom of Great Britain", "Germany"},
			},
			answer: "United Kingdom of Great Britain",
			source: application.SourceProfileLocation,
		},
		{
			name:   "postcode",
			field:  &application.FieldDescriptor{ID: "f10", Label: "Postcode", Kind: application.KindText},
			answer: "N1 9GU",
			source: application.SourceProfileLocation,
		},
		{
			name:   "address",
			field:  &application.FieldDescriptor{ID: "f11", Label: "Home address", Kind: application.KindText},
			answer: "London, UK",
			source: application.SourceProfileLocation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appCtx := newTestContext(t)
			_, err := NewHeuristics(nil).Apply(context.Background(), appCtx, []*application.FieldDescriptor{tt.field})
			require.NoError(t, err)

			record := appCtx.Answers[tt.field.ID]
			require.NotNil(t, record)
			assert.Equal(t, tt.answer, record.Answer)
			assert.Equal(t, tt.source, record.Source)
		})
	}
}

func TestHeuristicsLeavesFieldsWithoutValue(t *testing.T) {
	appCtx := newTestContext(t)
	appCtx.Profile.Meta.Contact.Phone = ""

	fields := []*application.FieldDescriptor{
		{ID: "phone", Label: "Mobile phone", Kind: application.KindText},
		{ID: "country", Label: "Country", Kind: application.KindSelect, Options: []string{"France", "Spain"}},
		{ID: "salary", Label: "Expected salary", Kind: application.KindText},
	}

	res, err := NewHeuristics(nil).Apply(context.Background(), appCtx, fields)
	require.NoError(t, err)
	assert.Equal(t, Result{Initial: 3, Answered: 0, Left: 3}, res)
	assert.Empty(t, appCtx.Answers)
}

func TestHeuristicsIdempotent(t *testing.T) {
	appCtx := newTestContext(t)
	fields := []*application.FieldDescriptor{
		{ID: "email", Label: "Email", Kind: application.KindText},
		{ID: "salary", Label: "Expected salary", Kind: application.KindText},
	}

	step := NewHeuristics(nil)
	_, err := step.Apply(context.Background(), appCtx, fields)
	require.NoError(t, err)
	first := *appCtx.Answers["email"]

	res, err := step.Apply(context.Background(), appCtx, fields)
	require.NoError(t, err)

	assert.Equal(t, Result{Initial: 1, Answered: 0, Left: 1}, res)
	assert.Len(t, appCtx.Answers, 1)
	assert.Equal(t, first, *appCtx.Answers["email"])
}

func TestHeuristicsDoesNotOverrideExistingAnswers(t *testing.T) {
	appCtx := newTestContext(t)
	require.NoError(t, appCtx.RecordAnswer(&application.AnswerRecord{
		FieldID: "email", Answer: "other@example.com", Source: application.SourceUserProvided,
	}))

	_, err := NewHeuristics(nil).Apply(context.Background(), appCtx, []*application.FieldDescriptor{
		{ID: "email", Label: "Email", Kind: application.KindText},
	})
	require.NoError(t, err)
	assert.Equal(t, "other@example.com", appCtx.Answers["email"].Answer)
}

func TestWorkAuthorizationRegion(t *testing.T) {
	prefs := map[string]string{"UK": "Yes", "eu": "Requires sponsorship", "us": "No"}

	assert.Equal(t, "Yes", workAuthorization(prefs, "United Kingdom"))
	assert.Equal(t, "No", workAuthorization(prefs, "United States"))
	assert.Equal(t, "Requires sponsorship", workAuthorization(prefs, "Germany"))
	assert.Equal(t, "Yes", workAuthorization(prefs, "Japan"))
	assert.Equal(t, "Requires sponsorship", workAuthorization(map[string]string{"eu": "Requires sponsorship"}, "Japan"))
	assert.Empty(t, workAuthorization(nil, "United Kingdom"))
}

func TestDeriveLocation(t *testing.T) {
	loc := deriveLocation(application.ProfileMeta{Location: "Berlin / Germany", PostalCode: " 10115 "})
	assert.Equal(t, "Berlin", loc.City)
	assert.Equal(t, "Germany", loc.CountryFull)
	assert.Equal(t, "10115", loc.Postal)

	loc = deriveLocation(application.ProfileMeta{Location: "Austin, TX, usa"})
	assert.Equal(t, "Austin", loc.City)
	assert.Equal(t, "usa", loc.Country)
	assert.Equal(t, "United States", loc.CountryFull)

	assert.Equal(t, location{}, deriveLocation(application.ProfileMeta{}))
}

func TestMatchOption(t *testing.T) {
	field := &application.FieldDescriptor{Options: []string{"Yes, I have the right to work", "No"}}

	got, ok := matchOption(field, "no")
	assert.True(t, ok)
	assert.Equal(t, "No", got)

	got, ok = matchOption(field, "Yes")
	assert.True(t, ok)
	assert.Equal(t, "Yes, I have the right to work", got)

	_, ok = matchOption(&application.FieldDescriptor{Options: []string{"Spain"}}, "United Kingdom")
	assert.False(t, ok)

	got, ok = matchOption(&application.FieldDescriptor{}, "United Kingdom")
	assert.True(t, ok)
	assert.Equal(t, "United Kingdom", got)

	_, ok = matchOption(field, "  ")
	assert.False(t, ok)
}

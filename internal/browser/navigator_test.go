package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/auto-apply/internal/application"
)

const landingHTML = `<html><body>
<div id="cookie"><button id="onetrust-accept-btn-handler">Accept</button></div>
<h1>Backend Engineer</h1>
<a href="/jobs/backend/apply" id="apply-link" class="btn btn-primary">Apply now</a>
<a href="/about">About us</a>
</body></html>`

const formHTML = `<html><body>
<form id="application">
  <label for="first">First name</label>
  <input id="first" name="first_name" required>
  <span id="email-label">Email address</span>
  <input type="email" name="email" aria-labelledby="email-label" required>
  <input type="hidden" name="csrf" value="x">
  <label><input type="checkbox" name="consent"> I agree to the privacy policy</label>
  <select name="experience">
    <option value="">Select...</option>
    <option value="junior">0-2 years</option>
    <option value="senior">5+ years</option>
  </select>
  <fieldset>
    <legend>Do you need sponsorship?</legend>
    <input type="radio" name="sponsorship" id="sp-yes" value="yes" required><label for="sp-yes">Yes</label>
    <input type="radio" name="sponsorship" id="sp-no" value="no"><label for="sp-no">No</label>
  </fieldset>
  <div data-question="Why do you want to join us?"><textarea name="motivation"></textarea></div>
  <label for="cv">Upload CV</label><input type="file" id="cv" name="resume">
  <input name="city" role="combobox" aria-controls="city-list" placeholder="Start typing your city">
  <input type="submit" value="Send">
  <button type="submit" id="submit-btn">Submit application</button>
</form>
</body></html>`

func fieldByID(t *testing.T, fields []*application.FieldDescriptor, id string) *application.FieldDescriptor {
	t.Helper()
	for _, field := range fields {
		if field.ID == id {
			return field
		}
	}
	t.Fatalf("field %q not found", id)
	return nil
}

func TestExtractFields(t *testing.T) {
	fields, err := ExtractFields(formHTML, 1)
	require.NoError(t, err)
	require.Len(t, fields, 8)

	first := fieldByID(t, fields, "first_name")
	assert.Equal(t, "First name", first.Label)
	assert.Equal(t, application.KindText, first.Kind)
	assert.True(t, first.Required)
	assert.Equal(t, `[name="first_name"]`, first.Selector)
	assert.Equal(t, "input", first.InputType)
	assert.Equal(t, 1, first.StepIndex)

	email := fieldByID(t, fields, "email")
	assert.Equal(t, "Email address", email.Label)
	assert.Equal(t, "input:email", email.InputType)

	consent := fieldByID(t, fields, "consent")
	assert.Equal(t, application.KindCheckbox, consent.Kind)
	assert.Equal(t, "I agree to the privacy policy", consent.Label)

	experience := fieldByID(t, fields, "experience")
	assert.Equal(t, application.KindSelect, experience.Kind)
	assert.Equal(t, []string{"Select...", "0-2 years", "5+ years"}, experience.Options)
	assert.Equal(t, "senior", experience.OptionValues["5+ years"])
	assert.Equal(t, "Select...", experience.OptionValues["Select..."])

	motivation := fieldByID(t, fields, "motivation")
	assert.Equal(t, application.KindTextarea, motivation.Kind)
	assert.Equal(t, "Why do you want to join us?", motivation.Label)
	assert.Equal(t, "Why do you want to join us?", motivation.Question)

	cv := fieldByID(t, fields, "resume")
	assert.Equal(t, application.KindFile, cv.Kind)
	assert.Equal(t, "Upload CV", cv.Label)

	city := fieldByID(t, fields, "city")
	assert.Equal(t, application.KindCombobox, city.Kind)
	assert.Equal(t, "Start typing your city", city.Label)
	assert.Equal(t, "city-list", city.Meta("aria-controls"))

	radio := fieldByID(t, fields, "sponsorship_1")
	assert.Equal(t, application.KindRadio, radio.Kind)
	assert.Equal(t, "Do you need sponsorship?", radio.Label)
	assert.Equal(t, []string{"Yes", "No"}, radio.Options)
	assert.Equal(t, map[string]string{"Yes": "yes", "No": "no"}, radio.OptionValues)
	assert.Equal(t, `input[name="sponsorship"][value="no"]`, radio.OptionSelectors["No"])
	assert.True(t, radio.Required)
	assert.Equal(t, "sponsorship", radio.NameAttr)

	for _, field := range fields {
		assert.NoError(t, field.Validate(), field.ID)
	}
}

func TestExtractFieldsDropsUnlocatableInputs(t *testing.T) {
	fields, err := ExtractFields(`<form><input type="text"><input name="email" type="email"></form>`, 0)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "email", fields[0].ID)
}

func TestExtractFieldsWithoutForm(t *testing.T) {
	fields, err := ExtractFields(`<div><input placeholder="Phone number"><input type="button" value="x"></div>`, 0)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "Phone number", fields[0].Label)
	assert.NotEmpty(t, fields[0].ID)
	assert.Equal(t, `[placeholder="Phone number"]`, fields[0].Selector)
}

func TestDetectApplyMethods(t *testing.T) {
	methods, err := DetectApplyMethods(landingHTML + `<button class="x:y">Continue</button>`)
	require.NoError(t, err)
	require.Len(t, methods, 2)

	assert.Equal(t, "Apply now", methods[0].Label)
	assert.Equal(t, `[id="apply-link"]`, methods[0].Selector)
	assert.Equal(t, "a", methods[0].Element)
	assert.Equal(t, "/jobs/backend/apply", methods[0].Href)
	assert.InDelta(t, 0.9, methods[0].Confidence, 1e-9)

	assert.Equal(t, "Continue", methods[1].Label)
	assert.Empty(t, methods[1].Selector)
	assert.InDelta(t, 0.6, methods[1].Confidence, 1e-9)
}

func newTestNavigator(dir string) *Navigator {
	n := NewNavigator(dir, nil)
	n.retryDelay, n.contentWait, n.settle, n.clickSettle, n.dismissPause = 0, 0, 0, 0, 0
	return n
}

func TestNavigateFollowsApplyMethod(t *testing.T) {
	dir := t.TempDir()
	page := &fakePage{
		htmls:    []string{landingHTML, landingHTML, formHTML},
		gotoErrs: []error{errors.New("net::ERR_TIMED_OUT"), nil},
	}
	appCtx := application.NewContext("https://jobs.example.com/backend")

	result, err := newTestNavigator(dir).Navigate(context.Background(), page, appCtx)
	require.NoError(t, err)

	assert.Same(t, result, appCtx.Navigation)
	assert.True(t, result.HasApplyFlow())
	assert.Len(t, result.Fields, 8)
	assert.Equal(t, 2, result.StepCount)
	assert.True(t, result.ApplyMethods[0].Clicked)
	assert.Equal(t, "backend", result.JobName)

	assert.Equal(t, "goto https://jobs.example.com/backend", page.calls[0])
	assert.Equal(t, "goto https://jobs.example.com/backend", page.calls[1])
	assert.Contains(t, page.calls, "click #onetrust-accept-btn-handler")
	assert.Contains(t, page.calls, `click [id="apply-link"]`)

	for _, name := range []string{"backend_step0.html", "backend_step1.html"} {
		_, err := os.Stat(filepath.Join(dir, "output", "dom_snapshots", name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, filepath.Join(dir, "output", "dom_snapshots", "backend_step0.html"), result.SnapshotPath)
}

func TestNavigateWithoutApplyFlow(t *testing.T) {
	page := &fakePage{htmls: []string{`<html><body><p>Closed.</p></body></html>`}}
	appCtx := application.NewContext("https://jobs.example.com/closed")

	result, err := newTestNavigator(t.TempDir()).Navigate(context.Background(), page, appCtx)
	require.NoError(t, err)
	assert.False(t, result.HasApplyFlow())
	assert.Empty(t, result.Fields)
	assert.Equal(t, 1, result.StepCount)
}

func TestNavigateFailsAfterSecondGotoError(t *testing.T) {
	page := &fakePage{gotoErrs: []error{errors.New("dns"), errors.New("dns")}}
	_, err := newTestNavigator(t.TempDir()).Navigate(context.Background(), page, application.NewContext("https://x.test/a"))

	var browserErr *application.BrowserError
	require.True(t, errors.As(err, &browserErr))
}

func TestNavigateNotesFailedApplyClick(t *testing.T) {
	page := &fakePage{
		htmls: []string{landingHTML},
		fail: map[string]error{
			`click [id="apply-link"]`: errors.New("not visible"),
			"click-text Apply now":    errors.New("not visible"),
		},
	}

	result, err := newTestNavigator(t.TempDir()).Navigate(context.Background(), page, application.NewContext("https://x.test/a"))
	require.NoError(t, err)
	require.Len(t, result.ApplyMethods, 1)
	assert.False(t, result.ApplyMethods[0].Clicked)
	assert.Contains(t, result.ApplyMethods[0].Notes, "click failed")
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "accept", want: "'accept'"},
		{in: "don't", want: `"don't"`},
		{in: `it's "ok"`, want: `concat('it', "'", 's "ok"')`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, xpathLiteral(tt.in))
	}

	assert.Equal(t, `//*[@id='city-list']//*[@role="option"][contains(normalize-space(.), 'London')]`, OptionXPath(" London ", "city-list"))
}

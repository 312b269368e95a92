package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/utils"
)

const snapshotDir = "output/dom_snapshots"

var applyKeywords = []string{
	"apply",
	"proceed",
	"get started",
	"submit",
	"continue",
	"next",
	"apply now",
	"apply with",
}

var cookieAcceptSelectors = []string{
	"[data-ui='cookie-consent-accept']",
	"#onetrust-accept-btn-handler",
	"button[aria-label='Accept Cookies']",
}

var cookieAcceptTexts = []string{
	"accept all",
	"accept",
	"agree",
	"allow all",
	"got it",
}

var contentReadySelectors = []string{
	"[data-ui='apply-button']",
	"[data-ui='careers-page-content']",
	"a[href*='/apply']",
}

// metadataAttrs are copied from the element into FieldDescriptor.Metadata when present.
var metadataAttrs = []string{
	"aria-label",
	"aria-haspopup",
	"aria-controls",
	"aria-owns",
	"aria-autocomplete",
	"data-question",
	"data-ui",
	"data-input-type",
	"role",
}

// Navigator loads the job page, finds the ways to apply and the form fields behind them.
type Navigator struct {
	snapshotDir  string
	logger       *zap.Logger
	retryDelay   time.Duration
	contentWait  time.Duration
	settle       time.Duration
	clickSettle  time.Duration
	dismissPause time.Duration
}

func NewNavigator(baseDir string, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		snapshotDir:  filepath.Join(baseDir, snapshotDir),
		logger:       logger,
		retryDelay:   time.Second,
		contentWait:  5 * time.Second,
		settle:       500 * time.Millisecond,
		clickSettle:  2 * time.Second,
		dismissPause: 300 * time.Millisecond,
	}
}

// Navigate maps the application flow of appCtx.JobURL and stores the result on appCtx.
func (n *Navigator) Navigate(ctx context.Context, page Page, appCtx *application.Context) (*application.NavigatorResult, error) {
	jobName := appCtx.JobName()
	n.logger.Info("loading job page", zap.String("url", appCtx.JobURL))

	if err := page.Goto(ctx, appCtx.JobURL); err != nil {
		n.logger.Warn("initial load failed, retrying", zap.Error(err))
		if err := utils.WaitFor(ctx, n.retryDelay); err != nil {
			return nil, err
		}
		if err := page.Goto(ctx, appCtx.JobURL); err != nil {
			return nil, err
		}
	}

	n.dismissBlockingUI(ctx, page)
	n.waitForPrimaryContent(ctx, page)
	if err := utils.WaitFor(ctx, n.settle); err != nil {
		return nil, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := n.writeSnapshot(jobName, 0, html)
	if err != nil {
		return nil, err
	}

	methods, err := DetectApplyMethods(html)
	if err != nil {
		return nil, err
	}
	fields, err := ExtractFields(html, 0)
	if err != nil {
		return nil, err
	}
	n.logger.Info("initial page parsed",
		zap.Int("apply_methods", len(methods)),
		zap.Int("fields", len(fields)),
		zap.String("snapshot", snapshot),
	)

	for idx, method := range methods {
		step := idx + 1
		newFields, err := n.tryApplyMethod(ctx, page, jobName, step, method)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			method.Notes = "click failed: " + err.Error()
			n.logger.Warn("apply method failed", zap.String("label", method.Label), zap.Error(err))
			continue
		}
		if len(newFields) > 0 {
			n.logger.Info("apply method revealed fields", zap.String("label", method.Label), zap.Int("fields", len(newFields)))
			fields = append(fields, newFields...)
			break
		}
	}

	stepCount := 0
	for _, field := range fields {
		if field.StepIndex > stepCount {
			stepCount = field.StepIndex
		}
	}

	result := &application.NavigatorResult{
		JobURL:       appCtx.JobURL,
		JobName:      jobName,
		ApplyMethods: methods,
		Fields:       fields,
		SnapshotPath: snapshot,
		StepCount:    stepCount + 1,
	}
	appCtx.Navigation = result
	return result, nil
}

func (n *Navigator) tryApplyMethod(ctx context.Context, page Page, jobName string, step int, method *application.ApplyMethod) ([]*application.FieldDescriptor, error) {
	if method.Selector == "" && method.Label == "" {
		return nil, nil
	}

	if err := clickApplyMethod(ctx, page, method); err != nil {
		return nil, err
	}
	method.Clicked = true

	if err := utils.WaitFor(ctx, n.clickSettle); err != nil {
		return nil, err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := n.writeSnapshot(jobName, step, html); err != nil {
		return nil, err
	}
	return ExtractFields(html, step)
}

// clickApplyMethod clicks by selector and falls back to the visible label.
func clickApplyMethod(ctx context.Context, page Page, method *application.ApplyMethod) error {
	var err error
	if method.Selector != "" {
		if err = page.Click(ctx, method.Selector); err == nil {
			return nil
		}
	}
	if method.Label != "" && ctx.Err() == nil {
		return page.ClickText(ctx, method.Label)
	}
	return err
}

// dismissBlockingUI clicks away cookie banners that are present in the current DOM. Failures are ignored.
func (n *Navigator) dismissBlockingUI(ctx context.Context, page Page) {
	html, err := page.HTML(ctx)
	if err != nil {
		return
	}
	doc, err := parseHTML(html)
	if err != nil {
		return
	}

	for _, selector := range cookieAcceptSelectors {
		if doc.Find(selector).Length() == 0 {
			continue
		}
		if err := page.Click(ctx, selector); err == nil {
			n.logger.Info("dismissed blocking ui", zap.String("selector", selector))
			_ = utils.WaitFor(ctx, n.dismissPause)
			return
		}
	}

	buttons := doc.Find("button, a")
	for _, text := range cookieAcceptTexts {
		present := false
		buttons.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			present = strings.EqualFold(cleanText(s.Text()), text)
			return !present
		})
		if !present {
			continue
		}
		if err := page.ClickText(ctx, text); err == nil {
			n.logger.Info("dismissed blocking ui", zap.String("text", text))
			_ = utils.WaitFor(ctx, n.dismissPause)
			return
		}
	}
}

func (n *Navigator) waitForPrimaryContent(ctx context.Context, page Page) {
	for _, selector := range contentReadySelectors {
		if err := page.WaitVisible(ctx, selector, n.contentWait); err == nil {
			n.logger.Debug("primary content detected", zap.String("selector", selector))
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
	n.logger.Debug("primary content selectors not found, using raw dom")
}

func (n *Navigator) writeSnapshot(jobName string, step int, html string) (string, error) {
	path := filepath.Join(n.snapshotDir, fmt.Sprintf("%s_step%d.html", jobName, step))
	if err := utils.WriteText(path, html); err != nil {
		return "", fmt.Errorf("write dom snapshot: %w", err)
	}
	n.logger.Debug("dom snapshot written", zap.String("path", path))
	return path, nil
}

// DetectApplyMethods returns the buttons and links whose text contains an apply keyword.
func DetectApplyMethods(html string) ([]*application.ApplyMethod, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}

	methods := []*application.ApplyMethod{}
	doc.Find("button, a").Each(func(_ int, s *goquery.Selection) {
		label := cleanText(s.Text())
		if label == "" {
			return
		}
		lower := strings.ToLower(label)
		if !containsAny(lower, applyKeywords) {
			return
		}

		confidence := 0.6
		if strings.Contains(lower, "apply") {
			confidence = 0.9
		}
		methods = append(methods, &application.ApplyMethod{
			Label:      label,
			Selector:   selectorFor(s, false),
			Element:    goquery.NodeName(s),
			Href:       s.AttrOr("href", ""),
			Confidence: confidence,
		})
	})
	return methods, nil
}

type radioInput struct {
	sel     *goquery.Selection
	formIdx int
}

// ExtractFields turns the inputs of every form (or of the whole page when there is none) into descriptors.
// Radios sharing a name become a single field. Inputs that cannot be located again are dropped.
func ExtractFields(html string, step int) ([]*application.FieldDescriptor, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}

	forms := doc.Find("form")
	if forms.Length() == 0 {
		forms = doc.Selection
	}

	fields := []*application.FieldDescriptor{}
	groups := map[string][]radioInput{}
	var groupOrder []string

	forms.Each(func(formIdx int, form *goquery.Selection) {
		form.Find("input, textarea, select").Each(func(_ int, el *goquery.Selection) {
			inputType := strings.ToLower(el.AttrOr("type", ""))
			switch inputType {
			case "hidden", "submit", "button", "reset", "image":
				return
			}

			if goquery.NodeName(el) == "input" && inputType == "radio" {
				key := firstNonEmpty(el.AttrOr("name", ""), el.AttrOr("id", ""))
				if key == "" {
					key = "radio-" + uuid.NewString()
				}
				if _, ok := groups[key]; !ok {
					groupOrder = append(groupOrder, key)
				}
				groups[key] = append(groups[key], radioInput{sel: el, formIdx: formIdx})
				return
			}

			if field := buildField(doc, el, formIdx, step); field.Validate() == nil {
				fields = append(fields, field)
			}
		})
	})

	for _, key := range groupOrder {
		if field := buildRadioField(doc, key, groups[key], step); field != nil && field.Validate() == nil {
			fields = append(fields, field)
		}
	}
	return fields, nil
}

func buildField(doc *goquery.Document, el *goquery.Selection, formIdx, step int) *application.FieldDescriptor {
	id := firstNonEmpty(el.AttrOr("name", ""), el.AttrOr("id", ""), el.AttrOr("data-ui", ""))
	if id == "" {
		id = uuid.NewString()
	}

	labelText := findLabel(doc, el, el.AttrOr("id", ""))
	placeholder := el.AttrOr("placeholder", "")
	ariaLabel := el.AttrOr("aria-label", "")
	options, optionValues := extractOptions(el)

	_, readonly := el.Attr("readonly")
	metadata := map[string]string{"form_index": strconv.Itoa(formIdx)}
	for _, attr := range metadataAttrs {
		if value := el.AttrOr(attr, ""); value != "" {
			metadata[attr] = value
		}
	}
	if readonly {
		metadata["readonly"] = "true"
	}

	_, required := el.Attr("required")
	return &application.FieldDescriptor{
		ID:           id,
		Label:        firstNonEmpty(labelText, ariaLabel, placeholder, id),
		Question:     firstNonEmpty(labelText, placeholder, ariaLabel),
		Placeholder:  placeholder,
		NameAttr:     el.AttrOr("name", ""),
		InputType:    rawInputType(el),
		Kind:         kindOf(el),
		Required:     required,
		Options:      options,
		OptionValues: optionValues,
		Selector:     selectorFor(el, false),
		Metadata:     metadata,
		StepIndex:    step,
	}
}

func buildRadioField(doc *goquery.Document, key string, inputs []radioInput, step int) *application.FieldDescriptor {
	if len(inputs) == 0 {
		return nil
	}
	first := inputs[0]
	question := firstNonEmpty(groupLabel(doc, first.sel), ariaReferenceText(doc, first.sel), containerHint(first.sel))

	var options []string
	values := map[string]string{}
	selectors := map[string]string{}
	required := false
	for _, input := range inputs {
		optionLabel := firstNonEmpty(findLabel(doc, input.sel, input.sel.AttrOr("id", "")), input.sel.AttrOr("value", ""), "Option")
		selector := selectorFor(input.sel, true)
		if selector == "" {
			continue
		}
		options = append(options, optionLabel)
		values[optionLabel] = firstNonEmpty(input.sel.AttrOr("value", ""), optionLabel)
		selectors[optionLabel] = selector
		if _, ok := input.sel.Attr("required"); ok {
			required = true
		}
	}
	if len(options) == 0 {
		return nil
	}

	label := firstNonEmpty(question, options[0])
	return &application.FieldDescriptor{
		ID:              fmt.Sprintf("%s_%d", key, step),
		Label:           label,
		Question:        label,
		NameAttr:        key,
		InputType:       "input:radio",
		Kind:            application.KindRadio,
		Required:        required,
		Options:         options,
		OptionValues:    values,
		OptionSelectors: selectors,
		Metadata: map[string]string{
			"form_index": strconv.Itoa(first.formIdx),
			"group_name": key,
		},
		StepIndex: step,
	}
}

func kindOf(el *goquery.Selection) application.FieldKind {
	switch goquery.NodeName(el) {
	case "textarea":
		return application.KindTextarea
	case "select":
		return application.KindSelect
	}

	switch strings.ToLower(el.AttrOr("type", "")) {
	case "checkbox":
		return application.KindCheckbox
	case "radio":
		return application.KindRadio
	case "file":
		return application.KindFile
	case "date":
		return application.KindDate
	}

	if isCombobox(el) {
		return application.KindCombobox
	}
	return application.KindText
}

func isCombobox(el *goquery.Selection) bool {
	if strings.EqualFold(el.AttrOr("role", ""), "combobox") || strings.EqualFold(el.AttrOr("aria-haspopup", ""), "listbox") {
		return true
	}
	if strings.EqualFold(el.AttrOr("data-input-type", ""), "select") {
		return true
	}
	_, readonly := el.Attr("readonly")
	return readonly && el.AttrOr("aria-controls", "") != ""
}

func rawInputType(el *goquery.Selection) string {
	name := goquery.NodeName(el)
	if t := el.AttrOr("type", ""); name == "input" && t != "" {
		return name + ":" + t
	}
	return name
}

func findLabel(doc *goquery.Document, el *goquery.Selection, id string) string {
	if text := ariaReferenceText(doc, el); text != "" {
		return text
	}
	if id != "" {
		if label := doc.Find("label" + attrSelector("for", id)).First(); label.Length() > 0 {
			if text := cleanText(label.Text()); text != "" {
				return text
			}
		}
	}
	if parent := el.ParentsFiltered("label").First(); parent.Length() > 0 {
		if text := cleanText(parent.Text()); text != "" {
			return text
		}
	}
	return containerHint(el)
}

func ariaReferenceText(doc *goquery.Document, el *goquery.Selection) string {
	var pieces []string
	for _, ref := range strings.Fields(el.AttrOr("aria-labelledby", "")) {
		if text := cleanText(doc.Find(attrSelector("id", ref)).First().Text()); text != "" {
			pieces = append(pieces, text)
		}
	}
	return strings.Join(pieces, " ")
}

func containerHint(el *goquery.Selection) string {
	return cleanText(el.ParentsFiltered("[data-question]").First().AttrOr("data-question", ""))
}

func groupLabel(doc *goquery.Document, el *goquery.Selection) string {
	if fieldset := el.ParentsFiltered("fieldset").First(); fieldset.Length() > 0 {
		if text := ariaReferenceText(doc, fieldset); text != "" {
			return text
		}
		if legend := cleanText(fieldset.Find("legend").First().Text()); legend != "" {
			return legend
		}
	}
	if hint := containerHint(el); hint != "" {
		return hint
	}
	return cleanText(el.ParentsFiltered("h1, h2, h3, h4").First().Text())
}

func extractOptions(el *goquery.Selection) ([]string, map[string]string) {
	if goquery.NodeName(el) != "select" {
		return nil, nil
	}

	var options []string
	values := map[string]string{}
	el.Find("option").Each(func(_ int, opt *goquery.Selection) {
		label := cleanText(opt.Text())
		if label == "" {
			return
		}
		options = append(options, label)
		values[label] = firstNonEmpty(opt.AttrOr("value", ""), label)
	})
	return options, values
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

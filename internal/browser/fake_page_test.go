package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/auto-apply/internal/application"
)

// fakePage serves canned DOMs in order (the last one sticks) and records every action.
type fakePage struct {
	htmls    []string
	gotoErrs []error
	fail     map[string]error
	calls    []string
}

func (p *fakePage) record(call string) error {
	p.calls = append(p.calls, call)
	if err, ok := p.fail[call]; ok {
		return &application.BrowserError{Op: call, Err: err}
	}
	return nil
}

func (p *fakePage) Goto(_ context.Context, url string) error {
	p.calls = append(p.calls, "goto "+url)
	if len(p.gotoErrs) > 0 {
		err := p.gotoErrs[0]
		p.gotoErrs = p.gotoErrs[1:]
		if err != nil {
			return &application.BrowserError{Op: "goto", Err: err}
		}
	}
	return nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	if len(p.htmls) == 0 {
		return "", &application.BrowserError{Op: "read dom", Err: errors.New("no dom")}
	}
	html := p.htmls[0]
	if len(p.htmls) > 1 {
		p.htmls = p.htmls[1:]
	}
	return html, nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	return p.record("click " + selector)
}

func (p *fakePage) ClickText(_ context.Context, text string) error {
	return p.record("click-text " + text)
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	return p.record(fmt.Sprintf("fill %s=%s", selector, value))
}

func (p *fakePage) SetChecked(_ context.Context, selector string, checked bool) error {
	return p.record(fmt.Sprintf("check %s=%t", selector, checked))
}

func (p *fakePage) SelectOption(_ context.Context, selector, value string) error {
	return p.record(fmt.Sprintf("select %s=%s", selector, value))
}

func (p *fakePage) SelectCombobox(_ context.Context, selector, text, listbox string) error {
	return p.record(fmt.Sprintf("combobox %s=%s in %s", selector, text, listbox))
}

func (p *fakePage) Upload(_ context.Context, selector, path string) error {
	return p.record(fmt.Sprintf("upload %s=%s", selector, path))
}

func (p *fakePage) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	p.calls = append(p.calls, "wait "+selector)
	return &application.BrowserError{Op: "wait", Err: errors.New("timeout")}
}

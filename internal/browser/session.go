package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/application"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultActionTimeout     = 10 * time.Second
)

// Page is the set of browser actions the navigator and the submitter rely on.
// Every failure is returned as *application.BrowserError.
type Page interface {
	Goto(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	ClickText(ctx context.Context, text string) error
	Fill(ctx context.Context, selector, value string) error
	SetChecked(ctx context.Context, selector string, checked bool) error
	SelectOption(ctx context.Context, selector, value string) error
	SelectCombobox(ctx context.Context, selector, text, listbox string) error
	Upload(ctx context.Context, selector, path string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
}

type Config struct {
	Headless          bool          `mapstructure:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation-timeout"`
	ActionTimeout     time.Duration `mapstructure:"action-timeout"`
}

// Session is a single chromedp tab. It must be closed by the caller.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	cfg         Config
	logger      *zap.Logger
}

// Open launches a browser and attaches a fresh tab to it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// The browser lives as long as the session, not as long as the launch call.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	s := &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		cfg:         cfg,
		logger:      logger,
	}

	// The first Run binds the browser to the context it receives, so it must be the tab context itself.
	stop := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		s.Close()
		return nil, &application.BrowserError{Op: "launch browser", Err: err}
	}

	logger.Info("browser session started", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// Close shuts down the tab and the browser process.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.cancelTab()
	s.cancelAlloc()
	s.logger.Debug("browser session closed")
}

func (s *Session) Goto(ctx context.Context, url string) error {
	return s.run(ctx, "navigate to "+url, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, "read dom", s.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, "click "+selector, s.cfg.ActionTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

// ClickText clicks the first visible button or link whose text contains text.
func (s *Session) ClickText(ctx context.Context, text string) error {
	return s.run(ctx, fmt.Sprintf("click text %q", text), s.cfg.ActionTimeout,
		chromedp.Click(TextXPath(text), chromedp.BySearch, chromedp.NodeVisible),
	)
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, "fill "+selector, s.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// SetChecked clicks the checkbox only when its state differs from checked.
func (s *Session) SetChecked(ctx context.Context, selector string, checked bool) error {
	var nodes []*cdp.Node
	var current bool
	return s.run(ctx, "toggle "+selector, s.cfg.ActionTimeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
		chromedp.JavascriptAttribute(selector, "checked", &current, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if current == checked {
				return nil
			}
			if len(nodes) == 0 {
				return fmt.Errorf("no node matches %s", selector)
			}
			return chromedp.MouseClickNode(nodes[0]).Do(ctx)
		}),
	)
}

func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	var dispatched bool
	return s.run(ctx, "select option on "+selector, s.cfg.ActionTimeout,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(
			`document.querySelector(%s).dispatchEvent(new Event("change", {bubbles: true}))`,
			strconv.Quote(selector),
		), &dispatched),
	)
}

// SelectCombobox types text into the combobox and clicks the matching option,
// looking inside listbox when the field names one.
func (s *Session) SelectCombobox(ctx context.Context, selector, text, listbox string) error {
	if strings.TrimSpace(text) == "" {
		return &application.BrowserError{Op: "select combobox " + selector, Err: errors.New("option text must not be empty")}
	}

	option := OptionXPath(text, strings.TrimPrefix(listbox, "#"))
	return s.run(ctx, "select combobox "+selector, s.cfg.ActionTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
		chromedp.WaitVisible(option, chromedp.BySearch),
		chromedp.Click(option, chromedp.BySearch),
	)
}

func (s *Session) Upload(ctx context.Context, selector, path string) error {
	return s.run(ctx, "upload to "+selector, s.cfg.ActionTimeout,
		chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQuery),
	)
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, "wait for "+selector, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &application.BrowserError{Op: op, Err: err}
	}
	return nil
}

// TextXPath matches visible buttons and links containing text, case-insensitively.
func TextXPath(text string) string {
	return fmt.Sprintf(
		`//*[self::button or self::a][contains(translate(normalize-space(.), %s, %s), %s)]`,
		xpathLiteral(upperLetters), xpathLiteral(lowerLetters), xpathLiteral(strings.ToLower(strings.TrimSpace(text))),
	)
}

// OptionXPath matches a role=option element whose text contains text, optionally scoped to a listbox id.
func OptionXPath(text, listboxID string) string {
	scope := "//"
	if listboxID != "" {
		scope = fmt.Sprintf(`//*[@id=%s]//`, xpathLiteral(listboxID))
	}
	return fmt.Sprintf(`%s*[@role="option"][contains(normalize-space(.), %s)]`, scope, xpathLiteral(strings.TrimSpace(text)))
}

const (
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
)

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, `'`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+part+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

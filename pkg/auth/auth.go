// pkg/auth/auth.go

// Package auth drives login flows with a structural-first state machine.
// Email and password fields are located by selector shape, not by model
// output, so the common case costs zero model calls. The model is consulted
// only when the flow stops making progress.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
	"github.com/xkilldash9x/guidecap-cli/internal/detect"
	"github.com/xkilldash9x/guidecap-cli/pkg/action"
	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
	"github.com/xkilldash9x/guidecap-cli/pkg/index"
	"github.com/xkilldash9x/guidecap-cli/pkg/oracle"
)

// State names the phase a login flow is in.
type State string

const (
	StateNeedsLoginNavigation State = "needs_login_navigation"
	StateNeedsIdentifier      State = "needs_identifier"
	StateNeedsAdvance         State = "needs_advance"
	StateNeedsSecret          State = "needs_secret"
	StateNeedsSubmit          State = "needs_submit"
	StateVerificationPending  State = "verification_pending"
	StateAuthenticated        State = "authenticated"
	StateFailed               State = "failed"
)

type milestone string

const (
	milestoneNavigated  milestone = "navigated_to_login"
	milestoneIdentifier milestone = "filled_identifier"
	milestoneAdvanced   milestone = "advanced"
	milestoneSecret     milestone = "filled_secret"
	milestoneSubmitted  milestone = "submitted"
)

// Credentials for a login flow. Secret never appears in logs.
type Credentials struct {
	Identifier string
	Secret     string
}

// Result summarizes a finished flow.
type Result struct {
	State State
	Steps int
}

// actionRunner executes a single oracle-suggested action.
type actionRunner interface {
	Execute(ctx context.Context, a action.Action) bool
}

// pageWaiter observes page identity and settling.
type pageWaiter interface {
	Fingerprint(ctx context.Context) (string, error)
	Wait(ctx context.Context) bool
}

// elementMarker produces the indexed element list for model escalation.
type elementMarker interface {
	Mark(ctx context.Context) []index.Descriptor
	Unmark(ctx context.Context)
}

// Flow is a single login attempt against one page.
type Flow struct {
	page     browser.Page
	oracle   oracle.Oracle
	runner   actionRunner
	waiter   pageWaiter
	marker   elementMarker
	detector *detect.Detector
	logger   *zap.Logger
	cfg      config.AuthConfig
	creds    Credentials

	milestones map[milestone]bool
	stuck      int
	lastFP     string
}

// NewFlow wires a login flow. All collaborators are required except the
// oracle, which may be nil to disable escalation.
func NewFlow(
	page browser.Page,
	o oracle.Oracle,
	runner actionRunner,
	waiter pageWaiter,
	marker elementMarker,
	creds Credentials,
	cfg config.AuthConfig,
	logger *zap.Logger,
) *Flow {
	return &Flow{
		page:       page,
		oracle:     o,
		runner:     runner,
		waiter:     waiter,
		marker:     marker,
		detector:   detect.New(),
		logger:     logger.Named("auth"),
		cfg:        cfg,
		creds:      creds,
		milestones: make(map[milestone]bool),
	}
}

// Run drives the flow until it authenticates, fails, or runs out of steps.
// loginURL may be empty, in which case a sign-in link on the current page is
// clicked instead.
func (f *Flow) Run(ctx context.Context, loginURL string) (Result, error) {
	for step := 1; step <= f.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return Result{State: StateFailed, Steps: step}, err
		}

		html, title, url := f.snapshot(ctx)

		if term, gated := f.detector.VerificationGate(html, title, url); gated {
			switch {
			case f.milestones[milestoneSubmitted]:
				f.logger.Info("Verification gate after submit, waiting for a human to complete it.",
					zap.String("matched", term))
				if err := f.waitForHuman(ctx); err != nil {
					return Result{State: StateFailed, Steps: step}, err
				}
				continue
			case f.milestones[milestoneIdentifier]:
				// Passwordless flow: the identifier triggered a code or magic
				// link, which is as far as automation can go. Count it done.
				f.logger.Info("Verification gate after identifier, treating login as complete.")
				return Result{State: StateAuthenticated, Steps: step}, nil
			}
		}

		// Only trust error text after a submit attempt; marketing copy like
		// "try again" on an untouched form is not a rejection.
		if term, bad := f.detector.InlineError(html); bad && f.milestones[milestoneSubmitted] {
			f.logger.Warn("Inline error on login form, restarting the form.", zap.String("matched", term))
			f.resetForm()
		}

		if ok, err := f.authenticated(ctx, html, title, url); err == nil && ok {
			return Result{State: StateAuthenticated, Steps: step}, nil
		}

		if f.trackStuck(ctx) {
			if err := f.escalate(ctx, title, url); err != nil {
				f.logger.Warn("Model escalation failed.", zap.Error(err))
			}
			continue
		}

		state := f.nextState(ctx)
		f.logger.Debug("Login step.",
			zap.Int("step", step),
			zap.String("state", string(state)),
			zap.String("url", url))

		if err := f.perform(ctx, state, loginURL); err != nil {
			f.logger.Warn("Login step failed.", zap.String("state", string(state)), zap.Error(err))
		}
		f.waiter.Wait(ctx)
	}
	return Result{State: StateFailed, Steps: f.cfg.MaxSteps},
		fmt.Errorf("auth: login did not complete within %d steps", f.cfg.MaxSteps)
}

func (f *Flow) snapshot(ctx context.Context) (html, title, url string) {
	html, _ = f.page.Content(ctx)
	if loc, err := f.page.Location(ctx); err == nil {
		title, url = loc.Title, loc.URL
	}
	return html, title, url
}

// nextState derives the phase from milestones and the visible form shape.
func (f *Flow) nextState(ctx context.Context) State {
	if !f.milestones[milestoneNavigated] {
		return StateNeedsLoginNavigation
	}
	passwordVisible, _ := anyVisible(ctx, f.page, secretSelectors)
	switch {
	case !f.milestones[milestoneIdentifier]:
		return StateNeedsIdentifier
	case !f.milestones[milestoneSecret] && passwordVisible:
		return StateNeedsSecret
	case !f.milestones[milestoneAdvanced] && !passwordVisible:
		return StateNeedsAdvance
	case !f.milestones[milestoneSecret]:
		return StateNeedsSecret
	case !f.milestones[milestoneSubmitted]:
		return StateNeedsSubmit
	}
	return StateVerificationPending
}

func (f *Flow) perform(ctx context.Context, state State, loginURL string) error {
	switch state {
	case StateNeedsLoginNavigation:
		if loginURL != "" {
			if err := f.page.Navigate(ctx, loginURL); err != nil {
				return err
			}
		} else {
			ok, err := clickFirst(ctx, f.page, loginLinkSelectors, signInTerms, signUpTerms)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("auth: no sign-in link found")
			}
		}
		f.milestones[milestoneNavigated] = true

	case StateNeedsIdentifier:
		ok, err := fillFirst(ctx, f.page, identifierSelectors, f.creds.Identifier)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("auth: no identifier field found")
		}
		f.milestones[milestoneIdentifier] = true

	case StateNeedsAdvance:
		ok, err := clickFirst(ctx, f.page, advanceSelectors, advanceTerms, signUpTerms)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("auth: no continue button found")
		}
		f.milestones[milestoneAdvanced] = true

	case StateNeedsSecret:
		ok, err := fillFirst(ctx, f.page, secretSelectors, f.creds.Secret)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("auth: no password field found")
		}
		f.milestones[milestoneSecret] = true
		f.milestones[milestoneAdvanced] = true

	case StateNeedsSubmit:
		ok, err := clickFirst(ctx, f.page, advanceSelectors, advanceTerms, signUpTerms)
		if err == nil && !ok {
			ok, err = pressEnterIn(ctx, f.page, secretSelectors)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("auth: no submit control found")
		}
		f.milestones[milestoneSubmitted] = true
	}
	return nil
}

// authenticated checks the post-submit signals: the form is gone and no
// verification gate replaced it.
func (f *Flow) authenticated(ctx context.Context, html, title, url string) (bool, error) {
	if !f.milestones[milestoneSubmitted] {
		return false, nil
	}
	if _, gated := f.detector.VerificationGate(html, title, url); gated {
		return false, nil
	}
	passwordVisible, err := anyVisible(ctx, f.page, secretSelectors)
	if err != nil {
		return false, err
	}
	if passwordVisible {
		return false, nil
	}
	identifierVisible, err := anyVisible(ctx, f.page, identifierSelectors)
	if err != nil {
		return false, err
	}
	return !identifierVisible, nil
}

// trackStuck compares page fingerprints across steps and reports when the
// page has not changed for the configured threshold.
func (f *Flow) trackStuck(ctx context.Context) bool {
	fp, err := f.waiter.Fingerprint(ctx)
	if err != nil {
		return false
	}
	if fp == f.lastFP {
		f.stuck++
	} else {
		f.stuck = 0
		f.lastFP = fp
	}
	if f.stuck >= f.cfg.StuckThreshold {
		f.stuck = 0
		return true
	}
	return false
}

// escalate hands the page to the model and applies its suggested step.
func (f *Flow) escalate(ctx context.Context, title, url string) error {
	if f.oracle == nil {
		return fmt.Errorf("auth: stuck and no oracle configured")
	}
	f.logger.Info("Login flow is stuck, escalating to the model.", zap.String("url", url))

	elements := f.marker.Mark(ctx)
	defer f.marker.Unmark(ctx)
	shot, _ := f.page.Screenshot(ctx)

	decision, err := f.oracle.AssessLogin(ctx, oracle.LoginQuery{
		URL:        url,
		Title:      title,
		Elements:   elements,
		Screenshot: shot,
	})
	if err != nil {
		return err
	}
	if decision.IsLoggedIn {
		f.milestones[milestoneSubmitted] = true
		return nil
	}
	if decision.Action == nil {
		return nil
	}

	a := *decision.Action
	a.Value = f.substitute(a.Value)
	f.logger.Info("Applying model-suggested login step.",
		zap.String("kind", string(a.Kind)),
		zap.String("target", a.Target))
	f.runner.Execute(ctx, a)
	f.noteMilestone(a)
	return nil
}

// noteMilestone keeps the milestone map honest after an escalated action.
func (f *Flow) noteMilestone(a action.Action) {
	if a.Kind != action.KindType {
		return
	}
	switch a.Value {
	case f.creds.Secret:
		f.milestones[milestoneSecret] = true
		f.milestones[milestoneAdvanced] = true
	case f.creds.Identifier:
		f.milestones[milestoneIdentifier] = true
	}
}

// substitute replaces the model's credential placeholders with real values.
// The model is told never to emit secrets, so what comes back is a token
// like "[password]" that must be swapped immediately before use.
func (f *Flow) substitute(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "[password]", "[provided]", "[secret]", "[credential]", "[your password]":
		return f.creds.Secret
	case "[email]", "[username]", "[identifier]", "[your email]":
		return f.creds.Identifier
	}
	return value
}

// resetForm clears progress after an inline error so the form is refilled,
// keeping only the fact that the login page was reached.
func (f *Flow) resetForm() {
	navigated := f.milestones[milestoneNavigated]
	f.milestones = make(map[milestone]bool)
	f.milestones[milestoneNavigated] = navigated
	f.stuck = 0
}

// waitForHuman polls until the page moves past a verification gate, for
// flows where a person has to enter a code on another device.
func (f *Flow) waitForHuman(ctx context.Context) error {
	baseFP, _ := f.waiter.Fingerprint(ctx)
	baseLoc, _ := f.page.Location(ctx)

	deadline := time.Now().Add(f.cfg.HumanWaitTimeout)
	ticker := time.NewTicker(f.cfg.HumanPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		fp, err := f.waiter.Fingerprint(ctx)
		if err != nil {
			continue
		}
		loc, _ := f.page.Location(ctx)
		if fp != baseFP || loc.URL != baseLoc.URL {
			f.logger.Info("Verification gate cleared.")
			return nil
		}
	}
	return fmt.Errorf("auth: verification was not completed within %s", f.cfg.HumanWaitTimeout)
}

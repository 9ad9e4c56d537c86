package inject

import (
	"fmt"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"

	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// InjectionError reports a failure injecting text into the foreground
// application. Stage names the step that failed: "clipboard" or "paste".
type InjectionError struct {
	Stage string
	Err   error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("injection failed at %s: %v", e.Stage, e.Err)
}

func (e *InjectionError) Unwrap() error {
	return e.Err
}

// Injector places text into the focused application by writing it to
// the system clipboard and synthesizing a paste keystroke. The
// previous clipboard contents are not restored.
type Injector struct {
	settleDelay time.Duration
	commitDelay time.Duration
	logger      *logger.Logger
}

// NewInjector creates a new text injector
func NewInjector(cfg config.OutputConfig, logger *logger.Logger) *Injector {
	return &Injector{
		settleDelay: time.Duration(cfg.ClipboardSettleMs) * time.Millisecond,
		commitDelay: time.Duration(cfg.CommitDelayMs) * time.Millisecond,
		logger:      logger.Named("inject"),
	}
}

// Inject pastes text into the focused application. Empty text is a
// no-op. When autoEnter is set, a Return keystroke follows the paste
// after the commit delay so the paste modifier is fully released.
func (inj *Injector) Inject(text string, autoEnter bool) error {
	if text == "" {
		return nil
	}

	inj.logger.Info("Inserting text via clipboard", logger.Int("chars", len(text)))

	if err := clipboard.WriteAll(text); err != nil {
		return &InjectionError{Stage: "clipboard", Err: err}
	}

	// Let the clipboard settle before pasting.
	time.Sleep(inj.settleDelay)

	if err := inj.paste(); err != nil {
		return &InjectionError{Stage: "paste", Err: err}
	}

	if autoEnter {
		time.Sleep(inj.commitDelay)
		if err := inj.pressEnter(); err != nil {
			return &InjectionError{Stage: "paste", Err: err}
		}
	}

	return nil
}

func (inj *Injector) paste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}

func (inj *Injector) pressEnter() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.SetKeys(keybd_event.VK_ENTER)
	return kb.Launching()
}
